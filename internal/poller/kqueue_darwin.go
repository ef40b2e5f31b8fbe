//go:build darwin

package poller

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller is a kqueue-based multiplexer, mirroring epollPoller's
// level-triggered semantics for read and write readiness.
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

func New() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	return &kqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)

	return err
}

func (p *kqueuePoller) SetWritable(fd int, interested bool) error {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if !interested {
		flags = unix.EV_DELETE
	}

	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_WRITE,
		Flags:  flags,
	}

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)

	if !interested && err == unix.ENOENT {
		return nil
	}

	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}

	_, err := unix.Kevent(p.kqfd, evs, nil, nil)

	return err
}

func (p *kqueuePoller) Wait(timeoutMS int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMS / 1000),
			Nsec: int64((timeoutMS % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	byFD := make(map[int]*Event, n)
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)

		e, ok := byFD[fd]
		if !ok {
			out = append(out, Event{FD: fd})
			e = &out[len(out)-1]
			byFD[fd] = e
		}

		switch ev.Filter {
		case unix.EVFILT_READ:
			e.Readable = true
		case unix.EVFILT_WRITE:
			e.Writable = true
		}
	}

	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
