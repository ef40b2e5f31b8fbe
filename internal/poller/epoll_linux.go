//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// epollPoller is an epoll-based multiplexer, level-triggered for
// reliability (the teacher's own rationale for avoiding EPOLLET).
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) SetWritable(fd int, interested bool) error {
	events := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
	if interested {
		events |= unix.EPOLLOUT
	}

	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMS int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil && err != unix.EINTR {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		out = append(out, Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
		})
	}

	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
