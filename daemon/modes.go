package daemon

import (
	"time"

	"github.com/searchktools/uhttpd/internal/conn"
	"github.com/searchktools/uhttpd/internal/poller"
)

// runThreaded implements ModeThreaded: the teacher's single epoll loop
// fans out into one dedicated goroutine per accepted connection, each
// owning a private single-fd poller and driving its Connection's FSM
// with blocking waits, closer to the classic thread-per-connection
// model spec.md §4.F asks ModeThreaded to provide than sharing the
// internal-poll goroutine would.
func (d *Daemon) runThreaded() {
	defer d.wg.Done()

	acceptPoll, err := poller.New()
	if err != nil {
		return
	}
	defer acceptPoll.Close()

	if err := acceptPoll.Add(d.lnFD); err != nil {
		return
	}

	d.mu.Lock()
	d.listenerPoll = acceptPoll
	d.listenerArmed = true
	d.mu.Unlock()

	for !d.stopping.Load() {
		_, err := acceptPoll.Wait(1000)
		if err != nil {
			continue
		}

		for _, e := range d.acceptOnce() {
			d.mu.Lock()
			d.conns[e.fd] = e
			d.mu.Unlock()

			d.wg.Add(1)
			go d.serveThreaded(e)
		}
	}
}

func (d *Daemon) serveThreaded(e *entry) {
	defer d.wg.Done()

	p, err := poller.New()
	if err != nil {
		d.closeConn(e.fd)
		return
	}
	defer p.Close()

	if err := p.Add(e.fd); err != nil {
		d.closeConn(e.fd)
		return
	}

	for {
		timeout := -1
		if d.cfg.IdleTimeout > 0 {
			timeout = int(d.cfg.IdleTimeout / time.Millisecond)
		}

		events, err := p.Wait(timeout)
		if err != nil {
			d.closeConn(e.fd)
			return
		}

		if len(events) == 0 {
			if e.c.Tick(conn.EventIdle, time.Now()) == conn.OutcomeClosed {
				d.closeConn(e.fd)
				return
			}
			continue
		}

		outcome := d.driveOne(e, p, events[0])
		if outcome == conn.OutcomeClosed {
			d.closeConn(e.fd)
			return
		}
	}
}

// driveOne ticks a connection for every readiness direction reported
// and reconciles the poller's write-interest with whatever the FSM now
// wants, so a connection that suspended mid-response starts getting
// EPOLLOUT/EVFILT_WRITE notifications without the caller having to know
// about Outcome at all.
func (d *Daemon) driveOne(e *entry, p poller.Poller, ev poller.Event) conn.Outcome {
	outcome := conn.OutcomeContinue

	if ev.Readable {
		outcome = e.c.Tick(conn.EventReadable, time.Now())
	}

	if outcome != conn.OutcomeClosed && ev.Writable {
		outcome = e.c.Tick(conn.EventWritable, time.Now())
	}

	switch outcome {
	case conn.OutcomeSuspendWrite:
		_ = p.SetWritable(e.fd, true)
	case conn.OutcomeContinue:
		_ = p.SetWritable(e.fd, false)
	}

	return outcome
}

// runInternalPoll implements ModeInternalPoll: one goroutine, one
// poller instance watching the listen socket, the wakeup pipe, and
// every live connection, directly mirroring the teacher's Engine.Run
// epoll loop but dispatching into conn.Connection.Tick instead of the
// teacher's inline HTTP/1.1 parser.
func (d *Daemon) runInternalPoll() {
	defer d.wg.Done()

	const idleSweepInterval = 1 * time.Second
	lastSweep := time.Now()

	for !d.stopping.Load() {
		events, err := d.poll.Wait(1000)
		if err != nil {
			continue
		}

		for _, ev := range events {
			switch ev.FD {
			case d.lnFD:
				d.handleAccept()
			case d.wakeR:
				d.drainWakeup()
			default:
				d.handleConnEvent(ev)
			}
		}

		if time.Since(lastSweep) >= idleSweepInterval {
			d.idleSweep()
			lastSweep = time.Now()
		}
	}
}

func (d *Daemon) handleAccept() {
	for _, e := range d.acceptOnce() {
		// ModeExternalPoll has no poller of its own; the host watches fds.
		if d.poll != nil {
			if err := d.poll.Add(e.fd); err != nil {
				e.c.Destroy()
				d.active.Add(-1)
				continue
			}
		}

		d.mu.Lock()
		d.conns[e.fd] = e
		d.mu.Unlock()
	}
}

func (d *Daemon) handleConnEvent(ev poller.Event) {
	d.mu.Lock()
	e, ok := d.conns[ev.FD]
	d.mu.Unlock()

	if !ok {
		return
	}

	outcome := d.driveOne(e, d.poll, ev)
	if outcome == conn.OutcomeClosed {
		d.closeConn(ev.FD)
	}
}

// FillReadinessSets and Run/GetTimeout give a host its own event loop
// the ModeExternalPoll surface spec.md §4.F describes: the daemon never
// spins its own goroutine, it only tells the host what to watch and
// lets the host call back in.
type Readiness struct {
	Read  []int
	Write []int
}

// FillReadinessSets reports which fds currently need read or write
// readiness notifications, for a host driving its own select/poll/epoll
// loop under ModeExternalPoll.
func (d *Daemon) FillReadinessSets() Readiness {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Readiness{Read: []int{d.lnFD}}

	for fd, e := range d.conns {
		r.Read = append(r.Read, fd)
		if e.c.State() == conn.NormalBodyUnready || e.c.State() == conn.ChunkedBodyUnready || e.c.State() == conn.HeadersSending {
			r.Write = append(r.Write, fd)
		}
	}

	return r
}

// Run processes one round of host-reported readiness under
// ModeExternalPoll: readyRead/readyWrite are the fd subsets the host's
// own select/poll/epoll call found ready.
func (d *Daemon) Run(readyRead, readyWrite []int) {
	readSet := make(map[int]bool, len(readyRead))
	for _, fd := range readyRead {
		readSet[fd] = true
	}
	writeSet := make(map[int]bool, len(readyWrite))
	for _, fd := range readyWrite {
		writeSet[fd] = true
	}

	if readSet[d.lnFD] {
		d.handleAccept()
	}

	d.mu.Lock()
	targets := make([]*entry, 0, len(d.conns))
	for fd, e := range d.conns {
		if readSet[fd] || writeSet[fd] {
			targets = append(targets, e)
		}
	}
	d.mu.Unlock()

	for _, e := range targets {
		outcome := conn.OutcomeContinue
		if readSet[e.fd] {
			outcome = e.c.Tick(conn.EventReadable, time.Now())
		}
		if outcome != conn.OutcomeClosed && writeSet[e.fd] {
			outcome = e.c.Tick(conn.EventWritable, time.Now())
		}
		if outcome == conn.OutcomeClosed {
			d.closeConn(e.fd)
		}
	}

	d.idleSweep()
}

// GetTimeout reports how long the host may safely block in its own
// poll call before the earliest live connection's idle timeout expires,
// so a host under ModeExternalPoll still enforces IdleTimeout correctly
// even though it owns the wait loop.
func (d *Daemon) GetTimeout() time.Duration {
	if d.cfg.IdleTimeout <= 0 {
		return -1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	min := d.cfg.IdleTimeout

	for _, e := range d.conns {
		remaining := d.cfg.IdleTimeout - e.c.IdleFor(now)
		if remaining < min {
			min = remaining
		}
	}

	if min < 0 {
		return 0
	}

	return min
}
