// Package daemon implements spec.md §4.F: the accept loop and the
// per-mode dispatch of FSM ticks across the three execution models a
// Daemon is fixed to at Start. Grounded in the teacher's core.Engine
// (accept loop, epoll/kqueue wait loop, idle-connection reaper),
// generalized from driving http.ParseRequest directly to driving the
// conn.Connection state machine, and split into three interchangeable
// dispatch strategies instead of one hardwired loop.
package daemon

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/searchktools/uhttpd/config"
	"github.com/searchktools/uhttpd/internal/conn"
	"github.com/searchktools/uhttpd/internal/poller"
	"github.com/searchktools/uhttpd/internal/tlsshim"
	"github.com/searchktools/uhttpd/response"
)

// Daemon owns the listen socket, the live connection set, and whichever
// of the three execution modes it was started with (spec.md §3's
// Daemon data model; the mode is "selected at daemon start and
// thereafter fixed", per spec.md §4.F).
type Daemon struct {
	cfg    *config.Config
	tlsCfg *tls.Config

	ln     *net.TCPListener
	lnFD   int
	poll   poller.Poller
	wakeR  int
	wakeW  int

	mu    sync.Mutex
	conns map[int]*entry

	// listenerPoll is whichever Poller currently has lnFD registered
	// (d.poll under ModeInternalPoll, the private acceptPoll under
	// ModeThreaded); listenerArmed tracks whether it's currently
	// registered, both protected by mu, so hitting MaxConnections can
	// pull the listen fd out of the readiness set and closeConn can put
	// it back once a slot frees (spec.md §4.F).
	listenerPoll  poller.Poller
	listenerArmed bool

	active   atomic.Int64
	stopping atomic.Bool
	wg       sync.WaitGroup
}

type entry struct {
	c  *conn.Connection
	fd int
}

// New creates a Daemon from cfg. It does not bind a socket yet; call
// Start for that.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:   cfg,
		conns: make(map[int]*entry, 1024),
	}

	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.Build()
		if err != nil {
			return nil, err
		}
		d.tlsCfg = tlsCfg
	} else if cfg.AutoCertTLS != nil {
		d.tlsCfg = cfg.AutoCertTLS.Build()
	}

	return d, nil
}

// Start binds the listen socket and, for ModeInternalPoll and
// ModeThreaded, begins serving in a background goroutine. For
// ModeExternalPoll it only binds the socket; the host drives the loop
// via FillReadinessSets/Run/GetTimeout.
func (d *Daemon) Start() error {
	addr := fmt.Sprintf("%s:%d", d.cfg.BindAddress, d.cfg.Port)

	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return err
	}
	d.ln = ln

	fd, err := listenerFD(ln)
	if err != nil {
		ln.Close()
		return err
	}
	d.lnFD = fd

	switch d.cfg.Mode {
	case config.ModeThreaded:
		d.wg.Add(1)
		go d.runThreaded()
	case config.ModeInternalPoll:
		p, err := poller.New()
		if err != nil {
			ln.Close()
			return err
		}
		d.poll = p

		if err := d.poll.Add(d.lnFD); err != nil {
			return err
		}
		d.listenerPoll = p
		d.listenerArmed = true

		if err := d.setupWakeup(); err != nil {
			return err
		}

		d.wg.Add(1)
		go d.runInternalPoll()
	case config.ModeExternalPoll:
		// host drives everything; nothing to start here.
	}

	return nil
}

// Addr reports the bound listen address, useful when Port was 0
// (ephemeral) at configuration time.
func (d *Daemon) Addr() net.Addr {
	return d.ln.Addr()
}

// Stop destroys every live connection at once, without letting in-flight
// exchanges finish and without reporting them to NotifyCompleted, then
// waits for the background goroutines to exit and closes the listen
// socket.
func (d *Daemon) Stop() error {
	d.stopping.Store(true)

	d.mu.Lock()
	for _, e := range d.conns {
		e.c.Destroy()
	}
	d.conns = make(map[int]*entry)
	d.mu.Unlock()

	if d.poll != nil {
		d.wakeWriter()
	}

	d.wg.Wait()

	if d.poll != nil {
		d.poll.Close()
	}

	return d.ln.Close()
}

// QueueResponse takes a reference on resp, attaches it to c as its
// current response, and wakes the poll thread via the wakeup pipe. It
// does not change c's FSM state or the poller's write interest for c.
func (d *Daemon) QueueResponse(c *conn.Connection, resp *response.Response) {
	c.SetResponse(resp)

	if d.poll != nil {
		d.wakeWriter()
	}
}

func (d *Daemon) setupWakeup() error {
	fds := make([]int, 2)
	if err := syscall.Pipe(fds); err != nil {
		return err
	}

	d.wakeR, d.wakeW = fds[0], fds[1]

	_ = syscall.SetNonblock(d.wakeR, true)
	_ = syscall.SetNonblock(d.wakeW, true)

	return d.poll.Add(d.wakeR)
}

func (d *Daemon) wakeWriter() {
	_, _ = syscall.Write(d.wakeW, []byte{0})
}

func (d *Daemon) drainWakeup() {
	buf := make([]byte, 64)
	for {
		n, err := syscall.Read(d.wakeR, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// acceptOnce accepts every pending connection on the listen socket
// without blocking, exactly like the teacher's acceptConnections, and
// returns the accepted connections for the caller to register with its
// dispatch mode.
func (d *Daemon) acceptOnce() []*entry {
	var out []*entry

	for {
		if d.cfg.MaxConnections > 0 && int(d.active.Load()) >= d.cfg.MaxConnections {
			d.mu.Lock()
			d.disarmListenerLocked()
			d.mu.Unlock()
			return out
		}

		nfd, sa, err := syscall.Accept(d.lnFD)
		if err != nil {
			return out
		}

		if err := setupAcceptedSocket(nfd); err != nil {
			syscall.Close(nfd)
			continue
		}

		remote := sockaddrToAddr(sa)

		io, err := d.wrapTLS(nfd)
		if err != nil {
			syscall.Close(nfd)
			continue
		}

		c := conn.New(io, remote, conn.Options{
			PoolInitialSize: d.cfg.PoolInitialSize,
			PoolMaxSize:     d.cfg.PoolMaxSize,
			IdleTimeout:     d.cfg.IdleTimeout,
			MaxBodySize:     d.cfg.MaxBodySize,
			Handler:         d.cfg.Handler,
			AcceptPolicy:    d.cfg.AcceptPolicy,
			NotifyCompleted: d.cfg.NotifyCompleted,
			Logger:          d.cfg.Logger,
			Panic:           d.cfg.Panic,
		})

		d.active.Add(1)
		out = append(out, &entry{c: c, fd: nfd})
	}
}

func (d *Daemon) wrapTLS(fd int) (conn.IO, error) {
	if d.tlsCfg == nil {
		return rawIO{fd: fd}, nil
	}

	nc, err := net.FileConn(os.NewFile(uintptr(fd), ""))
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Server(nc, d.tlsCfg)

	return tlsshim.Wrap(tlsConn), nil
}

func sockaddrToAddr(sa syscall.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *syscall.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *syscall.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}

func (d *Daemon) closeConn(fd int) {
	d.mu.Lock()
	e, ok := d.conns[fd]
	if ok {
		delete(d.conns, fd)
	}
	d.mu.Unlock()

	if !ok {
		return
	}

	if d.poll != nil {
		d.poll.Remove(fd)
	}

	e.c.Destroy()
	d.active.Add(-1)

	d.mu.Lock()
	if d.cfg.MaxConnections <= 0 || int(d.active.Load()) < d.cfg.MaxConnections {
		d.rearmListenerLocked()
	}
	d.mu.Unlock()
}

// disarmListenerLocked pulls the listen fd out of whichever poller is
// currently watching it, so a poller that's level-triggered (epoll, per
// epoll_linux.go's EPOLLIN) stops reporting it ready while the daemon
// is at MaxConnections and has nowhere to put a new connection. Must be
// called with mu held.
func (d *Daemon) disarmListenerLocked() {
	if d.listenerArmed && d.listenerPoll != nil {
		_ = d.listenerPoll.Remove(d.lnFD)
		d.listenerArmed = false
	}
}

// rearmListenerLocked re-registers the listen fd once active connections
// drop back under MaxConnections. Must be called with mu held.
func (d *Daemon) rearmListenerLocked() {
	if !d.listenerArmed && d.listenerPoll != nil {
		if err := d.listenerPoll.Add(d.lnFD); err == nil {
			d.listenerArmed = true
		}
	}
}

func (d *Daemon) idleSweep() {
	now := time.Now()

	d.mu.Lock()
	var timedOut []int
	for fd, e := range d.conns {
		if e.c.Tick(conn.EventIdle, now) == conn.OutcomeClosed {
			timedOut = append(timedOut, fd)
		}
	}
	d.mu.Unlock()

	for _, fd := range timedOut {
		d.closeConn(fd)
	}
}
