package daemon

import (
	"net"
	"syscall"

	"github.com/searchktools/uhttpd/internal/conn"
)

// rawIO implements conn.IO over a raw, non-blocking file descriptor,
// grounded in the teacher's own accept loop (syscall.Accept,
// syscall.Read, syscall.Write directly on the fd rather than through
// net.Conn) so the epoll/kqueue poller can watch the same fd the FSM
// reads and writes.
type rawIO struct {
	fd int
}

func (r rawIO) Read(buf []byte) (int, error) {
	n, err := syscall.Read(r.fd, buf)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return 0, conn.ErrWouldBlock
		}

		return 0, err
	}

	return n, nil
}

func (r rawIO) Write(buf []byte) (int, error) {
	n, err := syscall.Write(r.fd, buf)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return n, conn.ErrWouldBlock
		}

		return n, err
	}

	return n, nil
}

func (r rawIO) Close() error {
	return syscall.Close(r.fd)
}

// setupAcceptedSocket mirrors the teacher's acceptConnections: disable
// Nagle, enable TCP keepalive, and flip the fd non-blocking before
// handing it to the poller.
func setupAcceptedSocket(fd int) error {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return err
	}

	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)

	return nil
}

// listenerFD extracts the raw, non-blocking fd of a *net.TCPListener so
// the poller can watch it directly, the same dup-then-raw-syscalls
// shape the teacher's Engine.Run uses.
func listenerFD(ln *net.TCPListener) (int, error) {
	f, err := ln.File()
	if err != nil {
		return -1, err
	}

	fd := int(f.Fd())

	if err := syscall.SetNonblock(fd, true); err != nil {
		f.Close()
		return -1, err
	}

	return fd, nil
}
