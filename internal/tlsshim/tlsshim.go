// Package tlsshim implements spec.md §4.E: a thin veneer translating the
// connection FSM's read/write/close calls through a TLS session,
// without the FSM itself ever branching on whether a connection is
// encrypted (spec.md §9 "function-pointer dispatch for TLS vs plain" —
// here, an interface with two implementations, conn.IO for plain
// sockets and Shim for TLS ones).
package tlsshim

import (
	"crypto/tls"
	"errors"
	"net"
	"os"

	"github.com/searchktools/uhttpd/internal/conn"
)

// Config carries the paths of the PEM-encoded cert and key files and the
// cipher priority an application supplies through daemon options
// (spec.md §6 "TLS key / TLS cert / TLS cipher priority").
type Config struct {
	CertFile, KeyFile string
	CipherSuites      []uint16
	MinVersion        uint16
}

// Build loads Config into a *tls.Config ready to hand to a Listener or
// to Server, consuming crypto/tls only through its public Config/
// Certificate surface, exactly as spec.md §1 scopes the TLS library as
// an out-of-scope external collaborator.
func (c Config) Build() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, err
	}

	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS10
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		CipherSuites: c.CipherSuites,
		MinVersion:   minVersion,
	}, nil
}

// Shim wraps a *tls.Conn so it satisfies conn.IO. The FSM has no
// TLSConnectionInit branch and never calls Handshake: crypto/tls runs
// the handshake inside the first Read or Write.
type Shim struct {
	raw *tls.Conn
}

// Wrap returns a Shim around an already-accepted *tls.Conn. The
// underlying net.Conn must already be non-blocking-equivalent (a
// deadline-driven net.Conn, per the teacher-pack's net package usage);
// tlsshim itself issues no syscalls directly.
func Wrap(raw *tls.Conn) *Shim {
	return &Shim{raw: raw}
}

// Handshake drives the TLS handshake for a caller that wants to run it
// explicitly, and may be called repeatedly until it returns (true, nil);
// would-block maps to (false, nil) rather than an error.
func (s *Shim) Handshake() (done bool, err error) {
	err = s.raw.Handshake()
	if err == nil {
		return true, nil
	}

	if isWouldBlock(err) {
		return false, nil
	}

	return false, err
}

// Info reports the negotiated TLS parameters once the handshake has
// completed, for connection-info queries (spec.md §4.G).
func (s *Shim) Info() conn.TLSInfo {
	state := s.raw.ConnectionState()

	return conn.TLSInfo{
		Version:     state.Version,
		CipherSuite: state.CipherSuite,
		ServerName:  state.ServerName,
	}
}

// Read implements conn.IO, mapping TLS would-block/interrupted into
// conn.ErrWouldBlock without advancing FSM state (spec.md §4.E).
func (s *Shim) Read(buf []byte) (int, error) {
	n, err := s.raw.Read(buf)
	if err != nil && isWouldBlock(err) {
		return n, conn.ErrWouldBlock
	}

	return n, err
}

// Write implements conn.IO, with the same would-block translation as Read.
func (s *Shim) Write(buf []byte) (int, error) {
	n, err := s.raw.Write(buf)
	if err != nil && isWouldBlock(err) {
		return n, conn.ErrWouldBlock
	}

	return n, err
}

// Close sends a TLS close-notify before closing the underlying socket,
// per spec.md §4.E's close responsibility.
func (s *Shim) Close() error {
	_ = s.raw.CloseWrite()
	return s.raw.Close()
}

func isWouldBlock(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, os.ErrDeadlineExceeded)
}
