package tlsshim

import (
	"crypto/tls"
	"net"

	"golang.org/x/crypto/acme/autocert"
)

// AutoCertConfig configures the ACME convenience listener: a host that
// would rather not manage PEM files directly hands over one or more
// domain names and gets a *tls.Config whose certificates are fetched
// and renewed automatically, grounded in the teacher-pack's own
// autocert.Manager wiring for its optional HTTPS listener.
type AutoCertConfig struct {
	Domains []string
	CacheDir string
}

// Build returns a *tls.Config backed by an autocert.Manager. It is a
// listener constructor layered over the TLS Shim's contract, not a
// change to it: the *tls.Conn it eventually accepts still goes through
// Wrap like any other TLS connection.
func (c AutoCertConfig) Build() *tls.Config {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
	}

	if len(c.Domains) > 0 {
		m.HostPolicy = autocert.HostWhitelist(c.Domains...)
	}

	if c.CacheDir != "" {
		m.Cache = autocert.DirCache(c.CacheDir)
	}

	return m.TLSConfig()
}

// Listen wraps a plain net.Listener with TLS using cfg, whether cfg came
// from Config.Build or AutoCertConfig.Build. The daemon does not use it:
// its accept loop wraps each accepted socket with tls.Server instead.
func Listen(inner net.Listener, cfg *tls.Config) net.Listener {
	return tls.NewListener(inner, cfg)
}
