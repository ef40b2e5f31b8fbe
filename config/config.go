// Package config holds daemon-wide settings and the functional options
// used to build them. The teacher's config.New loaded scalar settings
// from flags/env; once TLS material, accept-policy/logger callbacks and
// an execution mode enter the picture none of that is a flag-shaped
// value, so this generalizes the teacher's "one Config struct, set at
// startup" shape into the functional-options style the rest of the
// ecosystem (and every pack server) uses for the same reason.
package config

import (
	"log"
	"time"

	"github.com/searchktools/uhttpd/internal/conn"
	"github.com/searchktools/uhttpd/internal/tlsshim"
)

// stdLogger adapts the standard library's log package to conn.Logger,
// mirroring the teacher's own log.Printf call sites.
type stdLogger struct{}

func (stdLogger) Printf(format string, args ...any) { log.Printf(format, args...) }

// Mode selects one of spec.md §4.F's three fixed execution models.
type Mode uint8

const (
	ModeThreaded Mode = iota
	ModeInternalPoll
	ModeExternalPoll
)

// Config is the daemon's fully resolved configuration, per spec.md §3's
// Daemon attributes and §6's configuration-option list.
type Config struct {
	Port            int
	BindAddress     string
	Mode            Mode
	MaxConnections  int
	IdleTimeout     time.Duration
	PoolInitialSize int
	PoolMaxSize     int
	MaxBodySize     int64

	TLS         *tlsshim.Config
	AutoCertTLS *tlsshim.AutoCertConfig

	Handler         conn.Handler
	AcceptPolicy    conn.AcceptPolicy
	NotifyCompleted conn.NotifyCompleted
	Logger          conn.Logger
	Panic           func(recovered any)
}

// Option mutates a Config at construction time.
type Option func(*Config)

// New builds a Config from its defaults plus every supplied Option, in
// order.
func New(opts ...Option) *Config {
	c := &Config{
		Port:            0,
		BindAddress:     "0.0.0.0",
		Mode:            ModeInternalPoll,
		MaxConnections:  0,
		IdleTimeout:     60 * time.Second,
		PoolInitialSize: 32 * 1024,
		PoolMaxSize:     1024 * 1024,
		MaxBodySize:     8 * 1024 * 1024,
		Logger:          stdLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

func WithBindAddress(addr string) Option {
	return func(c *Config) { c.BindAddress = addr }
}

func WithMode(m Mode) Option {
	return func(c *Config) { c.Mode = m }
}

func WithMaxConnections(n int) Option {
	return func(c *Config) { c.MaxConnections = n }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

func WithPoolSize(initial, max int) Option {
	return func(c *Config) {
		c.PoolInitialSize = initial
		c.PoolMaxSize = max
	}
}

func WithMaxBodySize(n int64) Option {
	return func(c *Config) { c.MaxBodySize = n }
}

func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.TLS = &tlsshim.Config{CertFile: certFile, KeyFile: keyFile}
	}
}

func WithTLSCipherSuites(suites ...uint16) Option {
	return func(c *Config) {
		if c.TLS == nil {
			c.TLS = &tlsshim.Config{}
		}
		c.TLS.CipherSuites = suites
	}
}

func WithAutoCertTLS(domains ...string) Option {
	return func(c *Config) {
		c.AutoCertTLS = &tlsshim.AutoCertConfig{Domains: domains}
	}
}

func WithHandler(h conn.Handler) Option {
	return func(c *Config) { c.Handler = h }
}

func WithAcceptPolicy(p conn.AcceptPolicy) Option {
	return func(c *Config) { c.AcceptPolicy = p }
}

func WithNotifyCompleted(f conn.NotifyCompleted) Option {
	return func(c *Config) { c.NotifyCompleted = f }
}

func WithLogger(l conn.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithPanicHandler(f func(recovered any)) Option {
	return func(c *Config) { c.Panic = f }
}
