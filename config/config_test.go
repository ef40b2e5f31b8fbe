package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New()

	require.Equal(t, "0.0.0.0", c.BindAddress)
	require.Equal(t, ModeInternalPoll, c.Mode)
	require.Equal(t, 60*time.Second, c.IdleTimeout)
	require.Nil(t, c.TLS)
	require.NotNil(t, c.Logger)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := New(
		WithPort(9090),
		WithMode(ModeThreaded),
		WithMaxConnections(100),
		WithIdleTimeout(5*time.Second),
		WithPoolSize(1024, 8192),
		WithMaxBodySize(1<<20),
	)

	require.Equal(t, 9090, c.Port)
	require.Equal(t, ModeThreaded, c.Mode)
	require.Equal(t, 100, c.MaxConnections)
	require.Equal(t, 5*time.Second, c.IdleTimeout)
	require.Equal(t, 1024, c.PoolInitialSize)
	require.Equal(t, 8192, c.PoolMaxSize)
	require.Equal(t, int64(1<<20), c.MaxBodySize)
}

func TestWithTLSSetsCertAndKeyPaths(t *testing.T) {
	c := New(WithTLS("cert.pem", "key.pem"))

	require.NotNil(t, c.TLS)
	require.Equal(t, "cert.pem", c.TLS.CertFile)
	require.Equal(t, "key.pem", c.TLS.KeyFile)
}

func TestWithTLSCipherSuitesCreatesTLSIfAbsent(t *testing.T) {
	c := New(WithTLSCipherSuites(0x1301, 0x1302))

	require.NotNil(t, c.TLS)
	require.Equal(t, []uint16{0x1301, 0x1302}, c.TLS.CipherSuites)
}

func TestWithAutoCertTLSSetsDomains(t *testing.T) {
	c := New(WithAutoCertTLS("example.com", "www.example.com"))

	require.NotNil(t, c.AutoCertTLS)
	require.Equal(t, []string{"example.com", "www.example.com"}, c.AutoCertTLS.Domains)
}
