package tlsshim

import (
	"crypto/tls"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/searchktools/uhttpd/internal/conn"
	"github.com/stretchr/testify/require"
)

func TestBuildFailsOnMissingCertFiles(t *testing.T) {
	cfg := Config{CertFile: "does-not-exist.pem", KeyFile: "does-not-exist-key.pem"}

	_, err := cfg.Build()

	require.Error(t, err)
}

func TestIsWouldBlockMatchesDeadlineExceeded(t *testing.T) {
	require.True(t, isWouldBlock(os.ErrDeadlineExceeded))
	require.False(t, isWouldBlock(errors.New("some other failure")))
}

func TestHandshakeReturnsUnderlyingErrorOnFatalFailure(t *testing.T) {
	client, server := net.Pipe()
	require.NoError(t, client.Close())

	shim := Wrap(tls.Server(server, &tls.Config{}))

	done, err := shim.Handshake()

	require.False(t, done)
	require.Error(t, err)
	require.NotEqual(t, conn.ErrWouldBlock, err)

	_ = server.Close()
}
