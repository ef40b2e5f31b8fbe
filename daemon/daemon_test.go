package daemon

import (
	"testing"

	"github.com/searchktools/uhttpd/config"
	"github.com/stretchr/testify/require"
)

func TestNewPropagatesTLSBuildError(t *testing.T) {
	cfg := config.New(config.WithTLS("missing-cert.pem", "missing-key.pem"))

	_, err := New(cfg)

	require.Error(t, err)
}

func TestNewSucceedsWithoutTLS(t *testing.T) {
	cfg := config.New(config.WithPort(0))

	d, err := New(cfg)

	require.NoError(t, err)
	require.NotNil(t, d)
}
