//go:build linux || darwin

package poller

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddReportsReadableAfterWrite(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Add(int(r.Fd())))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int(r.Fd()), events[0].FD)
	require.True(t, events[0].Readable)
}

func TestSetWritableThenRemove(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Add(int(w.Fd())))
	require.NoError(t, p.SetWritable(int(w.Fd()), true))
	require.NoError(t, p.SetWritable(int(w.Fd()), false))
	require.NoError(t, p.Remove(int(w.Fd())))
}
