package conn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLineHandlesCRLFAndBareLF(t *testing.T) {
	line, next, ok := findLine([]byte("GET / HTTP/1.1\r\nHost: x"))
	require.True(t, ok)
	require.Equal(t, "GET / HTTP/1.1", string(line))
	require.Equal(t, 16, next)

	line, next, ok = findLine([]byte("bare-lf\nrest"))
	require.True(t, ok)
	require.Equal(t, "bare-lf", string(line))
	require.Equal(t, 8, next)
}

func TestFindLineReturnsNotOkWithoutTerminator(t *testing.T) {
	_, _, ok := findLine([]byte("no terminator here"))
	require.False(t, ok)
}

func TestParseRequestLineValid(t *testing.T) {
	rl, err := parseRequestLine([]byte("GET /a/b?x=1 HTTP/1.1"))

	require.NoError(t, err)
	require.Equal(t, "GET", rl.Method)
	require.Equal(t, "/a/b", rl.Path)
	require.Equal(t, "x=1", rl.Query)
	require.Equal(t, "HTTP/1.1", rl.Version)
}

func TestParseRequestLineRejectsMissingParts(t *testing.T) {
	_, err := parseRequestLine([]byte("GET /a"))
	require.Error(t, err)

	_, err = parseRequestLine([]byte("GET"))
	require.Error(t, err)
}

func TestParseRequestLineRejectsControlByteInTarget(t *testing.T) {
	_, err := parseRequestLine([]byte("GET /a\x00b HTTP/1.1"))
	require.Error(t, err)
}

func TestParseRequestLineRejectsMalformedVersion(t *testing.T) {
	_, err := parseRequestLine([]byte("GET / HTTP/1.x"))
	require.Error(t, err)

	_, err = parseRequestLine([]byte("GET / FTP/1.1"))
	require.Error(t, err)
}

func TestParseRequestLineAcceptsWellFormedUnsupportedVersion(t *testing.T) {
	rl, err := parseRequestLine([]byte("GET / HTTP/2.0"))

	require.NoError(t, err)
	require.Equal(t, "HTTP/2.0", rl.Version)
}

func TestSplitHeaderLine(t *testing.T) {
	name, value, ok := splitHeaderLine([]byte("Content-Type:  text/plain  "))
	require.True(t, ok)
	require.Equal(t, "Content-Type", name)
	require.Equal(t, "text/plain", value)
}

func TestSplitHeaderLineRejectsMissingColon(t *testing.T) {
	_, _, ok := splitHeaderLine([]byte("no colon here"))
	require.False(t, ok)
}

func TestIsContinuation(t *testing.T) {
	require.True(t, isContinuation([]byte(" folded")))
	require.True(t, isContinuation([]byte("\tfolded")))
	require.False(t, isContinuation([]byte("Not-Folded: x")))
}
