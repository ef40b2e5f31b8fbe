package conn

import (
	"bytes"
	"testing"
	"time"

	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/response"
	"github.com/stretchr/testify/require"
)

// fakeIO feeds a fixed byte slice to Read (returning ErrWouldBlock once
// exhausted, like a non-blocking socket with nothing left buffered) and
// collects every Write into out.
type fakeIO struct {
	in     []byte
	pos    int
	out    bytes.Buffer
	closed bool
}

func (f *fakeIO) Read(buf []byte) (int, error) {
	if f.pos >= len(f.in) {
		return 0, errWouldBlock
	}

	n := copy(buf, f.in[f.pos:])
	f.pos += n

	return n, nil
}

func (f *fakeIO) Write(buf []byte) (int, error) {
	return f.out.Write(buf)
}

func (f *fakeIO) Close() error {
	f.closed = true
	return nil
}

func newTestConnection(t *testing.T, request string, handler Handler) (*Connection, *fakeIO) {
	t.Helper()

	io := &fakeIO{in: []byte(request)}
	c := New(io, nil, Options{
		PoolInitialSize: 512,
		PoolMaxSize:     4096,
		MaxBodySize:     1 << 20,
		Handler:         handler,
	})

	return c, io
}

func TestSimpleGetRequestRoundTrip(t *testing.T) {
	var gotQuery string

	handler := func(c *Connection) {
		gotQuery, _ = c.Headers().Get(headers.KindQueryArg, "name")
		c.SetResponse(response.FromString("hi"))
	}

	req := "GET /hello?name=Ada HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
	c, io := newTestConnection(t, req, handler)

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeClosed, outcome)
	require.Equal(t, "Ada", gotQuery)

	// the scheduler reaps a Closed connection with Destroy
	c.Destroy()
	require.True(t, io.closed)

	written := io.out.String()
	require.Contains(t, written, "HTTP/1.1 200 OK")
	require.Contains(t, written, "Connection: close")
	require.Contains(t, written, "hi")
}

func TestKeepAliveResetsStateForNextRequest(t *testing.T) {
	var calls int

	handler := func(c *Connection) {
		calls++
		c.SetResponse(response.FromString("ok"))
	}

	req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	c, _ := newTestConnection(t, req, handler)

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeContinue, outcome)
	require.Equal(t, 1, calls)
	require.Equal(t, Init, c.State())
}

func TestMalformedRequestLineReturns400(t *testing.T) {
	c, io := newTestConnection(t, "NOT A REQUEST LINE AT ALL\r\n\r\n", nil)

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeClosed, outcome)
	require.Contains(t, io.out.String(), "400 Bad Request")
}

func TestContentLengthAndChunkedIsMalformed(t *testing.T) {
	req := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	c, io := newTestConnection(t, req, func(c *Connection) {
		c.SetResponse(response.FromString("unreachable"))
	})

	c.Tick(EventReadable, time.Now())

	require.Contains(t, io.out.String(), "400 Bad Request")
}

func TestChunkedBodyWithTrailerIsParsed(t *testing.T) {
	var body string
	var trailer string

	handler := func(c *Connection) {
		body = string(c.Body())
		trailer, _ = c.Trailers().Get(headers.KindFooter, "X-Checksum")
		c.SetResponse(response.FromString("ok"))
	}

	req := "POST / HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"Trailer: X-Checksum\r\n" +
		"Connection: close\r\n\r\n" +
		"5\r\nhello\r\n" +
		"0\r\n" +
		"X-Checksum: abc123\r\n\r\n"

	c, io := newTestConnection(t, req, handler)

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeClosed, outcome)
	require.Equal(t, "hello", body)
	require.Equal(t, "abc123", trailer)
	require.Contains(t, io.out.String(), "200 OK")
}

func TestHTTP10RequestGetsHTTP10StatusLine(t *testing.T) {
	req := "GET / HTTP/1.0\r\nHost: x\r\n\r\n"
	c, io := newTestConnection(t, req, func(c *Connection) {
		c.SetResponse(response.FromString("hi"))
	})

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeClosed, outcome)
	require.Contains(t, io.out.String(), "HTTP/1.0 200 OK")
}

func TestUnsupportedVersionReturns505(t *testing.T) {
	req := "GET / HTTP/2.0\r\nHost: x\r\n\r\n"
	c, io := newTestConnection(t, req, func(c *Connection) {
		c.SetResponse(response.FromString("unreachable"))
	})

	outcome := c.Tick(EventReadable, time.Now())

	require.Equal(t, OutcomeClosed, outcome)
	require.Contains(t, io.out.String(), "HTTP/2.0 505 HTTP Version Not Supported")
}

func TestHandlerOmittingResponseGets500(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"
	c, io := newTestConnection(t, req, func(c *Connection) {})

	c.Tick(EventReadable, time.Now())

	require.Contains(t, io.out.String(), "500 Internal Server Error")
}
