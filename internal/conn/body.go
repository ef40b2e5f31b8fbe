package conn

import (
	"io"

	"github.com/indigo-web/chunkedbody"
	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/internal/kind"
)

// bodyState tracks upload-body collection across BODY_RECEIVED /
// FOOTERS_RECEIVED, for both identity (Content-Length) and chunked
// transfer codings (spec.md §4.D).
type bodyState struct {
	chunked    bool
	hasTrailer bool

	contentLength int64
	remaining     int64

	chunkedParser *chunkedbody.Parser
	chunkedDone   bool

	buf []byte
}

var chunkedParserSettings = chunkedbody.DefaultSettings()

// initBody prepares bodyState for the request described by hdrs,
// enforcing the mutual exclusivity of Content-Length and
// Transfer-Encoding: chunked (spec.md §4.D transition rule).
func (c *Connection) initBody() error {
	cl, hasCL := c.hdrs.Get(headers.KindRequestHeader, "Content-Length")
	te, hasTE := c.hdrs.Get(headers.KindRequestHeader, "Transfer-Encoding")
	chunked := hasTE && te == "chunked"

	if hasCL && chunked {
		return kind.New(kind.MalformedRequest, errMalformed)
	}

	b := &c.body
	*b = bodyState{}

	if chunked {
		b.chunked = true
		_, b.hasTrailer = c.hdrs.Get(headers.KindRequestHeader, "Trailer")
		parser := chunkedbody.NewParser(chunkedParserSettings)
		b.chunkedParser = parser
		return nil
	}

	if hasCL {
		n, ok := parseContentLength(cl)
		if !ok {
			return kind.New(kind.MalformedRequest, errMalformed)
		}

		b.contentLength = n
		b.remaining = n
		return nil
	}

	return nil
}

func parseContentLength(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	var n int64
	for i := 0; i < len(s); i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return 0, false
		}
		n = n*10 + int64(d-'0')
	}

	return n, true
}

// feedBody consumes already-buffered bytes from the read buffer into
// the body, returning true once the body (and, for chunked, trailers)
// is fully collected. maxSize enforces the configured upload limit,
// returning oversized-request once exceeded.
func (c *Connection) feedBody(maxSize int64) (done bool, err error) {
	b := &c.body

	if b.chunked {
		return c.feedChunkedBody(maxSize)
	}

	if b.remaining == 0 {
		return true, nil
	}

	n := int64(c.readFilled)
	if n > b.remaining {
		n = b.remaining
	}
	if n == 0 {
		return false, nil
	}

	if maxSize > 0 && int64(len(b.buf))+n > maxSize {
		return false, kind.New(kind.OversizedRequest, errOversized)
	}

	if err := c.appendBody(c.readBuf[:n]); err != nil {
		return false, err
	}
	c.consume(int(n))
	b.remaining -= n

	return b.remaining == 0, nil
}

// appendBody grows the in-flight upload body out of the connection's
// pool instead of the heap, the way the header store does for its own
// name/value bytes: the body is request-scoped exactly like a header,
// so it's reclaimed by the same ResetToMark at the keep-alive boundary.
// The read buffer isn't a candidate for the same treatment (it outlives
// ResetToMark across a keep-alive request boundary), nor are the
// per-tick response-write buffers in fsm.go (plain loop-local scratch,
// never retained past one flush); see DESIGN.md.
func (c *Connection) appendBody(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	b := &c.body

	if b.buf == nil {
		b.buf = c.pool.Allocate(len(chunk))
		if b.buf == nil {
			return kind.New(kind.OversizedRequest, errOversized)
		}
		copy(b.buf, chunk)
		return nil
	}

	grown := c.pool.Reallocate(b.buf, len(b.buf)+len(chunk))
	if grown == nil {
		return kind.New(kind.OversizedRequest, errOversized)
	}

	copy(grown[len(b.buf):], chunk)
	b.buf = grown

	return nil
}

func (c *Connection) feedChunkedBody(maxSize int64) (done bool, err error) {
	b := &c.body

	if b.chunkedDone {
		return true, nil
	}

	if c.readFilled == 0 {
		return false, nil
	}

	chunk, extra, perr := b.chunkedParser.Parse(c.readBuf[:c.readFilled], b.hasTrailer)
	consumed := c.readFilled - len(extra)

	if len(chunk) > 0 {
		if maxSize > 0 && int64(len(b.buf))+int64(len(chunk)) > maxSize {
			return false, kind.New(kind.OversizedRequest, errOversized)
		}
		if err := c.appendBody(chunk); err != nil {
			return false, err
		}
	}

	switch perr {
	case nil:
		// extra is the unconsumed remainder still awaiting more input;
		// leave it buffered and only drop what was actually parsed.
		c.consume(consumed)
		return false, nil
	case io.EOF:
		b.chunkedDone = true

		if b.hasTrailer {
			// extra holds the trailer lines; read them out of the
			// buffer before consume()'s in-place compaction can shift
			// or overwrite the memory extra aliases.
			parseTrailerLines(c.trail, extra)
			c.consume(c.readFilled)
		} else {
			// extra may hold the start of a pipelined next request;
			// keep it buffered, only drop the consumed chunk framing.
			c.consume(consumed)
		}

		return true, nil
	default:
		return false, kind.New(kind.MalformedRequest, perr)
	}
}

// parseTrailerLines folds raw CRLF-separated "Name: value" lines left
// over after the zero-length chunk terminator into the footer store,
// per spec.md §4.D state 8 FOOTERS_RECEIVED.
func parseTrailerLines(trail *headers.Store, raw []byte) {
	for len(raw) > 0 {
		line, next, ok := findLine(raw)
		if !ok {
			return
		}

		if len(line) == 0 {
			return
		}

		if name, value, ok := splitHeaderLine(line); ok {
			trail.AddString(headers.KindFooter, name, value)
		}

		raw = raw[next:]
	}
}

var errOversized = malformedError("request body exceeds configured limit")
