package conn

import (
	"strconv"
	"strings"
	"time"

	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/internal/kind"
)

// writeBudget is 64 KiB. No write path applies it: onWritable and
// flushWriteBuf hand the whole pending writeBuf to Write, looping on
// short writes until it is drained or the socket would block.
const writeBudget = 64 * 1024

// statusText mirrors the handful of statuses this core itself emits;
// application-supplied Response.Status values outside this set keep
// their numeric code and get the reason phrase "Unknown".
var statusText = map[int]string{
	100: "Continue",
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	413: "Payload Too Large",
	500: "Internal Server Error",
	505: "HTTP Version Not Supported",
}

func statusLine(version string, code int) string {
	text, ok := statusText[code]
	if !ok {
		text = "Unknown"
	}

	return version + " " + strconv.Itoa(code) + " " + text
}

// requestVersion is the version echoed in a response's status line. A
// request line that failed to parse never populates c.line, so this
// falls back to HTTP/1.1.
func (c *Connection) requestVersion() string {
	if c.line.Version == "" {
		return "HTTP/1.1"
	}

	return c.line.Version
}

// buildHeaderBlock concatenates the status line and every header into
// one buffer, per spec.md §4.D's write-semantics rule that the
// serializer never fragments this into multiple small writes. Date,
// Content-Length (when known) and Connection are injected here,
// overriding any caller-supplied duplicate of those three names.
func (c *Connection) buildHeaderBlock(chunkedResponse bool) []byte {
	buf := c.resetScratch()
	buf = append(buf, statusLine(c.requestVersion(), c.resp.Status)...)
	buf = append(buf, "\r\n"...)

	c.resp.Iterate(func(name, value string) bool {
		if isInjectedHeader(name) {
			return true
		}

		buf = appendHeaderLine(buf, name, value)
		return true
	})

	buf = appendHeaderLine(buf, "Date", time.Now().UTC().Format(time.RFC1123))

	if chunkedResponse {
		buf = appendHeaderLine(buf, "Transfer-Encoding", "chunked")
	} else if c.resp.Size >= 0 {
		buf = appendHeaderLine(buf, "Content-Length", strconv.FormatInt(c.resp.Size, 10))
	}

	if c.keepAlive && !c.mustClose {
		buf = appendHeaderLine(buf, "Connection", "keep-alive")
	} else {
		buf = appendHeaderLine(buf, "Connection", "close")
	}

	buf = append(buf, "\r\n"...)

	c.scratch = buf
	return buf
}

// isInjectedHeader reports whether name is one of the three headers
// buildHeaderBlock injects itself, matched case-insensitively so a
// caller-supplied "content-length" doesn't slip through alongside the
// one this function adds (spec.md §4.D).
func isInjectedHeader(name string) bool {
	return strings.EqualFold(name, "Date") ||
		strings.EqualFold(name, "Content-Length") ||
		strings.EqualFold(name, "Connection")
}

func appendHeaderLine(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	buf = append(buf, '\r', '\n')
	return buf
}

// writeErrorResponse builds and queues a best-effort status-only
// response for protocol-level failures (spec.md §7): 400 for
// malformed-request, 413 for oversized-request, 505 for an unsupported
// version. No body, Connection: close.
func (c *Connection) writeErrorResponse(code int) {
	c.mustClose = true
	c.keepAlive = false
	c.pendingTermination = kind.WithError

	buf := c.resetScratch()
	buf = append(buf, statusLine(c.requestVersion(), code)...)
	buf = append(buf, "\r\n"...)
	buf = appendHeaderLine(buf, "Date", time.Now().UTC().Format(time.RFC1123))
	buf = appendHeaderLine(buf, "Content-Length", "0")
	buf = appendHeaderLine(buf, "Connection", "close")
	buf = append(buf, "\r\n"...)

	c.scratch = buf
	c.writeBuf = buf
	c.writeSent = 0
	c.state = HeadersSending
}

// writeContinue queues the interim "100 Continue" line written while in
// ContinueSending.
func (c *Connection) writeContinue() {
	buf := c.resetScratch()
	buf = append(buf, "HTTP/1.1 100 Continue\r\n\r\n"...)
	c.scratch = buf
	c.writeBuf = buf
	c.writeSent = 0
}

// appendChunkFrame hex-frames chunk into the chunked wire format used
// on the response side: "<hex-len>\r\n<bytes>\r\n", with a trailing
// "0\r\n\r\n" terminator when chunk is empty and final is true, grounded
// in the hex-length-prefixed framing used by indigo's
// internal/transport/http1 Serializer.
func appendChunkFrame(buf []byte, chunk []byte, final bool) []byte {
	if final {
		return append(buf, "0\r\n\r\n"...)
	}

	buf = strconv.AppendInt(buf, int64(len(chunk)), 16)
	buf = append(buf, '\r', '\n')
	buf = append(buf, chunk...)
	buf = append(buf, '\r', '\n')

	return buf
}

// queryArgsToHeaders splits a raw query string into KindQueryArg pairs.
func queryArgsToHeaders(h *headers.Store, raw string) {
	for len(raw) > 0 {
		amp := indexByte(raw, '&')
		var pair string
		if amp == -1 {
			pair, raw = raw, ""
		} else {
			pair, raw = raw[:amp], raw[amp+1:]
		}

		if pair == "" {
			continue
		}

		eq := indexByte(pair, '=')
		if eq == -1 {
			h.AddString(headers.KindQueryArg, pair, "")
		} else {
			h.AddString(headers.KindQueryArg, pair[:eq], pair[eq+1:])
		}
	}
}

// parseCookies splits a request's Cookie header into KindCookie pairs,
// one per "name=value" entry separated by "; " per RFC 6265 §4.2.2. The
// original libmicrohttpd parses these the same way, into its own
// request-cookie list.
func parseCookies(h *headers.Store, raw string) {
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		eq := indexByte(part, '=')
		if eq == -1 {
			h.AddString(headers.KindCookie, part, "")
			continue
		}

		h.AddString(headers.KindCookie, part[:eq], part[eq+1:])
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}

	return -1
}
