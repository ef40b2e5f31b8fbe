package conn

import (
	"errors"
	"strings"
	"time"

	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/internal/kind"
	"github.com/searchktools/uhttpd/response"
)

// Event is one of the three triggers spec.md §4.D names that drive an
// FSM tick.
type Event uint8

const (
	EventReadable Event = iota
	EventWritable
	EventIdle
)

// Outcome tells the scheduler what to do after a tick: keep polling,
// stop polling until more data/space is available, or the connection
// reached Closed and should be reaped.
type Outcome uint8

const (
	OutcomeContinue Outcome = iota
	OutcomeSuspendRead
	OutcomeSuspendWrite
	OutcomeClosed
)

// Tick advances the FSM in response to ev. now is used for idle-tick
// timeout evaluation and is otherwise unused.
func (c *Connection) Tick(ev Event, now time.Time) Outcome {
	if c.state == Closed {
		return OutcomeClosed
	}

	switch ev {
	case EventIdle:
		return c.onIdle(now)
	case EventReadable:
		c.touch()
		return c.onReadable()
	case EventWritable:
		c.touch()
		return c.onWritable()
	default:
		return OutcomeContinue
	}
}

func (c *Connection) onIdle(now time.Time) Outcome {
	if c.opts.IdleTimeout <= 0 {
		return OutcomeContinue
	}

	if c.IdleFor(now) <= c.opts.IdleTimeout {
		return OutcomeContinue
	}

	c.state = Closed
	c.report(kind.TerminationTimeout)

	return OutcomeClosed
}

// onReadable pulls as much as is available from the socket without
// blocking, then advances the request-side states as far as the
// buffered bytes allow.
func (c *Connection) onReadable() Outcome {
	for {
		n, err := c.readMore()
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				break
			}

			return c.failRead(err)
		}

		if n == 0 {
			return c.handleEOF()
		}

		if c.readFilled < len(c.readBuf) {
			break
		}
	}

	return c.driveRequestSide()
}

func (c *Connection) readMore() (int, error) {
	if c.readFilled == len(c.readBuf) {
		c.growReadBuf()
	}

	n, err := c.io.Read(c.readBuf[c.readFilled:])
	if err != nil {
		return 0, err
	}

	c.readFilled += n

	return n, nil
}

func (c *Connection) handleEOF() Outcome {
	c.clientClosed = true

	if c.state == Init {
		c.state = Closed
		c.report(kind.CompletedOK)
		return OutcomeClosed
	}

	c.state = Closed
	c.report(kind.WithError)

	return OutcomeClosed
}

func (c *Connection) failRead(err error) Outcome {
	c.state = Closed
	c.report(kind.WithError)

	if c.opts.Logger != nil {
		c.opts.Logger.Printf("connection %s: read failed from %s: %v", c.id, c.remote, err)
	}

	return OutcomeClosed
}

// driveRequestSide steps through Init..FootersReceived as far as
// buffered data permits, stopping to suspend-for-read when a state
// needs bytes that haven't arrived yet, or moving on to the
// response-writing half once a handler has produced a Response.
func (c *Connection) driveRequestSide() Outcome {
	for {
		switch c.state {
		case Init:
			ok, malformed := c.tryParseRequestLine()
			if !ok {
				return OutcomeSuspendRead
			}
			if malformed {
				c.writeErrorResponse(400)
				return c.onWritable()
			}

		case URLReceived, HeaderPartReceived:
			done, err := c.tryParseHeaders()
			if err != nil {
				c.writeErrorResponse(errorStatus(err))
				return c.onWritable()
			}
			if !done {
				c.state = HeaderPartReceived
				return OutcomeSuspendRead
			}

			c.state = HeadersReceived

		case HeadersReceived:
			if err := c.processHeaders(); err != nil {
				c.writeErrorResponse(errorStatus(err))
				return c.onWritable()
			}

			c.state = HeadersProcessed

		case HeadersProcessed:
			if c.expectContinue {
				c.writeContinue()
				c.state = ContinueSending
				return c.onWritable()
			}

			c.state = BodyReceived
			continue

		case ContinueSent:
			c.state = BodyReceived
			continue

		case BodyReceived:
			done, err := c.feedBody(c.opts.MaxBodySize)
			if err != nil {
				c.writeErrorResponse(errorStatus(err))
				return c.onWritable()
			}
			if !done {
				return OutcomeSuspendRead
			}

			if c.body.chunked && c.body.hasTrailer {
				c.state = FootersReceived
				continue
			}

			return c.dispatch()

		case FootersReceived:
			return c.dispatch()

		default:
			return OutcomeContinue
		}
	}
}

// dispatch runs query/form parsing and the application handler, then
// prepares the response-writing half.
func (c *Connection) dispatch() Outcome {
	if c.line.Query != "" {
		queryArgsToHeaders(c.hdrs, c.line.Query)
	}

	if len(c.body.buf) > 0 {
		if err := c.parseForm(); err != nil {
			c.writeErrorResponse(errorStatus(err))
			return c.onWritable()
		}
	}

	c.runHandler()

	if c.resp == nil {
		c.resp = response.FromString("")
		c.resp.Status = 500
	}

	c.writeBuf = c.buildHeaderBlock(c.resp.IsStreaming() && c.resp.Size < 0)
	c.writeSent = 0
	c.state = HeadersSending

	return c.onWritable()
}

// runHandler invokes the application handler behind a recover, so a
// panicking handler surfaces to the client as a 500 and to
// NotifyCompleted as an internal error instead of taking down the
// scheduler goroutine it runs on (spec.md §7's internal-error kind).
func (c *Connection) runHandler() {
	if c.opts.Handler == nil {
		return
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if c.opts.Panic != nil {
			c.opts.Panic(r)
		}

		if c.resp != nil {
			c.resp.Release()
		}

		c.resp = response.FromString("")
		c.resp.Status = 500
		c.mustClose = true
		c.pendingTermination = kind.WithError
	}()

	c.opts.Handler(c)
}

// tryParseRequestLine attempts to consume one line from the buffered
// read data as the request line. ok is false if no full line is
// buffered yet; malformed is true if the line that was consumed
// doesn't parse.
func (c *Connection) tryParseRequestLine() (ok, malformed bool) {
	line, next, ok := findLine(c.readBuf[:c.readFilled])
	if !ok {
		return false, false
	}

	parsed, err := parseRequestLine(line)
	c.consume(next)

	if err != nil {
		return true, true
	}

	c.line = parsed
	c.state = URLReceived

	return true, false
}

// tryParseHeaders consumes as many complete header lines as are
// buffered, folding continuation lines, stopping at the blank line
// terminator. Returns done=true once the blank line is consumed.
func (c *Connection) tryParseHeaders() (done bool, err error) {
	for {
		line, next, ok := findLine(c.readBuf[:c.readFilled])
		if !ok {
			return false, nil
		}

		if len(line) == 0 {
			c.consume(next)
			c.commitPendingHeader()
			return true, nil
		}

		if isContinuation(line) {
			if !c.parser.havePending {
				return false, kind.New(kind.MalformedRequest, errMalformed)
			}

			c.parser.pendingValue += " " + string(trimLeft(line))
			c.consume(next)
			continue
		}

		c.commitPendingHeader()

		name, value, ok := splitHeaderLine(line)
		if !ok {
			return false, kind.New(kind.MalformedRequest, errMalformed)
		}

		c.parser.pendingName = name
		c.parser.pendingValue = value
		c.parser.havePending = true

		c.consume(next)
	}
}

func (c *Connection) commitPendingHeader() {
	if !c.parser.havePending {
		return
	}

	c.hdrs.AddString(headers.KindRequestHeader, c.parser.pendingName, c.parser.pendingValue)
	c.parser.havePending = false
}

func trimLeft(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}

	return b[i:]
}

// processHeaders runs the HEADERS_RECEIVED pre-application decisions:
// keep-alive version rules, Expect: 100-continue, Content-Length/
// chunked validation, and the accept-policy callback.
func (c *Connection) processHeaders() error {
	switch c.line.Version {
	case "HTTP/1.1":
		connHdr, _ := c.hdrs.Get(headers.KindRequestHeader, "Connection")
		c.keepAlive = !strings.EqualFold(connHdr, "close")
	case "HTTP/1.0":
		connHdr, _ := c.hdrs.Get(headers.KindRequestHeader, "Connection")
		c.keepAlive = strings.EqualFold(connHdr, "keep-alive")
	default:
		return kind.New(kind.MalformedRequest, errUnsupportedVersion)
	}

	if cookieHdr, ok := c.hdrs.Get(headers.KindRequestHeader, "Cookie"); ok {
		parseCookies(c.hdrs, cookieHdr)
	}

	if err := c.initBody(); err != nil {
		return err
	}

	expect, hasExpect := c.hdrs.Get(headers.KindRequestHeader, "Expect")
	admitted := true
	if c.opts.AcceptPolicy != nil {
		admitted = c.opts.AcceptPolicy(c.line, c.hdrs)
	}

	c.expectContinue = hasExpect && expect == "100-continue" && c.line.Version == "HTTP/1.1" && admitted

	return nil
}

var errUnsupportedVersion = malformedError("unsupported HTTP version")

// errorStatus maps an error produced along the request-parsing path to
// the best-effort status code spec.md §7 assigns it.
func errorStatus(err error) int {
	var ke *kind.Error
	if errors.As(err, &ke) {
		switch ke.Kind {
		case kind.OversizedRequest:
			return 413
		case kind.MalformedRequest:
			if errors.Is(ke.Cause, errUnsupportedVersion) {
				return 505
			}
			return 400
		}
	}

	return 400
}

// onWritable flushes whatever is pending in writeBuf, then advances the
// response-writing states as far as it can without blocking.
func (c *Connection) onWritable() Outcome {
	if len(c.writeBuf) > c.writeSent {
		n, err := c.io.Write(c.writeBuf[c.writeSent:])
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return OutcomeSuspendWrite
			}

			return c.failWrite(err)
		}

		c.writeSent += n

		if c.writeSent < len(c.writeBuf) {
			return OutcomeSuspendWrite
		}
	}

	return c.driveResponseSide()
}

func (c *Connection) failWrite(err error) Outcome {
	c.state = Closed
	c.report(kind.WithError)

	if c.opts.Logger != nil {
		c.opts.Logger.Printf("connection %s: write failed to %s: %v", c.id, c.remote, err)
	}

	return OutcomeClosed
}

func (c *Connection) driveResponseSide() Outcome {
	switch c.state {
	case ContinueSending:
		c.state = ContinueSent
		return c.driveRequestSide()

	case HeadersSending:
		c.state = HeadersSent
		fallthrough

	case HeadersSent:
		if c.resp == nil {
			// status-only error response queued by writeErrorResponse
			c.state = BodySent
			return c.driveResponseSide()
		}
		if c.resp.IsStreaming() && c.resp.Size < 0 {
			c.state = ChunkedBodyReady
		} else {
			c.state = NormalBodyReady
		}
		return c.driveResponseSide()

	case NormalBodyReady, NormalBodyUnready:
		return c.writeNormalBody()

	case ChunkedBodyReady, ChunkedBodyUnready:
		return c.writeChunkedBody()

	case BodySent, FootersSent:
		termination := c.pendingTermination
		c.finishExchange()
		if c.state == Closed {
			c.report(termination)
			return OutcomeClosed
		}
		return OutcomeContinue

	default:
		return OutcomeContinue
	}
}

func (c *Connection) writeNormalBody() Outcome {
	buf := make([]byte, 32*1024)

	for {
		n, err := c.resp.Read(c.bodyPos, buf)
		if n > 0 {
			c.bodyPos += int64(n)
			c.writeBuf = buf[:n]
			c.writeSent = 0

			outcome := c.flushWriteBuf()
			if outcome != OutcomeContinue {
				c.state = NormalBodyUnready
				return outcome
			}
		}

		if err != nil {
			if errors.Is(err, response.Again) {
				c.state = NormalBodyUnready
				return OutcomeSuspendWrite
			}

			if errors.Is(err, response.EOF) {
				c.state = BodySent
				return c.driveResponseSide()
			}

			c.state = Closed
			c.report(kind.WithError)
			return OutcomeClosed
		}

		if n == 0 {
			c.state = NormalBodyUnready
			return OutcomeSuspendWrite
		}
	}
}

func (c *Connection) writeChunkedBody() Outcome {
	raw := make([]byte, 32*1024)

	for {
		n, err := c.resp.Read(c.bodyPos, raw)

		if err != nil && errors.Is(err, response.EOF) {
			c.writeBuf = appendChunkFrame(c.resetScratch(), nil, true)
			c.scratch = c.writeBuf
			c.writeSent = 0
			outcome := c.flushWriteBuf()
			if outcome != OutcomeContinue {
				c.state = ChunkedBodyUnready
				return outcome
			}
			c.state = BodySent
			return c.driveResponseSide()
		}

		if err != nil && errors.Is(err, response.Again) {
			c.state = ChunkedBodyUnready
			return OutcomeSuspendWrite
		}

		if err != nil {
			c.state = Closed
			c.report(kind.WithError)
			return OutcomeClosed
		}

		if n == 0 {
			c.state = ChunkedBodyUnready
			return OutcomeSuspendWrite
		}

		c.bodyPos += int64(n)
		c.writeBuf = appendChunkFrame(c.resetScratch(), raw[:n], false)
		c.scratch = c.writeBuf
		c.writeSent = 0

		outcome := c.flushWriteBuf()
		if outcome != OutcomeContinue {
			c.state = ChunkedBodyUnready
			return outcome
		}
	}
}

// flushWriteBuf writes the current writeBuf fully or reports suspend,
// used by the body-writing loops above which build one frame at a time.
func (c *Connection) flushWriteBuf() Outcome {
	for c.writeSent < len(c.writeBuf) {
		n, err := c.io.Write(c.writeBuf[c.writeSent:])
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return OutcomeSuspendWrite
			}

			return c.failWrite(err)
		}

		c.writeSent += n
	}

	return OutcomeContinue
}

func (c *Connection) report(t kind.Termination) {
	if c.opts.NotifyCompleted != nil {
		c.opts.NotifyCompleted(c, t)
	}
}

// errWouldBlock is the sentinel an IO implementation's Read/Write
// returns to signal EAGAIN-equivalent backpressure. Plain sockets wrap
// syscall.EAGAIN with it; the TLS shim wraps its own would-block cases
// with it too, so this file never branches on which.
var errWouldBlock = errors.New("conn: would block")
