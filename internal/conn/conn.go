// Package conn implements the connection finite state machine of
// spec.md §4.D: incremental, non-blocking request parsing, application
// dispatch, and response serialization over a single accepted socket,
// all driven from a per-connection byte pool instead of per-request
// heap allocations (the discipline the teacher's core.Engine enforced
// with its Connection/Engine pair, generalized here into an explicit,
// resumable state machine instead of a single whole-buffer parse).
package conn

import (
	"net"
	"time"

	"github.com/dchest/uniuri"
	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/internal/kind"
	"github.com/searchktools/uhttpd/internal/pool"
	"github.com/searchktools/uhttpd/response"
)

// IO is the minimal non-blocking read/write/close surface the FSM drives.
// A plain TCP connection and the TLS shim both implement it, so the FSM
// itself never branches on TLS (spec.md §4.E, §9 "function-pointer
// dispatch for TLS vs plain").
type IO interface {
	Read(buf []byte) (n int, err error)
	Write(buf []byte) (n int, err error)
	Close() error
}

// ErrWouldBlock is returned by an IO implementation's Read/Write to
// signal the FSM should suspend and retry later, uniformly for plain
// EAGAIN and TLS would-block (spec.md §4.E).
var ErrWouldBlock = errWouldBlock

// RequestLine holds the parsed method/target/version of the request
// currently in flight.
type RequestLine struct {
	Method  string
	Target  string
	Path    string
	Query   string
	Version string
}

// AcceptPolicy is called once headers are parsed. Returning false stops
// an Expect: 100-continue from being honored; the request is otherwise
// processed as usual, and false neither refuses it nor closes the
// connection.
type AcceptPolicy func(line RequestLine, h *headers.Store) bool

// Handler is the application's request callback. It receives the parsed
// request and must attach a Response via SetResponse before returning.
type Handler func(c *Connection)

// NotifyCompleted is invoked exactly once per connection when it reaches
// Closed, reporting why.
type NotifyCompleted func(c *Connection, reason kind.Termination)

// Logger is the minimal logging surface every ambient component logs
// through, matching the teacher's own log.Printf call sites but routed
// through one seam so a host can swap implementations.
type Logger interface {
	Printf(format string, args ...any)
}

// Options bundles the per-connection knobs that come from daemon
// configuration, so Connection doesn't need a back-reference typed to
// the daemon package (avoiding an import cycle; spec.md §9 notes the
// Daemon->Connection link is ownership, Connection->Daemon is a
// non-owning back reference used only for config lookup — Options is
// that lookup, pre-resolved at connection creation).
type Options struct {
	PoolInitialSize int
	PoolMaxSize     int
	IdleTimeout     time.Duration
	MaxBodySize     int64
	Handler         Handler
	AcceptPolicy    AcceptPolicy
	NotifyCompleted NotifyCompleted
	Logger          Logger
	Panic           func(recovered any)
}

// Connection is one accepted socket and its in-flight exchange, per
// spec.md §3's Connection data model.
type Connection struct {
	io     IO
	remote net.Addr
	opts   Options

	pool  *pool.Pool
	hdrs  *headers.Store
	trail *headers.Store

	state State

	readBuf    []byte
	readFilled int

	line   RequestLine
	parser requestParser
	body   bodyState

	expectContinue bool
	mustClose      bool
	clientClosed   bool
	keepAlive      bool

	resp      *response.Response
	writeBuf  []byte
	writeSent int
	bodyPos   int64
	scratch   []byte

	// pendingTermination is the code the exchange currently in flight
	// will be reported with once it reaches BodySent/FootersSent, so an
	// error that's surfaced to the client as a response body (a 400, a
	// recovered panic's 500, ...) still reports as with-error rather
	// than completed-ok.
	pendingTermination kind.Termination

	lastActivity time.Time
	id           string

	tlsInfo *TLSInfo
}

// TLSInfo is reported by the TLS shim's Info method and surfaced
// through connection-info queries (spec.md §4.G).
type TLSInfo struct {
	Version     uint16
	CipherSuite uint16
	ServerName  string
}

// New creates a freshly accepted Connection. io must already be in
// non-blocking mode; TLS wrapping, if any, happens before New is called
// (the shim itself implements IO).
func New(io IO, remote net.Addr, opts Options) *Connection {
	if opts.PoolInitialSize <= 0 {
		opts.PoolInitialSize = pool.DefaultSize
	}

	p := pool.New(opts.PoolInitialSize, opts.PoolMaxSize)

	c := &Connection{
		io:      io,
		remote:  remote,
		opts:    opts,
		pool:    p,
		hdrs:    headers.New(p),
		trail:   headers.New(p),
		state:   Init,
		readBuf: make([]byte, 4096),
		id:      uniuri.NewLen(8),
	}
	c.resetRequestState()
	c.touch()

	return c
}

// RemoteAddr returns the connection's remote address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.remote
}

// ID returns a short random identifier for this connection, used only
// to correlate log lines for one connection across ticks.
func (c *Connection) ID() string {
	return c.id
}

// State returns the FSM's current state.
func (c *Connection) State() State {
	return c.state
}

// Line returns the parsed request line of the in-flight exchange.
func (c *Connection) Line() RequestLine {
	return c.line
}

// Headers returns the request-scoped header/cookie/query/form store.
func (c *Connection) Headers() *headers.Store {
	return c.hdrs
}

// Trailers returns the footer store populated by a chunked upload.
func (c *Connection) Trailers() *headers.Store {
	return c.trail
}

// Body returns the fully buffered upload body of the in-flight request,
// valid from BodyReceived onward.
func (c *Connection) Body() []byte {
	return c.body.buf
}

// TLSInfo reports TLS parameters for a TLS-wrapped connection, read from
// the shim on each call, or nil for plain connections.
func (c *Connection) TLSInfo() *TLSInfo {
	if s, ok := c.io.(interface{ Info() TLSInfo }); ok {
		info := s.Info()
		return &info
	}

	return c.tlsInfo
}

// SetResponse attaches resp to the in-flight exchange, taking a
// reference on it (spec.md §3 "+1 refcount held"). The application
// handler calls this before returning; the daemon may also call it
// asynchronously to queue a response on a suspended connection
// (spec.md §4.G "queue response on connection").
func (c *Connection) SetResponse(resp *response.Response) {
	resp.IncRef()
	c.resp = resp
}

func (c *Connection) touch() {
	c.lastActivity = time.Now()
}

// IdleFor reports how long the connection has been since its last I/O
// activity, for idle-tick timeout evaluation.
func (c *Connection) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.lastActivity)
}

// resetRequestState clears everything scoped to a single request/
// response exchange, without touching the pool (the caller resets the
// pool to its mark separately, at the same keep-alive transition,
// exactly as spec.md §4.D's write-semantics section prescribes).
func (c *Connection) resetRequestState() {
	c.line = RequestLine{}
	c.parser = requestParser{}
	c.body = bodyState{}
	c.expectContinue = false
	c.hdrs.Reset()
	c.trail.Reset()
	c.writeBuf = nil
	c.writeSent = 0
	c.bodyPos = 0
	c.pendingTermination = kind.CompletedOK

	if c.resp != nil {
		c.resp.Release()
		c.resp = nil
	}
}

// finishExchange runs the keep-alive-or-close decision of spec.md §4.D's
// post-BodySent/FootersSent transition rule.
func (c *Connection) finishExchange() {
	if c.mustClose || !c.keepAlive {
		c.state = Closed
		return
	}

	c.pool.ResetToMark()
	c.resetRequestState()
	c.state = Init
}

// consume discards the first n bytes of the read buffer, sliding the
// remaining unconsumed prefix down to index 0. This keeps the invariant
// from spec.md §3 that the read buffer always holds exactly the
// unconsumed prefix of the inbound stream.
func (c *Connection) consume(n int) {
	remaining := c.readFilled - n
	copy(c.readBuf, c.readBuf[n:c.readFilled])
	c.readFilled = remaining
}

// resetScratch returns c.scratch truncated to zero length, for building
// one serialized frame (status line, chunk header, ...) at a time. This
// is separate from the pool: those bytes need to survive a flush that
// may span several Write calls, and the pool's Allocate(0) return would
// keep the allocator thinking that space is still free to hand out.
func (c *Connection) resetScratch() []byte {
	c.scratch = c.scratch[:0]
	return c.scratch
}

// growReadBuf doubles the read buffer when it is full and more input is
// to be read. It has no upper bound: neither it nor its caller compares
// the buffer size against MaxBodySize.
func (c *Connection) growReadBuf() {
	grown := make([]byte, len(c.readBuf)*2)
	copy(grown, c.readBuf[:c.readFilled])
	c.readBuf = grown
}

// Destroy releases the connection's pool and socket. Called once the
// FSM reaches Closed and the scheduler is done with it.
func (c *Connection) Destroy() {
	if c.resp != nil {
		c.resp.Release()
		c.resp = nil
	}

	c.pool.Destroy()
	_ = c.io.Close()
}
