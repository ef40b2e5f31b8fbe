// Package uhttpd is the Public Surface of an embeddable HTTP/1.1
// server core: start/stop a Daemon, build Response objects, and read
// an in-flight request's line, headers, cookies, query/form args and
// body from inside a request handler.
//
// It follows the teacher's own top-level package shape (a thin facade
// over internal/ and a couple of leaf packages callers construct
// directly), generalized from a fixed HTTP/2-capable engine into a
// library whose callers choose the pieces (TLS or not, which execution
// mode, which accept policy) at construction time instead of compiling
// them all in.
package uhttpd

import (
	"net"

	"github.com/searchktools/uhttpd/config"
	"github.com/searchktools/uhttpd/daemon"
	"github.com/searchktools/uhttpd/internal/conn"
	"github.com/searchktools/uhttpd/internal/headers"
	"github.com/searchktools/uhttpd/internal/kind"
	"github.com/searchktools/uhttpd/response"
)

// Re-exported so callers never need to import internal/conn or
// internal/kind directly.
type (
	// Connection is the in-flight accepted socket and exchange a
	// Handler is invoked with.
	Connection = conn.Connection
	// RequestLine is the parsed method/target/version of the request
	// currently in flight on a Connection.
	RequestLine = conn.RequestLine
	// Handler is the application's request callback.
	Handler = conn.Handler
	// AcceptPolicy is called once headers are parsed; returning false
	// stops Expect: 100-continue from being honored and has no other effect.
	AcceptPolicy = conn.AcceptPolicy
	// NotifyCompleted is invoked once per connection when it closes.
	NotifyCompleted = conn.NotifyCompleted
	// Logger is the Printf-style logging surface the core logs through.
	Logger = conn.Logger
	// Termination reports why a connection closed.
	Termination = kind.Termination
	// Option configures a Server at construction time.
	Option = config.Option
	// Mode selects one of the three fixed execution models.
	Mode = config.Mode
)

const (
	ModeThreaded     = config.ModeThreaded
	ModeInternalPoll = config.ModeInternalPoll
	ModeExternalPoll = config.ModeExternalPoll
)

// Server wraps a running (or not-yet-started) Daemon, giving a caller
// one type to hold instead of reaching into config/daemon directly.
type Server struct {
	cfg *config.Config
	d   *daemon.Daemon
}

// New builds a Server from the given options. It does not bind a
// socket; call Start for that.
func New(opts ...Option) (*Server, error) {
	cfg := config.New(opts...)

	d, err := daemon.New(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, d: d}, nil
}

// Start binds the listen socket and, for ModeThreaded/ModeInternalPoll,
// begins serving in the background. For ModeExternalPoll it only binds
// the socket; drive the loop yourself with FillReadinessSets/Run/GetTimeout.
func (s *Server) Start() error {
	return s.d.Start()
}

// Stop closes every live connection, joins background goroutines, and
// closes the listen socket.
func (s *Server) Stop() error {
	return s.d.Stop()
}

// Addr reports the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.d.Addr()
}

// QueueResponse attaches resp to c from outside the request handler.
// It does not move c's FSM into the response-writing states.
func (s *Server) QueueResponse(c *Connection, resp *response.Response) {
	s.d.QueueResponse(c, resp)
}

// FillReadinessSets, Run and GetTimeout are the ModeExternalPoll
// surface: use them only when the Server was configured with
// ModeExternalPoll and you are driving your own event loop.
func (s *Server) FillReadinessSets() daemon.Readiness { return s.d.FillReadinessSets() }
func (s *Server) Run(readyRead, readyWrite []int)     { s.d.Run(readyRead, readyWrite) }
func (s *Server) GetTimeout() int64                   { return int64(s.d.GetTimeout()) }

// Header-store kind constants, re-exported for handlers that want to
// iterate a Connection's stores directly instead of using the typed
// accessors below.
const (
	KindRequestHeader  = headers.KindRequestHeader
	KindResponseHeader = headers.KindResponseHeader
	KindCookie         = headers.KindCookie
	KindQueryArg       = headers.KindQueryArg
	KindFormArg        = headers.KindFormArg
	KindFooter         = headers.KindFooter
)

// RequestHeader returns the first value of name among the request's
// headers, case-insensitively.
func RequestHeader(c *Connection, name string) (string, bool) {
	return c.Headers().Get(headers.KindRequestHeader, name)
}

// QueryArg returns the first value of name among the request's query
// string arguments.
func QueryArg(c *Connection, name string) (string, bool) {
	return c.Headers().Get(headers.KindQueryArg, name)
}

// FormArg returns the first value of name among the request's decoded
// form body (urlencoded or multipart).
func FormArg(c *Connection, name string) (string, bool) {
	return c.Headers().Get(headers.KindFormArg, name)
}

// Cookie returns the first value of name among the request's cookies.
func Cookie(c *Connection, name string) (string, bool) {
	return c.Headers().Get(headers.KindCookie, name)
}

// Trailer returns the first value of name among the request's chunked
// upload trailers (footers), valid from FOOTERS_RECEIVED onward.
func Trailer(c *Connection, name string) (string, bool) {
	return c.Trailers().Get(headers.KindFooter, name)
}

// Reply is sugar for c.SetResponse, matching the verb the rest of this
// surface's accessor functions use.
func Reply(c *Connection, resp *response.Response) {
	c.SetResponse(resp)
}

var (
	// FromBuffer constructs a Response from an in-memory buffer.
	FromBuffer = response.FromBuffer
	// FromString constructs a Response from a string body.
	FromString = response.FromString
	// FromJSON marshals v into a JSON Response body.
	FromJSON = response.FromJSON
	// FromFile streams a file from disk as the Response body.
	FromFile = response.FromFile
	// FromProducer constructs a callback-driven streaming Response.
	FromProducer = response.FromProducer
)

// Again signals a streaming Response's producer has nothing ready yet;
// the connection will retry later without failing the exchange.
var Again = response.Again

// UnknownSize marks a streaming Response whose total length isn't
// known ahead of time, forcing chunked framing.
const UnknownSize = response.UnknownSize

// Functional options, re-exported under this package's own names so
// callers depend only on uhttpd, not config.
var (
	WithPort            = config.WithPort
	WithBindAddress     = config.WithBindAddress
	WithMode            = config.WithMode
	WithMaxConnections  = config.WithMaxConnections
	WithIdleTimeout     = config.WithIdleTimeout
	WithPoolSize        = config.WithPoolSize
	WithMaxBodySize     = config.WithMaxBodySize
	WithTLS             = config.WithTLS
	WithTLSCipherSuites = config.WithTLSCipherSuites
	WithAutoCertTLS     = config.WithAutoCertTLS
	WithHandler         = config.WithHandler
	WithAcceptPolicy    = config.WithAcceptPolicy
	WithNotifyCompleted = config.WithNotifyCompleted
	WithLogger          = config.WithLogger
	WithPanicHandler    = config.WithPanicHandler
)
