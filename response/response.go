// Package response implements the reference-counted Response object of
// spec.md §3/§4.B: a frozen payload plus an append-ordered header list,
// shared by value across connections and destroyed only once every
// referencing connection has released it.
package response

import (
	"errors"
	"io"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/http/httpguts"
)

// ErrInvalidHeader is returned by AddHeader when name or value contains
// TAB, CR, LF, or is empty, per spec.md §4.B.
var ErrInvalidHeader = errors.New("response: invalid header name or value")

// ReaderFunc produces body bytes on demand. It is invoked with the
// current stream position and a destination buffer, and returns the
// number of bytes written, Again if the producer has nothing ready yet
// (the FSM should retry later without advancing), EOF at end-of-stream,
// or any other error on failure, exactly as spec.md §4.B
// describes for the construct-from-callback contract.
type ReaderFunc func(ctx any, position int64, buf []byte) (n int, err error)

// Again is returned by a ReaderFunc to mean "no bytes ready, try later".
// It is not an error; the FSM must retry without treating the response
// as failed or advancing past CHUNKED_BODY_UNREADY / NORMAL_BODY_UNREADY.
var Again = errors.New("response: try again")

// EOF signals the producer has no more bytes; a normal, successful end
// of the body.
var EOF = errors.New("response: eof")

// UnknownSize marks a callback-backed response whose total size is not
// known in advance, forcing chunked framing on HTTP/1.1 connections.
const UnknownSize int64 = -1

type header struct {
	name, value string
}

// Response is immutable after its first send: the body source, the
// byte buffer or producer, and the Size are fixed at construction time;
// only the header list may still be mutated by the application up to
// that point, and the refcount is the only field that changes afterward.
type Response struct {
	mu      sync.Mutex
	refs    int
	headers []header

	Status int
	Size   int64

	buf []byte

	readerCtx  any
	reader     ReaderFunc
	freeReader func(ctx any)
}

// FromBuffer constructs a Response backed by an in-memory buffer.
// mustCopy duplicates buf into a private copy owned by the Response;
// otherwise the Response borrows buf, so later changes to buf show up in
// the body. mustCopy is the only flag: there is no separate must-free
// option, and a borrowed buf is never taken over by the Response.
func FromBuffer(buf []byte, mustCopy bool) *Response {
	body := buf
	if mustCopy {
		body = make([]byte, len(buf))
		copy(body, buf)
	}

	return &Response{
		Status: 200,
		Size:   int64(len(body)),
		buf:    body,
		refs:   1,
	}
}

// FromProducer constructs a Response whose body is generated on demand
// by reader, called with ctx as its first argument. size is UnknownSize
// when the total length isn't known ahead of time. free, if non-nil, is
// invoked exactly once when the Response is finally destroyed, giving
// the application a chance to release ctx.
func FromProducer(size int64, reader ReaderFunc, ctx any, free func(ctx any)) *Response {
	return &Response{
		Status:     200,
		Size:       size,
		reader:     reader,
		readerCtx:  ctx,
		freeReader: free,
		refs:       1,
	}
}

// FromString is Public Surface sugar over FromBuffer for the common case
// of a small, textual body.
func FromString(s string) *Response {
	return FromBuffer([]byte(s), true)
}

// FromJSON marshals v and returns a Response with Content-Type set to
// application/json, using the same encoder every pack example reaches
// for instead of the standard library's reflection-heavy encoding/json.
func FromJSON(v any) (*Response, error) {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return nil, err
	}

	r := FromBuffer(body, false)
	r.AddHeader("Content-Type", "application/json")

	return r, nil
}

// FromFile constructs a producer-backed Response that streams path
// through the connection's normal write path. The teacher's
// core/sendfile package offered a zero-copy sendfile(2) fast path kept
// live behind a process-wide LRU file-descriptor cache; that cache is
// exactly the hidden process-wide state spec.md §9 singles out, so this
// drops the syscall fast path and streams through the Response's
// ordinary callback contract instead — os.File already satisfies it via
// ReadAt with no extra state to own or leak.
func FromFile(path string) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return FromProducer(info.Size(), func(ctx any, position int64, buf []byte) (int, error) {
		file := ctx.(*os.File)

		n, err := file.ReadAt(buf, position)
		if err != nil && err != io.EOF {
			return n, err
		}
		if n == 0 {
			return 0, EOF
		}

		return n, nil
	}, f, func(ctx any) {
		ctx.(*os.File).Close()
	}), nil
}

// Read copies up to len(buf) bytes starting at position into buf. For a
// buffer-backed Response this is a plain slice copy; for a
// producer-backed one it delegates to the reader callback. Read must not
// be called concurrently with itself on the same Response, but may be
// called concurrently with AddHeader/IncRef/Release.
func (r *Response) Read(position int64, buf []byte) (int, error) {
	if r.reader != nil {
		return r.reader(r.readerCtx, position, buf)
	}

	if position >= int64(len(r.buf)) {
		return 0, EOF
	}

	n := copy(buf, r.buf[position:])

	return n, nil
}

// IsStreaming reports whether the Response is backed by a producer
// callback rather than a fixed in-memory buffer.
func (r *Response) IsStreaming() bool {
	return r.reader != nil
}

// AddHeader appends a header, rejecting the spec-forbidden shapes:
// empty name/value or any byte the HTTP grammar can't carry in a header
// field (TAB is allowed inside a value by the grammar but spec.md §4.B
// explicitly widens the rejection to TAB/CR/LF for both name and value).
func (r *Response) AddHeader(name, value string) error {
	if !validHeaderToken(name, true) || !validHeaderToken(value, false) {
		return ErrInvalidHeader
	}

	r.mu.Lock()
	r.headers = append(r.headers, header{name: name, value: value})
	r.mu.Unlock()

	return nil
}

// DeleteHeader removes the first header matching both name and value,
// exactly as MHD_del_response_header (the original this generalizes)
// requires an exact name-and-value match rather than deleting every
// header with that name.
func (r *Response) DeleteHeader(name, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, h := range r.headers {
		if h.name == name && h.value == value {
			r.headers = append(r.headers[:i], r.headers[i+1:]...)
			return true
		}
	}

	return false
}

// Iterate visits headers in insertion order, stopping early when visit
// returns false.
func (r *Response) Iterate(visit func(name, value string) bool) {
	r.mu.Lock()
	snapshot := make([]header, len(r.headers))
	copy(snapshot, r.headers)
	r.mu.Unlock()

	for _, h := range snapshot {
		if !visit(h.name, h.value) {
			return
		}
	}
}

// IncRef bumps the reference count. Every Connection that attaches this
// Response to an exchange must call IncRef exactly once and Release
// exactly once, per spec.md §3's "+1 / -1" discipline.
func (r *Response) IncRef() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

// Release decrements the reference count, freeing the Response's
// producer context (via freeReader) once it reaches zero. Release must
// never be called more times than IncRef plus the implicit first
// reference held by the constructor.
func (r *Response) Release() {
	r.mu.Lock()
	r.refs--
	dead := r.refs <= 0
	r.mu.Unlock()

	if dead && r.freeReader != nil {
		r.freeReader(r.readerCtx)
	}
}

// validHeaderToken enforces spec.md §4.B's rejection list. httpguts
// permits a bare TAB inside a header value (the HTTP grammar allows it
// as folding whitespace); the spec widens rejection to TAB as well, so
// that check is added on top of httpguts's CR/LF/control-byte rejection.
func validHeaderToken(s string, isName bool) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] == '\t' {
			return false
		}
	}

	if isName {
		return httpguts.ValidHeaderFieldName(s)
	}

	return httpguts.ValidHeaderFieldValue(s)
}
