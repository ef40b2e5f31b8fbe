package conn

import (
	"bytes"
	"strings"

	"github.com/searchktools/uhttpd/internal/kind"
)

// requestParser holds the incremental state of request-line and header
// parsing across suspend points, so a read that arrives split across
// several socket reads resumes instead of re-scanning from the start
// (spec.md §4.D states 1-4; the teacher's ParseRequest parsed a whole
// buffer at once, which this generalizes into a resumable scan).
type requestParser struct {
	lineDone bool
	// pendingName/pendingValue hold a header whose continuation line
	// (leading whitespace on the next line) hasn't been confirmed
	// absent yet; folding appends to pendingValue with one space.
	pendingName  string
	pendingValue string
	havePending  bool
}

// parseErr wraps kind.MalformedRequest for the cases this file detects.
func parseErr() error {
	return kind.New(kind.MalformedRequest, errMalformed)
}

var errMalformed = malformedError("malformed request")

type malformedError string

func (e malformedError) Error() string { return string(e) }

// findLine returns the line (without its terminator) and the offset of
// the first byte past the terminator, accepting bare CR or bare LF as a
// lenient line end per spec.md §4.D, while writing CRLF is canonical.
func findLine(buf []byte) (line []byte, next int, ok bool) {
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			return buf[:i], i + 1, true
		case '\r':
			if i+1 == len(buf) {
				// may be the first half of a CRLF split across reads
				return nil, 0, false
			}
			if buf[i+1] == '\n' {
				return buf[:i], i + 2, true
			}
			return buf[:i], i + 1, true
		}
	}

	return nil, 0, false
}

// parseRequestLine splits "METHOD TARGET VERSION" into its three fields.
func parseRequestLine(line []byte) (RequestLine, error) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return RequestLine{}, parseErr()
	}

	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return RequestLine{}, parseErr()
	}

	method := string(line[:sp1])
	target := string(rest[:sp2])
	version := string(rest[sp2+1:])

	if !validMethod(method) || !validVersion(version) || !validTarget(target) {
		return RequestLine{}, parseErr()
	}

	path, query := target, ""
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path, query = target[:idx], target[idx+1:]
	}

	return RequestLine{Method: method, Target: target, Path: path, Query: query, Version: version}, nil
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}

	for i := 0; i < len(m); i++ {
		if m[i] <= ' ' || m[i] == 0x7f {
			return false
		}
	}

	return true
}

// validVersion accepts any syntactically well-formed "HTTP/x.y" token.
// Whether the version is actually supported is processHeaders' call to
// make (unknown versions become 505, not 400).
func validVersion(v string) bool {
	const prefix = "HTTP/"
	if !strings.HasPrefix(v, prefix) {
		return false
	}

	rest := v[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return false
	}

	major, minor := rest[:dot], rest[dot+1:]
	return isDigits(major) && isDigits(minor)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// validTarget rejects control bytes (including NUL) anywhere in the
// request target, matching end-to-end scenario 5 of spec.md §8.
func validTarget(target string) bool {
	if target == "" {
		return false
	}

	for i := 0; i < len(target); i++ {
		if target[i] < 0x20 || target[i] == 0x7f {
			return false
		}
	}

	return true
}

// splitHeaderLine parses "Name: value", trimming surrounding whitespace
// from the value as spec.md §4.D requires.
func splitHeaderLine(line []byte) (name, value string, ok bool) {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", false
	}

	name = string(bytes.TrimSpace(line[:colon]))
	value = string(bytes.TrimSpace(line[colon+1:]))

	if name == "" {
		return "", "", false
	}

	return name, value, true
}

// isContinuation reports whether line begins with folding whitespace,
// meaning it continues the previous header's value (spec.md §4.D).
func isContinuation(line []byte) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}
