// Package headers implements the append-ordered, case-insensitive
// header store of spec.md §4.C. Every name/value byte lives in the
// connection's memory pool; the store itself only ever holds
// (pool handle, offset, length) triples, per the pool-and-index design
// note in spec.md §9 — never a raw slice that could be invalidated by a
// pool growth swapping out the backing array.
package headers

import (
	"strings"

	"github.com/searchktools/uhttpd/internal/pool"
)

// Kind tags what a stored pair represents, so lookups can be filtered
// the way spec.md §3 requires (request-header, response-header, cookie,
// GET-arg, POST-arg, footer).
type Kind uint8

const (
	KindRequestHeader Kind = iota
	KindResponseHeader
	KindCookie
	KindQueryArg
	KindFormArg
	KindFooter
)

type handle struct {
	offset, length int
}

type pair struct {
	kind  Kind
	name  handle
	value handle
}

// Store is an append-ordered sequence of (kind, name, value) triples,
// backed by a single Pool. Append is O(1); Get/Values/Has are O(n) with
// case-insensitive name comparison, which is fine since n is small in
// practice (spec.md §4.C).
type Store struct {
	pool  *pool.Pool
	pairs []pair
}

// New returns a Store that resolves stored bytes against p.
func New(p *pool.Pool) *Store {
	return &Store{pool: p}
}

// Add appends a new (kind, name, value) triple, copying name and value
// into the pool. Returns false if the pool could not accommodate the copy.
func (s *Store) Add(kind Kind, name, value []byte) bool {
	nameHandle, ok := s.store(name)
	if !ok {
		return false
	}

	valueHandle, ok := s.store(value)
	if !ok {
		return false
	}

	s.pairs = append(s.pairs, pair{kind: kind, name: nameHandle, value: valueHandle})

	return true
}

// AddString is a convenience wrapper over Add for Go strings, used by
// the connection FSM for parsed request headers, query and form args,
// cookies and trailers, and in tests.
func (s *Store) AddString(kind Kind, name, value string) bool {
	return s.Add(kind, []byte(name), []byte(value))
}

func (s *Store) store(b []byte) (handle, bool) {
	if len(b) == 0 {
		offset, _ := s.pool.AllocateHandle(0)
		return handle{offset: offset, length: 0}, true
	}

	offset, dst := s.pool.AllocateHandle(len(b))
	if dst == nil {
		return handle{}, false
	}

	copy(dst, b)

	return handle{offset: offset, length: len(b)}, true
}

func (s *Store) name(p pair) []byte {
	return s.pool.At(p.name.offset, p.name.length)
}

func (s *Store) value(p pair) []byte {
	return s.pool.At(p.value.offset, p.value.length)
}

// Get returns the first value matching name (case-insensitively),
// optionally filtered by kind. Pass AnyKind as kind to match any kind.
func (s *Store) Get(kind Kind, name string) (value string, found bool) {
	for _, p := range s.pairs {
		if !s.matches(p, kind, name) {
			continue
		}

		return string(s.value(p)), true
	}

	return "", false
}

// Has reports whether any pair matches name, case-insensitively, of the
// given kind.
func (s *Store) Has(kind Kind, name string) bool {
	_, found := s.Get(kind, name)
	return found
}

// Values returns every value matching name (case-insensitively) and
// kind, in insertion order.
func (s *Store) Values(kind Kind, name string) []string {
	var out []string

	for _, p := range s.pairs {
		if s.matches(p, kind, name) {
			out = append(out, string(s.value(p)))
		}
	}

	return out
}

// Len returns the number of pairs of a given kind, or the total number
// of pairs if kind is AnyKind.
func (s *Store) Len(kind Kind) int {
	n := 0
	for _, p := range s.pairs {
		if kind == AnyKind || p.kind == kind {
			n++
		}
	}

	return n
}

// AnyKind matches a pair of any kind; used as a wildcard for Get/Has/Values/Len.
const AnyKind Kind = 255

func (s *Store) matches(p pair, kind Kind, name string) bool {
	if kind != AnyKind && p.kind != kind {
		return false
	}

	return strings.EqualFold(string(s.name(p)), name)
}

// Iterate visits every pair of the given kind in insertion order,
// stopping early if visit returns false.
func (s *Store) Iterate(kind Kind, visit func(name, value string) bool) {
	for _, p := range s.pairs {
		if kind != AnyKind && p.kind != kind {
			continue
		}

		if !visit(string(s.name(p)), string(s.value(p))) {
			return
		}
	}
}

// Reset discards every stored pair. It does not touch the pool; callers
// reset the pool separately (typically via Pool.ResetToMark at the same
// keep-alive transition).
func (s *Store) Reset() {
	s.pairs = s.pairs[:0]
}
