package headers

import (
	"testing"

	"github.com/searchktools/uhttpd/internal/pool"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return New(pool.New(512, 4096))
}

func TestGetCaseInsensitive(t *testing.T) {
	s := newTestStore()
	require.True(t, s.AddString(KindRequestHeader, "Content-Length", "13"))

	v, found := s.Get(KindRequestHeader, "content-length")
	require.True(t, found)
	require.Equal(t, "13", v)

	v, found = s.Get(KindRequestHeader, "CONTENT-LENGTH")
	require.True(t, found)
	require.Equal(t, "13", v)
}

func TestValuesPreservesInsertionOrderAndDuplicates(t *testing.T) {
	s := newTestStore()
	s.AddString(KindRequestHeader, "X-Forwarded-For", "1.1.1.1")
	s.AddString(KindRequestHeader, "x-forwarded-for", "2.2.2.2")

	require.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, s.Values(KindRequestHeader, "X-Forwarded-For"))
}

func TestKindFilters(t *testing.T) {
	s := newTestStore()
	s.AddString(KindRequestHeader, "Host", "example.com")
	s.AddString(KindCookie, "Host", "not-a-header")

	v, _ := s.Get(KindRequestHeader, "Host")
	require.Equal(t, "example.com", v)

	v, _ = s.Get(KindCookie, "Host")
	require.Equal(t, "not-a-header", v)
}

func TestResetClearsPairsNotPool(t *testing.T) {
	s := newTestStore()
	s.AddString(KindRequestHeader, "A", "1")
	s.Reset()

	require.Equal(t, 0, s.Len(AnyKind))
}
