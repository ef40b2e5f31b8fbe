package response

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBufferBorrowsByDefault(t *testing.T) {
	buf := []byte("hello")
	r := FromBuffer(buf, false)

	buf[0] = 'H'

	out := make([]byte, 5)
	n, err := r.Read(0, out)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(out[:n]))
}

func TestFromBufferCopyIsIndependent(t *testing.T) {
	buf := []byte("hello")
	r := FromBuffer(buf, true)

	buf[0] = 'H'

	out := make([]byte, 5)
	n, err := r.Read(0, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out[:n]))
}

func TestReadPastEndReturnsEOF(t *testing.T) {
	r := FromBuffer([]byte("ab"), true)

	out := make([]byte, 4)
	_, err := r.Read(2, out)
	require.ErrorIs(t, err, EOF)
}

func TestFromProducerDelegatesRead(t *testing.T) {
	calls := 0
	r := FromProducer(UnknownSize, func(ctx any, position int64, buf []byte) (int, error) {
		calls++
		if position == 0 {
			return copy(buf, "chunk"), nil
		}
		return 0, EOF
	}, nil, nil)

	require.True(t, r.IsStreaming())

	out := make([]byte, 16)
	n, err := r.Read(0, out)
	require.NoError(t, err)
	require.Equal(t, "chunk", string(out[:n]))
	require.Equal(t, 1, calls)
}

func TestAddHeaderRejectsControlBytes(t *testing.T) {
	r := FromString("")

	require.NoError(t, r.AddHeader("X-Ok", "value"))
	require.ErrorIs(t, r.AddHeader("X-Bad", "has\ttab"), ErrInvalidHeader)
	require.ErrorIs(t, r.AddHeader("X-Bad", "has\rcr"), ErrInvalidHeader)
	require.ErrorIs(t, r.AddHeader("X-Bad", "has\nlf"), ErrInvalidHeader)
	require.ErrorIs(t, r.AddHeader("", "value"), ErrInvalidHeader)
	require.ErrorIs(t, r.AddHeader("X-Empty", ""), ErrInvalidHeader)
}

func TestHeaderIterationOrderAndStop(t *testing.T) {
	r := FromString("")
	require.NoError(t, r.AddHeader("A", "1"))
	require.NoError(t, r.AddHeader("B", "2"))
	require.NoError(t, r.AddHeader("C", "3"))

	var seen []string
	r.Iterate(func(name, value string) bool {
		seen = append(seen, name)
		return name != "B"
	})

	require.Equal(t, []string{"A", "B"}, seen)
}

func TestDeleteHeaderRemovesOnlyExactNameAndValueMatch(t *testing.T) {
	r := FromString("")
	require.NoError(t, r.AddHeader("X-Dup", "1"))
	require.NoError(t, r.AddHeader("X-Dup", "2"))
	require.NoError(t, r.AddHeader("X-Keep", "3"))

	require.True(t, r.DeleteHeader("X-Dup", "1"))
	require.False(t, r.DeleteHeader("X-Dup", "no-such-value"))

	var seen []string
	r.Iterate(func(name, value string) bool {
		seen = append(seen, name)
		return true
	})
	require.Equal(t, []string{"X-Dup", "X-Keep"}, seen)
}

func TestRefcountFreesOnlyAtZero(t *testing.T) {
	freed := false
	r := FromProducer(UnknownSize, func(ctx any, position int64, buf []byte) (int, error) {
		return 0, EOF
	}, nil, func(ctx any) {
		freed = true
	})

	r.IncRef()
	r.Release()
	require.False(t, freed)

	r.Release()
	require.True(t, freed)
}

func TestFromJSONSetsContentType(t *testing.T) {
	r, err := FromJSON(map[string]int{"a": 1})
	require.NoError(t, err)

	v, _ := headerValue(r, "Content-Type")
	require.Equal(t, "application/json", v)
}

func headerValue(r *Response, name string) (string, bool) {
	var value string
	found := false
	r.Iterate(func(n, v string) bool {
		if n == name {
			value, found = v, true
			return false
		}
		return true
	})
	return value, found
}
