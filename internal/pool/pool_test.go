package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateGrows(t *testing.T) {
	p := New(16, 1024)

	a := p.Allocate(10)
	require.Len(t, a, 10)

	b := p.Allocate(10)
	require.Len(t, b, 10)
	require.NotEqual(t, &a[0], &b[0])
}

func TestAllocateFailsPastMaxSize(t *testing.T) {
	p := New(16, 32)

	require.NotNil(t, p.Allocate(16))
	require.Nil(t, p.Allocate(1024))
}

func TestReallocateInPlaceExtendsTail(t *testing.T) {
	p := New(64, 256)

	a := p.Allocate(8)
	copy(a, []byte("hello, w"))

	grown := p.Reallocate(a, 16)
	require.Len(t, grown, 16)
	require.Equal(t, "hello, w", string(grown[:8]))
}

func TestReallocateNonTailCopies(t *testing.T) {
	p := New(64, 256)

	first := p.Allocate(8)
	copy(first, []byte("keep me!"))
	_ = p.Allocate(8) // first is no longer the tail allocation

	grown := p.Reallocate(first, 16)
	require.Len(t, grown, 16)
	require.Equal(t, "keep me!", string(grown[:8]))
}

func TestMarkAndResetReclaimsScratch(t *testing.T) {
	p := New(64, 256)

	p.Mark()
	p.Allocate(40)
	require.Equal(t, 40, p.HighWaterMark())

	p.ResetToMark()
	require.Equal(t, 0, p.HighWaterMark())

	// allocations after reset reuse the same region from the top again
	again := p.Allocate(8)
	require.Len(t, again, 8)
}

func TestDestroyReleasesRegion(t *testing.T) {
	p := New(16, 16)
	p.Allocate(8)
	p.Destroy()

	require.Equal(t, 0, p.Cap())
}
