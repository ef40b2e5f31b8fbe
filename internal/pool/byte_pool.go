package pool

import "sync"

// bytePool is a multi-tiered byte slice pool for different size classes,
// used as the backing allocator behind Pool regions so that creating and
// destroying a Pool per connection doesn't thrash the garbage collector.
type bytePool struct {
	pools []*sync.Pool
	sizes []int
}

// defaultSizes mirror the region sizes a connection pool is commonly
// configured with: the spec default (32KiB) plus smaller tiers so short
// scratch allocations during growth don't always pay for the largest class.
var defaultSizes = []int{2048, 8192, DefaultSize, DefaultSize * 4}

func newBytePool(sizes []int) *bytePool {
	bp := &bytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a byte slice of exactly the requested length, backed by
// capacity from the smallest matching tier.
func (bp *bytePool) Get(size int) []byte {
	for i, tierSize := range bp.sizes {
		if size <= tierSize {
			bufPtr := bp.pools[i].Get().(*[]byte)
			buf := *bufPtr
			return buf[:size]
		}
	}

	return make([]byte, size)
}

// Put returns a byte slice to the pool tier matching its capacity.
func (bp *bytePool) Put(buf []byte) {
	capacity := cap(buf)

	for i, tierSize := range bp.sizes {
		if capacity == tierSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}

	// Not from a known tier (grown past the largest one); let GC handle it.
}

var globalBytePool = newBytePool(defaultSizes)
