package pools

import (
	"sync"
	"sync/atomic"
)

// Output buffer size classes
const (
	SmallBufferSize = 2 * 1024
	LargeBufferSize = 32 * 1024
)

// BufferPool hands out empty, growable response buffers in two classes.
// Buffers that grew past LargeBufferSize are dropped on Put.
type BufferPool struct {
	small sync.Pool
	large sync.Pool

	// Statistics
	gets    atomic.Uint64
	puts    atomic.Uint64
	dropped atomic.Uint64
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, SmallBufferSize)
				return &buf
			},
		},
		large: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, LargeBufferSize)
				return &buf
			},
		},
	}
}

// Get acquires an empty buffer with room for about estimatedSize bytes.
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	bp.gets.Add(1)
	if estimatedSize <= SmallBufferSize {
		return bp.small.Get().(*[]byte)
	}
	return bp.large.Get().(*[]byte)
}

// Put truncates buf and returns it to the class its capacity fits.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:0]
	switch c := cap(*buf); {
	case c < SmallBufferSize:
		bp.dropped.Add(1)
		return
	case c < LargeBufferSize:
		bp.small.Put(buf)
	case c <= LargeBufferSize*2:
		bp.large.Put(buf)
	default:
		bp.dropped.Add(1)
		return
	}
	bp.puts.Add(1)
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		Gets:    bp.gets.Load(),
		Puts:    bp.puts.Load(),
		Dropped: bp.dropped.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	Gets    uint64
	Puts    uint64
	Dropped uint64
}

// Global buffer pool
var globalBufferPool = NewBufferPool()

// AcquireBuffer gets a buffer from the global pool
func AcquireBuffer(estimatedSize int) *[]byte {
	return globalBufferPool.Get(estimatedSize)
}

// ReleaseBuffer returns a buffer to the global pool
func ReleaseBuffer(buf *[]byte) {
	globalBufferPool.Put(buf)
}

// GetBufferStats returns statistics for the global buffer pool
func GetBufferStats() BufferStats {
	return globalBufferPool.Stats()
}
