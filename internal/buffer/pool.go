package buffer

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// PayloadPool recycles packet payload slices of a fixed capacity. Slices
// that do not fit the pool's class are left to the GC.
type PayloadPool struct {
	size     int
	freeList chan []byte
	logger   *logrus.Entry

	allocated atomic.Int64
	reused    atomic.Int64
	discarded atomic.Int64
}

// NewPayloadPool creates a pool of up to poolSize slices of size bytes,
// half of them allocated up front.
func NewPayloadPool(size, poolSize int, logger *logrus.Entry) *PayloadPool {
	if poolSize < 1 {
		poolSize = 1
	}
	pp := &PayloadPool{
		size:     size,
		freeList: make(chan []byte, poolSize),
		logger:   logger,
	}

	for i := 0; i < poolSize/2; i++ {
		pp.freeList <- make([]byte, 0, size)
	}

	return pp
}

// Get returns an empty slice with at least n bytes of capacity.
func (pp *PayloadPool) Get(n int) []byte {
	if n > pp.size {
		pp.allocated.Add(1)
		return make([]byte, 0, n)
	}

	select {
	case buf := <-pp.freeList:
		pp.reused.Add(1)
		return buf[:0]
	default:
		pp.allocated.Add(1)
		return make([]byte, 0, pp.size)
	}
}

// Put returns a slice obtained from Get.
func (pp *PayloadPool) Put(buf []byte) {
	if cap(buf) != pp.size {
		return
	}

	select {
	case pp.freeList <- buf[:0]:
	default:
		pp.discarded.Add(1)
		if pp.logger != nil {
			pp.logger.WithField("size", pp.size).Trace("Payload pool full, discarding slice")
		}
	}
}

// Stats returns pool statistics.
func (pp *PayloadPool) Stats() PoolStats {
	return PoolStats{
		SliceSize: pp.size,
		Free:      len(pp.freeList),
		Allocated: pp.allocated.Load(),
		Reused:    pp.reused.Load(),
		Discarded: pp.discarded.Load(),
	}
}

// PoolStats holds payload pool statistics.
type PoolStats struct {
	SliceSize int
	Free      int
	Allocated int64
	Reused    int64
	Discarded int64
}
