package pipeline

import (
	"sync/atomic"

	"github.com/avlk/oppc-aux-sw/internal/queue"
)

// Delivery is the outcome of offering one raw block to the signal chain.
type Delivery int

const (
	Delivered Delivery = iota
	DroppedPoolEmpty
	DroppedMalformed
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case DroppedPoolEmpty:
		return "pool_empty"
	case DroppedMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// RawBlock is one interleaved two-channel ADC block, A first.
type RawBlock struct {
	Data []uint16
}

// AcquisitionStats is a snapshot of the entry point counters.
type AcquisitionStats struct {
	Delivered uint64 `json:"delivered"`
	PoolEmpty uint64 `json:"pool_empty"`
	Malformed uint64 `json:"malformed"`
}

// Acquisition is the entry point called from the acquisition driver's
// completion context. Consume never blocks and never allocates; all its
// bookkeeping is atomic.
type Acquisition struct {
	pool        *queue.Pool[RawBlock]
	blockLength int
	skipFirst   bool
	skipNext    atomic.Bool

	delivered atomic.Uint64
	poolEmpty atomic.Uint64
	malformed atomic.Uint64
}

func newAcquisition(pool *queue.Pool[RawBlock], blockLength int, skipFirst bool) *Acquisition {
	a := &Acquisition{
		pool:        pool,
		blockLength: blockLength,
		skipFirst:   skipFirst,
	}
	a.skipNext.Store(skipFirst)
	return a
}

// BlockLength returns the number of interleaved samples Consume expects.
func (a *Acquisition) BlockLength() int { return a.blockLength }

// Consume copies block into a free raw message and hands it to the filter
// stage. A block of the wrong length, or the first block after a restart
// when skipping is configured, is dropped as malformed.
func (a *Acquisition) Consume(block []uint16) Delivery {
	if len(block) != a.blockLength {
		a.malformed.Add(1)
		return DroppedMalformed
	}
	if a.skipNext.Load() && a.skipNext.CompareAndSwap(true, false) {
		a.malformed.Add(1)
		return DroppedMalformed
	}

	msg, ok := a.pool.Claim()
	if !ok {
		a.poolEmpty.Add(1)
		return DroppedPoolEmpty
	}
	copy(msg.Data, block)
	a.pool.Send(msg)
	a.delivered.Add(1)
	return Delivered
}

// Restart tells the entry point that the driver restarted its transfers.
// The first block after a restart holds stale data and is skipped when so
// configured.
func (a *Acquisition) Restart() {
	if a.skipFirst {
		a.skipNext.Store(true)
	}
}

// Stats returns a snapshot of the counters.
func (a *Acquisition) Stats() AcquisitionStats {
	return AcquisitionStats{
		Delivered: a.delivered.Load(),
		PoolEmpty: a.poolEmpty.Load(),
		Malformed: a.malformed.Load(),
	}
}
