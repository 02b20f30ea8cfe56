// Package source produces raw interleaved two-channel blocks for the signal
// chain: a synthetic pulse generator for simulation and tests, and a stereo
// WAV file for replaying recordings.
package source

import (
	"context"
	"time"

	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// MaxSample is the largest value of the 13-bit ADC domain.
const MaxSample = 1<<13 - 1

// retryDelay is how long a lossless source waits for a free raw block.
const retryDelay = 200 * time.Microsecond

// ErrUnsupportedFormat is returned for recordings the chain cannot replay.
var ErrUnsupportedFormat = errors.Newf("unsupported recording format").
	Component("source").
	Category(errors.CategoryAudioSource).
	Build()

// Sink consumes raw interleaved blocks. pipeline.Acquisition is a Sink.
type Sink interface {
	Consume(block []uint16) pipeline.Delivery
}

// Source produces blocks into a Sink until it runs dry or ctx ends.
type Source interface {
	Run(ctx context.Context, sink Sink) (Stats, error)
}

// Stats counts the blocks a source produced and what became of them.
type Stats struct {
	Blocks    uint64 `json:"blocks"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`   // refused and not retried
	Malformed uint64 `json:"malformed"` // refused as malformed or skipped
	Retries   uint64 `json:"retries"`
}

// deliverer offers blocks to a sink. A lossless deliverer retries blocks
// refused for lack of a free message; a paced one drops them like the
// hardware would.
type deliverer struct {
	sink     Sink
	lossless bool
	timer    *time.Timer
	stats    Stats
}

func newDeliverer(sink Sink, lossless bool) *deliverer {
	timer := time.NewTimer(retryDelay)
	timer.Stop()
	return &deliverer{sink: sink, lossless: lossless, timer: timer}
}

// deliver offers block until it is accepted, refused for good or ctx ends.
func (d *deliverer) deliver(ctx context.Context, block []uint16) error {
	d.stats.Blocks++
	for {
		switch d.sink.Consume(block) {
		case pipeline.Delivered:
			d.stats.Delivered++
			return nil
		case pipeline.DroppedMalformed:
			d.stats.Malformed++
			return nil
		case pipeline.DroppedPoolEmpty:
			if !d.lossless {
				d.stats.Dropped++
				return nil
			}
		}

		d.stats.Retries++
		d.timer.Reset(retryDelay)
		select {
		case <-ctx.Done():
			d.timer.Stop()
			return ctx.Err()
		case <-d.timer.C:
		}
	}
}

// pacer returns a ticker channel firing once per block at the given
// interleaved sample rate, or nil when pacing is off.
func pacer(realtime bool, blockLength, sampleRate int) (*time.Ticker, <-chan time.Time) {
	if !realtime || sampleRate <= 0 {
		return nil, nil
	}
	period := time.Duration(float64(time.Second) * float64(blockLength) / float64(sampleRate))
	if period <= 0 {
		period = time.Microsecond
	}
	t := time.NewTicker(period)
	return t, t.C
}

// wait blocks for the next pacing tick. A nil tick channel returns at once.
func wait(ctx context.Context, tick <-chan time.Time) error {
	if tick == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tick:
		return nil
	}
}
