package source

import (
	"context"

	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// Recorded wraps a source so that every block the sink accepts is also
// written to a WAV recording. Replaying the recording reproduces what the
// chain saw.
type Recorded struct {
	src Source
	rec *WAVRecorder
}

// Record returns src with its delivered blocks copied into rec. The caller
// closes rec after Run returns.
func Record(src Source, rec *WAVRecorder) *Recorded {
	return &Recorded{src: src, rec: rec}
}

// Run runs the wrapped source. A failed write stops recording but not the
// run; the first write error is returned once the source ends.
func (r *Recorded) Run(ctx context.Context, sink Sink) (Stats, error) {
	tee := &teeSink{sink: sink, rec: r.rec}
	stats, err := r.src.Run(ctx, tee)
	if err != nil {
		return stats, err
	}
	return stats, tee.err
}

type teeSink struct {
	sink Sink
	rec  *WAVRecorder
	err  error
}

func (t *teeSink) Consume(block []uint16) pipeline.Delivery {
	d := t.sink.Consume(block)
	if d == pipeline.Delivered && t.err == nil {
		t.err = t.rec.Write(block)
	}
	return d
}
