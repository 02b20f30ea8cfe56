package source

import (
	"sync"

	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// recordingSink keeps a copy of every accepted block. It refuses the first
// refuse calls with a pool-empty result, or every call when always is set.
type recordingSink struct {
	mu     sync.Mutex
	refuse int
	always bool
	calls  int
	blocks [][]uint16
}

func (s *recordingSink) Consume(block []uint16) pipeline.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.always || s.refuse > 0 {
		s.refuse--
		return pipeline.DroppedPoolEmpty
	}
	s.blocks = append(s.blocks, append([]uint16(nil), block...))
	return pipeline.Delivered
}

func (s *recordingSink) received() [][]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// droppingSink refuses its first drop blocks as malformed and passes the
// rest on.
type droppingSink struct {
	next Sink
	drop int
}

func (s *droppingSink) Consume(block []uint16) pipeline.Delivery {
	if s.drop > 0 {
		s.drop--
		return pipeline.DroppedMalformed
	}
	return s.next.Consume(block)
}
