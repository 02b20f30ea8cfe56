package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/queue"
)

func newTestAcquisition(t *testing.T, poolSize, blockLength int, skipFirst bool) (*Acquisition, *queue.Pool[RawBlock]) {
	t.Helper()
	pool, err := queue.NewPool(poolSize, func() *RawBlock {
		return &RawBlock{Data: make([]uint16, blockLength)}
	})
	require.NoError(t, err)
	return newAcquisition(pool, blockLength, skipFirst), pool
}

func TestAcquisitionDeliveryStates(t *testing.T) {
	t.Parallel()

	acq, pool := newTestAcquisition(t, 2, 4, false)

	assert.Equal(t, DroppedMalformed, acq.Consume([]uint16{1, 2, 3}))
	assert.Equal(t, DroppedMalformed, acq.Consume(nil))

	block := []uint16{10, 11, 20, 21}
	assert.Equal(t, Delivered, acq.Consume(block))
	assert.Equal(t, Delivered, acq.Consume([]uint16{30, 31, 40, 41}))
	assert.Equal(t, DroppedPoolEmpty, acq.Consume(block))

	assert.Equal(t, AcquisitionStats{Delivered: 2, PoolEmpty: 1, Malformed: 2}, acq.Stats())

	// The block is copied, the caller may reuse its buffer.
	block[0] = 99
	msg, err := pool.Receive(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 11, 20, 21}, msg.Data)
	pool.Return(msg)

	assert.Equal(t, Delivered, acq.Consume(block))
}

func TestAcquisitionSkipsFirstBlockAfterRestart(t *testing.T) {
	t.Parallel()

	acq, _ := newTestAcquisition(t, 4, 2, true)
	block := []uint16{1, 2}

	assert.Equal(t, DroppedMalformed, acq.Consume(block), "first block after start")
	assert.Equal(t, Delivered, acq.Consume(block))

	acq.Restart()
	assert.Equal(t, DroppedMalformed, acq.Consume(block), "first block after restart")
	assert.Equal(t, Delivered, acq.Consume(block))

	assert.Equal(t, AcquisitionStats{Delivered: 2, Malformed: 2}, acq.Stats())
}

func TestAcquisitionRestartWithoutSkip(t *testing.T) {
	t.Parallel()

	acq, _ := newTestAcquisition(t, 4, 2, false)
	acq.Restart()
	assert.Equal(t, Delivered, acq.Consume([]uint16{1, 2}))
}

func TestDeliveryString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "pool_empty", DroppedPoolEmpty.String())
	assert.Equal(t, "malformed", DroppedMalformed.String())
	assert.Equal(t, "unknown", Delivery(42).String())
}
