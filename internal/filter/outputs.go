package filter

// DefaultOutputCapacity is the number of decimated samples a stage buffers
// before new outputs are dropped.
const DefaultOutputCapacity = 128

// outputQueue is a fixed ring of pending stage outputs.
type outputQueue struct {
	buf       []int32
	head      int
	count     int
	overflows uint64
}

func newOutputQueue(capacity int) outputQueue {
	return outputQueue{buf: make([]int32, capacity)}
}

// push appends v, dropping it when the queue is full.
func (q *outputQueue) push(v int32) {
	if q.count == len(q.buf) {
		q.overflows++
		return
	}
	idx := q.head + q.count
	if idx >= len(q.buf) {
		idx -= len(q.buf)
	}
	q.buf[idx] = v
	q.count++
}

// pop removes the oldest value. Callers check count first.
func (q *outputQueue) pop() int32 {
	v := q.buf[q.head]
	q.head++
	if q.head == len(q.buf) {
		q.head = 0
	}
	q.count--
	return v
}

func (q *outputQueue) reset() {
	q.head = 0
	q.count = 0
	q.overflows = 0
}

// Option configures a filter stage.
type Option func(*options)

type options struct {
	outputCapacity int
	gainBits       int
	baseShift      int
	autoPreinit    bool
}

func defaultOptions() options {
	return options{
		outputCapacity: DefaultOutputCapacity,
		gainBits:       DefaultGainBits,
		baseShift:      DefaultBaseShift,
	}
}

// WithOutputCapacity sets how many decimated outputs a stage buffers.
func WithOutputCapacity(n int) Option {
	return func(o *options) { o.outputCapacity = n }
}

// WithGainBits sets the FIR coefficient scale, coefficients are quantized to
// round(c * 2^bits).
func WithGainBits(bits int) Option {
	return func(o *options) { o.gainBits = bits }
}

// WithBaseShift sets the DC blocker's fixed-point shift.
func WithBaseShift(shift int) Option {
	return func(o *options) { o.baseShift = shift }
}

// WithAutoPreinit makes the DC blocker seed itself from the first sample it
// sees unless Preinit was called.
func WithAutoPreinit() Option {
	return func(o *options) { o.autoPreinit = true }
}

func saturateUint16(v int32) (uint16, bool) {
	switch {
	case v < 0:
		return 0, true
	case v > 0xffff:
		return 0xffff, true
	default:
		return uint16(v), false
	}
}

func saturateInt16(v int64) (int16, bool) {
	switch {
	case v < -1<<15:
		return -1 << 15, true
	case v > 1<<15-1:
		return 1<<15 - 1, true
	default:
		return int16(v), false
	}
}
