// Package tap is the debug tap of the signal chain. While armed, stages
// publish JSON-line records (ring snapshots, correlation histograms) into a
// fixed-size byte ring that a reader drains at its own pace. A disarmed tap
// costs one atomic load per publish attempt, and a record that does not fit
// is dropped and counted instead of blocking the publisher.
package tap

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/antonholmquist/jason"
	"github.com/smallnest/ringbuffer"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// Record kinds published by the pipeline.
const (
	KindRingA       = "ring_a"
	KindRingB       = "ring_b"
	KindCorrelation = "correlation"
)

// Tap is safe for one publisher and one reader running concurrently.
type Tap struct {
	armed   atomic.Bool
	oneShot atomic.Bool

	mu   sync.Mutex
	ring *ringbuffer.RingBuffer
	seq  uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	captures  atomic.Uint64
}

// Stats is a snapshot of tap counters.
type Stats struct {
	Armed     bool   `json:"armed"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Captures  uint64 `json:"captures"`
	Buffered  int    `json:"buffered"`
	Capacity  int    `json:"capacity"`
}

type envelope struct {
	Kind      string `json:"kind"`
	Seq       uint64 `json:"seq"`
	Timestamp uint64 `json:"timestamp"`
	Data      any    `json:"data"`
}

// New builds a disarmed tap with a ring of capacity bytes.
func New(capacity int) (*Tap, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid tap capacity: %d", capacity).
			Component("tap").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	return &Tap{ring: ringbuffer.New(capacity)}, nil
}

// Arm starts accepting records. A one-shot tap disarms itself on the next
// Complete.
func (t *Tap) Arm(oneShot bool) {
	t.oneShot.Store(oneShot)
	t.armed.Store(true)
}

// Disarm stops accepting records. Buffered records stay readable.
func (t *Tap) Disarm() { t.armed.Store(false) }

// Armed reports whether publishing is enabled.
func (t *Tap) Armed() bool { return t.armed.Load() }

// Publish encodes data as one record of the given kind. It returns false
// when the tap is disarmed, when encoding fails or when the record does
// not fit in the ring.
func (t *Tap) Publish(kind string, timestamp uint64, data any) bool {
	if !t.armed.Load() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	line, err := json.Marshal(envelope{Kind: kind, Seq: t.seq, Timestamp: timestamp, Data: data})
	if err != nil {
		t.dropped.Add(1)
		return false
	}
	line = append(line, '\n')

	// Partial records would corrupt the stream for the reader.
	if t.ring.Free() < len(line) {
		t.dropped.Add(1)
		return false
	}
	if _, err := t.ring.Write(line); err != nil {
		t.dropped.Add(1)
		return false
	}
	t.seq++
	t.published.Add(1)
	return true
}

// Complete marks the end of one capture. A one-shot tap disarms.
func (t *Tap) Complete() {
	if !t.armed.Load() {
		return
	}
	t.captures.Add(1)
	if t.oneShot.Load() {
		t.armed.Store(false)
	}
}

// WriteTo drains every buffered record into w.
func (t *Tap) WriteTo(w io.Writer) (int64, error) {
	t.mu.Lock()
	n := t.ring.Length()
	buf := make([]byte, n)
	if n > 0 {
		if _, err := t.ring.Read(buf); err != nil {
			t.mu.Unlock()
			return 0, errors.New(err).
				Component("tap").
				Category(errors.CategoryState).
				Build()
		}
	}
	t.mu.Unlock()

	written, err := w.Write(buf)
	return int64(written), err
}

// Record is one decoded tap record.
type Record struct {
	Kind      string
	Seq       int64
	Timestamp int64
	Data      *jason.Object
	Raw       []byte
}

// Drain removes and decodes every buffered record.
func (t *Tap) Drain() ([]Record, error) {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return Decode(&buf)
}

// Decode reads JSON-line records from r.
func Decode(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		obj, err := jason.NewObjectFromBytes(line)
		if err != nil {
			return out, errors.New(err).
				Component("tap").
				Category(errors.CategoryFileParsing).
				Context("record", len(out)).
				Build()
		}
		rec := Record{Raw: append([]byte(nil), line...)}
		rec.Kind, _ = obj.GetString("kind")
		rec.Seq, _ = obj.GetInt64("seq")
		rec.Timestamp, _ = obj.GetInt64("timestamp")
		rec.Data, _ = obj.GetObject("data")
		out = append(out, rec)
	}
	return out, sc.Err()
}

// Stats returns a snapshot of the tap counters.
func (t *Tap) Stats() Stats {
	t.mu.Lock()
	buffered := t.ring.Length()
	t.mu.Unlock()
	return Stats{
		Armed:     t.armed.Load(),
		Published: t.published.Load(),
		Dropped:   t.dropped.Load(),
		Captures:  t.captures.Load(),
		Buffered:  buffered,
		Capacity:  t.ring.Capacity(),
	}
}
