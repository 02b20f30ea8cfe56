// Package observation turns signal chain results into notes and writes them
// as a tab separated table, CSV or JSON lines.
package observation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/avlk/oppc-aux-sw/internal/correlator"
	"github.com/avlk/oppc-aux-sw/internal/detector"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/pipeline"
)

// Output formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Note kinds.
const (
	KindObject      = "object"
	KindCorrelation = "correlation"
	KindEvent       = "event"
)

// Note is one printable result. Timestamps are output-rate samples and Time
// is the same instant in seconds from the start of the run.
type Note struct {
	Kind      string  `json:"kind"`
	Channel   string  `json:"channel,omitempty"`
	Timestamp uint64  `json:"timestamp"`
	Time      float64 `json:"time"`
	Length    uint32  `json:"length,omitempty"`
	Peak      int32   `json:"peak,omitempty"`
	Power     int64   `json:"power,omitempty"`
	Trigger   string  `json:"trigger,omitempty"`
	Offset    int     `json:"offset,omitempty"`     // samples, B behind A
	OffsetMax int     `json:"offset_max,omitempty"` // upper delay bound of an event bin
	Delay     float64 `json:"delay"`                // Offset in microseconds
	Value     int64   `json:"value,omitempty"`
	Pairs     int64   `json:"pairs,omitempty"`
}

// FromObject builds a note for a detected object at the given output rate.
func FromObject(o detector.DetectedObject, rate float64) Note {
	return Note{
		Kind:      KindObject,
		Channel:   o.Source.String(),
		Timestamp: o.Start,
		Time:      seconds(o.Start, rate),
		Length:    o.Length,
		Peak:      o.Peak,
		Power:     o.Power,
	}
}

// FromCorrelation builds a note for a correlation run.
func FromCorrelation(r pipeline.CorrelationResult, rate float64) Note {
	return Note{
		Kind:      KindCorrelation,
		Timestamp: r.Timestamp,
		Time:      seconds(r.Timestamp, rate),
		Trigger:   r.Trigger,
		Offset:    r.Offset,
		Delay:     micros(r.Offset, rate),
		Value:     r.Value,
	}
}

// FromEvent builds a note for an event correlation result. latest is the
// newest object end seen when the result was produced.
func FromEvent(r correlator.EventCorrelationResult, latest uint64, rate float64) Note {
	return Note{
		Kind:      KindEvent,
		Timestamp: latest,
		Time:      seconds(latest, rate),
		Offset:    int(r.DelayMin),
		OffsetMax: int(r.DelayMax),
		Delay:     micros(int(r.DelayMin+r.DelayMax)/2, rate),
		Value:     r.Count,
		Pairs:     r.Pairs,
	}
}

func seconds(ts uint64, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(ts) / rate
}

func micros(samples int, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(samples) * 1e6 / rate
}

var csvHeader = []string{
	"kind", "channel", "timestamp", "time", "length", "peak", "power",
	"trigger", "offset", "offset_max", "delay_us", "value", "pairs",
}

// Writer writes notes in one format. It is not safe for concurrent use.
type Writer struct {
	format string
	out    io.Writer
	csv    *csv.Writer
	json   *json.Encoder
	header bool
	count  int
}

// NewWriter returns a Writer for format. An empty format means table.
func NewWriter(out io.Writer, format string) (*Writer, error) {
	w := &Writer{format: format, out: out}
	switch format {
	case "", FormatTable:
		w.format = FormatTable
	case FormatCSV:
		w.csv = csv.NewWriter(out)
	case FormatJSON:
		w.json = json.NewEncoder(out)
	default:
		return nil, errors.Newf("unsupported output format: %s", format).
			Component("observation").
			Category(errors.CategoryValidation).
			Context("format", format).
			Build()
	}
	return w, nil
}

// Count returns the number of notes written.
func (w *Writer) Count() int { return w.count }

// Write writes one note.
func (w *Writer) Write(note Note) error {
	var err error
	switch w.format {
	case FormatCSV:
		err = w.writeCSV(note)
	case FormatJSON:
		err = w.json.Encode(note)
	default:
		err = w.writeTable(note)
	}
	if err != nil {
		return errors.New(err).
			Component("observation").
			Category(errors.CategoryFileIO).
			Context("format", w.format).
			Context("kind", note.Kind).
			Build()
	}
	w.count++
	return nil
}

// writeTable writes the kind specific columns of note.
func (w *Writer) writeTable(note Note) error {
	var line string
	switch note.Kind {
	case KindObject:
		line = fmt.Sprintf("%s\t%d\t%.4f\tchannel %s\tlength %d\tpeak %d\tpower %d\n",
			note.Kind, note.Timestamp, note.Time, note.Channel, note.Length, note.Peak, note.Power)
	case KindCorrelation:
		line = fmt.Sprintf("%s\t%d\t%.4f\t%s\toffset %d\tdelay %.1f us\tvalue %d\n",
			note.Kind, note.Timestamp, note.Time, note.Trigger, note.Offset, note.Delay, note.Value)
	default:
		line = fmt.Sprintf("%s\t%d\t%.4f\tdelay [%d,%d)\t%.1f us\tcount %d\tpairs %d\n",
			note.Kind, note.Timestamp, note.Time, note.Offset, note.OffsetMax, note.Delay, note.Value, note.Pairs)
	}
	_, err := io.WriteString(w.out, line)
	return err
}

func (w *Writer) writeCSV(note Note) error {
	if !w.header {
		if err := w.csv.Write(csvHeader); err != nil {
			return err
		}
		w.header = true
	}
	return w.csv.Write([]string{
		note.Kind,
		note.Channel,
		strconv.FormatUint(note.Timestamp, 10),
		strconv.FormatFloat(note.Time, 'f', 6, 64),
		strconv.FormatUint(uint64(note.Length), 10),
		strconv.FormatInt(int64(note.Peak), 10),
		strconv.FormatInt(note.Power, 10),
		note.Trigger,
		strconv.Itoa(note.Offset),
		strconv.Itoa(note.OffsetMax),
		strconv.FormatFloat(note.Delay, 'f', 1, 64),
		strconv.FormatInt(note.Value, 10),
		strconv.FormatInt(note.Pairs, 10),
	})
}

// Flush flushes buffered CSV output.
func (w *Writer) Flush() error {
	if w.csv == nil {
		return nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return errors.New(err).
			Component("observation").
			Category(errors.CategoryFileIO).
			Context("format", w.format).
			Build()
	}
	return nil
}
