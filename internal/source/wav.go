package source

import (
	"context"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// recordBitDepth is the sample width of recordings written by WAVRecorder.
const recordBitDepth = 16

// WAVInfo describes a recording.
type WAVInfo struct {
	SampleRate int `json:"sample_rate"` // per channel
	BitDepth   int `json:"bit_depth"`
	Channels   int `json:"channels"`
}

// WAVReplay feeds a stereo WAV recording into the chain, left channel as A
// and right channel as B. Samples are scaled into the 13-bit ADC domain.
type WAVReplay struct {
	file        *os.File
	decoder     *wav.Decoder
	info        WAVInfo
	size        int64
	blockLength int
	realtime    bool
	started     time.Time
}

// OpenWAV opens path and checks that it is a stereo PCM recording.
func OpenWAV(path string, blockLength int, realtime bool) (*WAVReplay, error) {
	if blockLength <= 0 || blockLength%conf.Channels != 0 {
		return nil, errors.Newf("invalid replay block length: %d", blockLength).
			Component("source").
			Category(errors.CategoryValidation).
			Context("block_length", blockLength).
			Build()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0).
			Component("source").
			Build()
	}
	var size int64
	if fi, err := file.Stat(); err == nil {
		size = fi.Size()
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, errors.Newf("%s is not a valid WAV file", path).
			Component("source").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Build()
	}

	info := WAVInfo{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
	}
	if info.Channels != conf.Channels {
		_ = file.Close()
		return nil, errors.New(ErrUnsupportedFormat).
			Component("source").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Context("channels", info.Channels).
			Build()
	}
	switch info.BitDepth {
	case 8, 16, 24, 32:
	default:
		_ = file.Close()
		return nil, errors.New(ErrUnsupportedFormat).
			Component("source").
			Category(errors.CategoryAudioSource).
			Context("path", path).
			Context("bit_depth", info.BitDepth).
			Build()
	}

	return &WAVReplay{
		file:        file,
		decoder:     decoder,
		info:        info,
		size:        size,
		blockLength: blockLength,
		realtime:    realtime,
	}, nil
}

// Info returns the recording format.
func (w *WAVReplay) Info() WAVInfo { return w.info }

// Close releases the file.
func (w *WAVReplay) Close() error { return w.file.Close() }

// Run feeds the recording block by block. A trailing partial block is
// dropped. With realtime pacing, blocks refused for lack of a free message
// are dropped instead of retried.
func (w *WAVReplay) Run(ctx context.Context, sink Sink) (Stats, error) {
	buf := &audio.IntBuffer{
		Data:   make([]int, w.blockLength),
		Format: &audio.Format{SampleRate: w.info.SampleRate, NumChannels: w.info.Channels},
	}
	block := make([]uint16, w.blockLength)
	d := newDeliverer(sink, !w.realtime)
	w.started = time.Now()
	ticker, tick := pacer(w.realtime, w.blockLength, w.info.SampleRate*conf.Channels)
	if ticker != nil {
		defer ticker.Stop()
	}

	for {
		filled, err := w.read(buf, block)
		if err != nil {
			return d.stats, err
		}
		if filled < w.blockLength {
			return d.stats, nil
		}
		if wait(ctx, tick) != nil {
			return d.stats, nil
		}
		if d.deliver(ctx, block) != nil {
			return d.stats, nil
		}
	}
}

// read fills block from the decoder and returns how many samples it got.
func (w *WAVReplay) read(buf *audio.IntBuffer, block []uint16) (int, error) {
	filled := 0
	for filled < len(block) {
		buf.Data = buf.Data[:len(block)-filled]
		n, err := w.decoder.PCMBuffer(buf)
		if err != nil {
			return filled, errors.FileError(err, w.file.Name(), w.size).
				Component("source").
				Category(errors.CategoryFileParsing).
				Timing("wav_read", time.Since(w.started)).
				Build()
		}
		if n == 0 {
			break
		}
		for i, v := range buf.Data[:n] {
			block[filled+i] = ToADC(v, w.info.BitDepth)
		}
		filled += n
	}
	buf.Data = buf.Data[:cap(buf.Data)]
	return filled, nil
}

// ToADC maps a PCM sample of the given bit depth into the 13-bit ADC
// domain. 8-bit PCM is unsigned, wider depths are signed.
func ToADC(v, bitDepth int) uint16 {
	switch {
	case bitDepth == 8:
		v = (v - 128) << 8
	case bitDepth > 16:
		v >>= bitDepth - 16
	}
	v = min(max(v, -1<<15), 1<<15-1)
	return uint16((v + 1<<15) >> 3)
}

// FromADC maps a 13-bit ADC sample to signed 16-bit PCM. It is the inverse
// of ToADC at 16 bits.
func FromADC(v uint16) int {
	return int(min(v, MaxSample))<<3 - 1<<15
}

// WAVRecorder writes raw blocks to a stereo 16-bit WAV file.
type WAVRecorder struct {
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	blocks  uint64
}

// CreateWAV creates path for a recording at the given per-channel rate.
func CreateWAV(path string, sampleRate int) (*WAVRecorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0).
			Component("source").
			Build()
	}
	return &WAVRecorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, recordBitDepth, conf.Channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: conf.Channels},
			SourceBitDepth: recordBitDepth,
		},
	}, nil
}

// Write appends one interleaved block.
func (r *WAVRecorder) Write(block []uint16) error {
	if cap(r.buf.Data) < len(block) {
		r.buf.Data = make([]int, len(block))
	}
	r.buf.Data = r.buf.Data[:len(block)]
	for i, v := range block {
		r.buf.Data[i] = FromADC(v)
	}
	if err := r.encoder.Write(r.buf); err != nil {
		return errors.FileError(err, r.file.Name(), 0).
			Component("source").
			Context("blocks", r.blocks).
			Build()
	}
	r.blocks++
	return nil
}

// Blocks returns the number of blocks written.
func (r *WAVRecorder) Blocks() uint64 { return r.blocks }

// Close finalizes the WAV header and closes the file.
func (r *WAVRecorder) Close() error {
	if err := r.encoder.Close(); err != nil {
		_ = r.file.Close()
		return errors.FileError(err, r.file.Name(), 0).
			Component("source").
			Context("blocks", r.blocks).
			Build()
	}
	return r.file.Close()
}
