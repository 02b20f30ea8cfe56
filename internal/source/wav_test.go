package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// recordBlocks writes n synthetic blocks of blockLength samples to a new
// recording and returns its path along with the blocks.
func recordBlocks(t *testing.T, n, blockLength int) (string, [][]uint16) {
	t.Helper()

	cfg := testSyntheticConfig()
	cfg.BlockLength = blockLength
	cfg.Noise = 50
	cfg.Seed = 3
	s, err := NewSynthetic(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "capture.wav")
	rec, err := CreateWAV(path, 16000)
	require.NoError(t, err)

	blocks := make([][]uint16, n)
	for i := range blocks {
		blocks[i] = make([]uint16, blockLength)
		s.Fill(blocks[i])
		require.NoError(t, rec.Write(blocks[i]))
	}
	assert.Equal(t, uint64(n), rec.Blocks())
	require.NoError(t, rec.Close())
	return path, blocks
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path, blocks := recordBlocks(t, 5, 128)

	replay, err := OpenWAV(path, 128, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, replay.Close()) }()
	assert.Equal(t, WAVInfo{SampleRate: 16000, BitDepth: 16, Channels: 2}, replay.Info())

	sink := &recordingSink{refuse: 2}
	stats, err := replay.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, Stats{Blocks: 5, Delivered: 5, Retries: 2}, stats)
	assert.Equal(t, blocks, sink.received())
}

func TestWAVReplayDropsPartialBlock(t *testing.T) {
	t.Parallel()

	path, blocks := recordBlocks(t, 3, 128)

	replay, err := OpenWAV(path, 256, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, replay.Close()) }()

	sink := &recordingSink{}
	stats, err := replay.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Delivered)

	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, append(append([]uint16(nil), blocks[0]...), blocks[1]...), got[0])
}

func TestOpenWAVRejectsMono(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mono.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           make([]int, 256),
		Format:         &audio.Format{SampleRate: 8000, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = OpenWAV(path, 128, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenWAVErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.wav")
	_, err := OpenWAV(missing, 128, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "source", ee.GetComponent())
	assert.Equal(t, missing, ee.GetContext()["path"])
	assert.Equal(t, "wav", ee.GetContext()["file_extension"])

	_, err = CreateWAV(filepath.Join(dir, "no-such-dir", "out.wav"), 16000)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	junk := filepath.Join(dir, "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("not a riff file at all"), 0o600))
	_, err = OpenWAV(junk, 128, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)

	_, err = OpenWAV(junk, 127, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestADCConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		v, depth int
		want     uint16
	}{
		{"16-bit zero", 0, 16, 4096},
		{"16-bit min", -1 << 15, 16, 0},
		{"16-bit max", 1<<15 - 1, 16, MaxSample},
		{"8-bit mid", 128, 8, 4096},
		{"8-bit max", 255, 8, 8160},
		{"24-bit max", 1<<23 - 1, 24, MaxSample},
		{"32-bit min", -1 << 31, 32, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToADC(tt.v, tt.depth), tt.name)
	}

	for _, v := range []uint16{0, 1, 4096, 8190, MaxSample} {
		assert.Equal(t, v, ToADC(FromADC(v), 16))
	}
	assert.Equal(t, FromADC(MaxSample), FromADC(0xffff), "values above the ADC range clamp")
}

func TestRecordedReplaysDeliveredBlocks(t *testing.T) {
	t.Parallel()

	cfg := testSyntheticConfig()
	cfg.BlockLength = 64
	cfg.Samples = 32 * 6
	src, err := NewSynthetic(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "recorded.wav")
	rec, err := CreateWAV(path, 16000)
	require.NoError(t, err)

	// The sink drops the first two blocks for good, so only four reach the
	// recording.
	sink := &recordingSink{}
	dropping := &droppingSink{next: sink, drop: 2}
	stats, err := Record(src, rec).Run(context.Background(), dropping)
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	assert.Equal(t, uint64(4), stats.Delivered)
	assert.Equal(t, uint64(2), stats.Malformed)
	assert.Equal(t, uint64(4), rec.Blocks())

	replay, err := OpenWAV(path, 64, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, replay.Close()) }()

	again := &recordingSink{}
	_, err = replay.Run(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, sink.received(), again.received())
}
