package analysis

import (
	"context"

	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/source"
)

// Replay runs the signal chain against a stereo WAV recording. A recording
// made at another rate is replayed as is; the chain's rates and delays
// then no longer match wall time.
func Replay(ctx context.Context, settings *conf.Settings, path string, realtime bool, opts Options) (*Report, error) {
	replay, err := source.OpenWAV(path, settings.Acquisition.BlockLength, realtime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := replay.Close(); err != nil {
			GetLogger().Warn("failed to close recording", "path", path, "error", err)
		}
	}()

	info := replay.Info()
	log := GetLogger().With("path", path, "sample_rate", info.SampleRate, "bit_depth", info.BitDepth)
	if float64(info.SampleRate) != settings.ChannelRate() {
		log.Warn("recording rate differs from the acquisition rate",
			"channel_rate", settings.ChannelRate())
	}
	log.Info("replaying recording", "realtime", realtime)

	return Run(ctx, settings, replay, opts)
}
