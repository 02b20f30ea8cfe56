// config.go: settings struct of the signal chain and the functions to load
// and dump it.
package conf

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// Channels is the number of interleaved sensor channels in a raw block.
const Channels = 2

// AcquisitionSettings describes the raw interleaved ADC stream.
type AcquisitionSettings struct {
	SampleRate     int  `yaml:"samplerate"`     // interleaved samples per second, both channels
	BlockLength    int  `yaml:"blocklength"`    // interleaved samples per DMA block
	PoolSize       int  `yaml:"poolsize"`       // raw blocks in flight
	SkipFirstBlock bool `yaml:"skipfirstblock"` // drop the first block after a restart
}

// CICSettings configures the first decimation stage.
type CICSettings struct {
	Order      int `yaml:"order"`
	Decimation int `yaml:"decimation"`
}

// FIRSettings configures the decimating lowpass. Coefficients win over
// Taps/Cutoff, which win over the built-in kernel.
type FIRSettings struct {
	Decimation   int       `yaml:"decimation"`
	GainBits     int       `yaml:"gainbits"`
	Coefficients []float64 `yaml:"coefficients"`
	Taps         int       `yaml:"taps"`
	Cutoff       float64   `yaml:"cutoff"` // normalized to the FIR input rate
}

// DCBlockerSettings configures DC removal ahead of the detectors.
type DCBlockerSettings struct {
	Enabled   bool    `yaml:"enabled"`
	Pole      float64 `yaml:"pole"`
	BaseShift int     `yaml:"baseshift"`
	Preinit   int     `yaml:"preinit"` // idle level to seed with, -1 seeds from the first sample
}

// FilterSettings groups the per-channel filter chain.
type FilterSettings struct {
	CIC       CICSettings       `yaml:"cic"`
	FIR       FIRSettings       `yaml:"fir"`
	DCBlocker DCBlockerSettings `yaml:"dcblocker"`
}

// DetectorSettings configures the object detectors.
type DetectorSettings struct {
	Threshold int32  `yaml:"threshold"`
	MinLength uint32 `yaml:"minlength"` // output-rate samples
	Capacity  int    `yaml:"capacity"`
}

// PipelineSettings configures the decimated sample messages between the
// filter and correlation stages.
type PipelineSettings struct {
	BlockLength    int           `yaml:"blocklength"`
	PoolSize       int           `yaml:"poolsize"`
	ReceiveTimeout time.Duration `yaml:"receivetimeout"`
	Results        int           `yaml:"results"` // detector results queue
}

// Trigger policies of the correlation stage.
const (
	TriggerPeriodic = "periodic"
	TriggerDetector = "detector"
	TriggerBoth     = "both"
)

// CorrelatorSettings configures the sliding correlation. All durations are
// converted to output-rate samples.
type CorrelatorSettings struct {
	BufferA     time.Duration `yaml:"buffera"`
	BufferB     time.Duration `yaml:"bufferb"`
	OffsetMin   time.Duration `yaml:"offsetmin"`
	OffsetMax   time.Duration `yaml:"offsetmax"`
	BinWidth    time.Duration `yaml:"binwidth"`
	Trigger     string        `yaml:"trigger"`
	Interval    time.Duration `yaml:"interval"`
	Settle      time.Duration `yaml:"settle"`
	MinInterval time.Duration `yaml:"mininterval"`
	Results     int           `yaml:"results"`
}

// EventSettings configures the timestamp based event correlator.
type EventSettings struct {
	Enabled    bool          `yaml:"enabled"`
	MaxDelay   time.Duration `yaml:"maxdelay"`
	Bins       int           `yaml:"bins"`
	Horizon    time.Duration `yaml:"horizon"`
	Interval   time.Duration `yaml:"interval"`
	Batch      int           `yaml:"batch"`
	Window     int           `yaml:"window"`
	Similarity bool          `yaml:"similarity"`
	Results    int           `yaml:"results"`
}

// TapSettings configures the debug tap.
type TapSettings struct {
	Capacity int  `yaml:"capacity"` // bytes
	Enabled  bool `yaml:"enabled"`  // arm at start
	OneShot  bool `yaml:"oneshot"`
}

// MetricsSettings toggles the Prometheus collector.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxsize"` // megabytes
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"` // days
	Compress   bool   `yaml:"compress"`
}

// Settings is the complete static configuration, read once at startup.
type Settings struct {
	Debug       bool                `yaml:"debug"`
	Acquisition AcquisitionSettings `yaml:"acquisition"`
	Filter      FilterSettings      `yaml:"filter"`
	Detector    DetectorSettings    `yaml:"detector"`
	Pipeline    PipelineSettings    `yaml:"pipeline"`
	Correlator  CorrelatorSettings  `yaml:"correlator"`
	Events      EventSettings       `yaml:"events"`
	Tap         TapSettings         `yaml:"tap"`
	Metrics     MetricsSettings     `yaml:"metrics"`
	Log         LogSettings         `yaml:"log"`
}

// ChannelRate returns the raw sample rate of one channel.
func (s *Settings) ChannelRate() float64 {
	return float64(s.Acquisition.SampleRate) / Channels
}

// OutputRate returns the per-channel sample rate after both decimators.
func (s *Settings) OutputRate() float64 {
	div := s.Filter.CIC.Decimation * s.Filter.FIR.Decimation
	if div <= 0 {
		return 0
	}
	return s.ChannelRate() / float64(div)
}

// Samples converts a duration into output-rate samples, rounded to nearest.
func (s *Settings) Samples(d time.Duration) int {
	return int(math.Round(d.Seconds() * s.OutputRate()))
}

// Load reads defaults, the optional config file and OPPC_* environment
// variables into a validated Settings. An empty path searches for
// oppc.yaml in the working directory and the user config directory; a
// missing file is not an error then.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}
	if err := initViper(v, path); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	return settings, nil
}

// initViper registers defaults, environment binding and reads the config
// file.
func initViper(v *viper.Viper, path string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix("OPPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("configuration").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		return nil
	}

	v.SetConfigName("oppc")
	v.SetConfigType("yaml")
	for _, dir := range defaultConfigPaths() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return nil
}

// defaultConfigPaths lists the directories searched for oppc.yaml.
func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "oppc"))
	}
	return paths
}

// Dump writes settings as YAML in the layout Load reads back.
func Dump(w io.Writer, settings *Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "dump_settings").
			Build()
	}
	return enc.Close()
}
