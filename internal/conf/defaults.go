// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	// 250 kHz per channel, two channels interleaved.
	v.SetDefault("acquisition.samplerate", 500000)
	v.SetDefault("acquisition.blocklength", 128)
	v.SetDefault("acquisition.poolsize", 8)
	v.SetDefault("acquisition.skipfirstblock", true)

	v.SetDefault("filter.cic.order", 4)
	v.SetDefault("filter.cic.decimation", 5)
	v.SetDefault("filter.fir.decimation", 3)
	v.SetDefault("filter.fir.gainbits", 12)
	v.SetDefault("filter.fir.coefficients", []float64{})
	v.SetDefault("filter.fir.taps", 0)
	v.SetDefault("filter.fir.cutoff", 0.0)
	v.SetDefault("filter.dcblocker.enabled", true)
	v.SetDefault("filter.dcblocker.pole", 0.995)
	v.SetDefault("filter.dcblocker.baseshift", 15)
	v.SetDefault("filter.dcblocker.preinit", -1)

	v.SetDefault("detector.threshold", 8)
	v.SetDefault("detector.minlength", 10)
	v.SetDefault("detector.capacity", 2048)

	v.SetDefault("pipeline.blocklength", 64)
	v.SetDefault("pipeline.poolsize", 8)
	v.SetDefault("pipeline.receivetimeout", 10*time.Millisecond)
	v.SetDefault("pipeline.results", 256)

	v.SetDefault("correlator.buffera", 600*time.Millisecond)
	v.SetDefault("correlator.bufferb", 150*time.Millisecond)
	v.SetDefault("correlator.offsetmin", 50*time.Millisecond)
	v.SetDefault("correlator.offsetmax", 250*time.Millisecond)
	v.SetDefault("correlator.binwidth", 5*time.Millisecond)
	v.SetDefault("correlator.trigger", TriggerPeriodic)
	v.SetDefault("correlator.interval", time.Second)
	v.SetDefault("correlator.settle", 75*time.Millisecond)
	v.SetDefault("correlator.mininterval", 250*time.Millisecond)
	v.SetDefault("correlator.results", 128)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.maxdelay", 250*time.Millisecond)
	v.SetDefault("events.bins", 50)
	v.SetDefault("events.horizon", 2*time.Second)
	v.SetDefault("events.interval", 500*time.Millisecond)
	v.SetDefault("events.batch", 32)
	v.SetDefault("events.window", 1024)
	v.SetDefault("events.similarity", false)
	v.SetDefault("events.results", 64)

	v.SetDefault("tap.capacity", 262144)
	v.SetDefault("tap.enabled", false)
	v.SetDefault("tap.oneshot", true)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsize", 10)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxage", 28)
	v.SetDefault("log.compress", false)
}

// Defaults returns the default settings without reading any file or
// environment.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(err)
	}
	return settings
}
