package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/pitch"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.source", "default")
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.framesize", 2048)
	viper.SetDefault("audio.analysisinterval", 50*time.Millisecond)
	viper.SetDefault("audio.ringseconds", 2)

	viper.SetDefault("pitch.silencethreshold", pitch.DefaultSilenceThreshold)
	viper.SetDefault("pitch.peakthreshold", pitch.DefaultPeakThreshold)
	viper.SetDefault("pitch.minfrequency", pitch.DefaultMinFrequency)
	viper.SetDefault("pitch.maxfrequency", pitch.DefaultMaxFrequency)
	viper.SetDefault("pitch.minclarity", pitch.DefaultMinClarity)
	viper.SetDefault("pitch.smoothing.window", 3)
	viper.SetDefault("pitch.smoothing.votes", 2)

	viper.SetDefault("notes.min", "C2")
	viper.SetDefault("notes.max", "C7")

	viper.SetDefault("sequencer.defaulttempo", 120.0)
	viper.SetDefault("sequencer.speed", 1.0)

	viper.SetDefault("alignment.semitonetolerance", 0)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", "127.0.0.1:8080")
	viper.SetDefault("api.resultttl", time.Hour)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9090")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "notematch")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.detectionrate", 5.0)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.dsnfile", "")

	viper.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.console.format", "text")
	viper.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	viper.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)
}
