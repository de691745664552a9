// Package conf provides configuration management for notematch.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for notematch.
type Settings struct {
	Debug bool // enable debug logging for all modules

	Audio     AudioSettings
	Pitch     PitchSettings
	Notes     NoteSettings
	Sequencer SequencerSettings
	Alignment AlignmentSettings
	API       APISettings
	Metrics   MetricsSettings
	MQTT      MQTTSettings
	Sentry    SentrySettings
	Logging   logger.LoggingConfig
}

// AudioSettings configures live capture and frame analysis.
type AudioSettings struct {
	Source           string        // capture device name, "default" or "sysdefault"
	SampleRate       int           // capture sample rate in Hz
	FrameSize        int           // samples per analysis frame
	AnalysisInterval time.Duration // period of pitch analysis
	RingSeconds      int           // seconds of capture history kept
}

// PitchSettings tunes the pitch estimator.
type PitchSettings struct {
	SilenceThreshold float64
	PeakThreshold    float64
	MinFrequency     float64
	MaxFrequency     float64
	MinClarity       float64
	Smoothing        SmoothingSettings
}

// SmoothingSettings configures the majority filter over detected notes.
type SmoothingSettings struct {
	Window int // frames considered, 1 disables smoothing
	Votes  int // frames that must agree
}

// NoteSettings bounds the detectable note range.
type NoteSettings struct {
	Min string
	Max string
}

// SequencerSettings controls score playback.
type SequencerSettings struct {
	DefaultTempo float64 // BPM when the score has none
	Speed        float64 // multiplier of the beat interval
}

// AlignmentSettings controls how detections are matched.
type AlignmentSettings struct {
	SemitoneTolerance int
}

// APISettings configures the HTTP API.
type APISettings struct {
	Enabled   bool
	Listen    string
	ResultTTL time.Duration // how long finished results stay queryable
}

// MetricsSettings configures the standalone Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// MQTTSettings configures the result publisher.
type MQTTSettings struct {
	Enabled       bool
	Broker        string
	Topic         string
	ClientID      string
	Username      string
	Password      string // may reference ${ENV_VAR}
	PasswordFile  string // read the password from this file instead
	Retain        bool
	DetectionRate float64 // max detection messages per second, 0 disables them
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string // may reference ${ENV_VAR}
	DSNFile string // read the DSN from this file instead
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	configFile       string
)

// SetConfigFile makes Load read path instead of searching the default
// locations.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFile = path
}

// Load reads the configuration file, environment variables and bound flags
// into a validated Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, environment bindings and reads the config file
// when one exists. A missing file is not an error.
func initViper() error {
	setDefaultConfig()
	bindEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("notematch")
		viper.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Context("file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("file", viper.ConfigFileUsed()))
	return nil
}

// resolveSecrets replaces credential settings with their values from
// secret files or environment references.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"mqtt.username", "", &settings.MQTT.Username},
		{"mqtt.password", settings.MQTT.PasswordFile, &settings.MQTT.Password},
		{"sentry.dsn", settings.Sentry.DSNFile, &settings.Sentry.DSN},
	}
	for _, f := range fields {
		resolved, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("error resolving %s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// DefaultConfigYAML returns the annotated default configuration file.
func DefaultConfigYAML() (string, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetSettings returns the settings of the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
