package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/music"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validatePitchSettings(&s.Pitch) },
		func(s *Settings) error { return validateNoteSettings(&s.Notes) },
		func(s *Settings) error { return validateSequencerSettings(&s.Sequencer) },
		func(s *Settings) error {
			if s.Alignment.SemitoneTolerance < 0 {
				return fmt.Errorf("alignment.semitonetolerance must not be negative")
			}
			return nil
		},
		func(s *Settings) error { return validateListen("api.listen", s.API.Enabled, s.API.Listen) },
		func(s *Settings) error { return validateListen("metrics.listen", s.Metrics.Enabled, s.Metrics.Listen) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error {
			if s.Sentry.Enabled && s.Sentry.DSN == "" {
				return fmt.Errorf("sentry.dsn is required when sentry is enabled")
			}
			return nil
		},
		func(s *Settings) error { return validateLogLevel(s.Logging.DefaultLevel) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateAudioSettings(settings *AudioSettings) error {
	var errs []string
	if settings.SampleRate < 8000 || settings.SampleRate > 192000 {
		errs = append(errs, fmt.Sprintf("audio.samplerate %d out of range 8000-192000", settings.SampleRate))
	}
	if settings.FrameSize < 256 || settings.FrameSize&(settings.FrameSize-1) != 0 {
		errs = append(errs, fmt.Sprintf("audio.framesize %d must be a power of two of at least 256", settings.FrameSize))
	}
	if settings.AnalysisInterval <= 0 {
		errs = append(errs, "audio.analysisinterval must be positive")
	}
	if settings.RingSeconds < 1 {
		errs = append(errs, "audio.ringseconds must be at least 1")
	}
	return joinErrors(errs)
}

func validatePitchSettings(settings *PitchSettings) error {
	var errs []string
	if settings.MinFrequency <= 0 || settings.MaxFrequency <= settings.MinFrequency {
		errs = append(errs, fmt.Sprintf("pitch frequency range %.1f-%.1f Hz is invalid",
			settings.MinFrequency, settings.MaxFrequency))
	}
	if settings.PeakThreshold <= 0 || settings.PeakThreshold > 1 {
		errs = append(errs, "pitch.peakthreshold must be in (0,1]")
	}
	if settings.MinClarity < 0 || settings.MinClarity > 1 {
		errs = append(errs, "pitch.minclarity must be in [0,1]")
	}
	if settings.SilenceThreshold < 0 {
		errs = append(errs, "pitch.silencethreshold must not be negative")
	}
	if settings.Smoothing.Window > 1 &&
		(settings.Smoothing.Votes < 1 || settings.Smoothing.Votes > settings.Smoothing.Window) {
		errs = append(errs, "pitch.smoothing.votes must be between 1 and the window size")
	}
	return joinErrors(errs)
}

func validateNoteSettings(settings *NoteSettings) error {
	if _, err := music.ParseRange(settings.Min, settings.Max); err != nil {
		return fmt.Errorf("notes range: %w", err)
	}
	return nil
}

func validateSequencerSettings(settings *SequencerSettings) error {
	var errs []string
	if settings.DefaultTempo <= 0 || settings.DefaultTempo > 400 {
		errs = append(errs, fmt.Sprintf("sequencer.defaulttempo %.1f out of range (0,400]", settings.DefaultTempo))
	}
	if settings.Speed <= 0 {
		errs = append(errs, "sequencer.speed must be positive")
	}
	return joinErrors(errs)
}

func validateListen(key string, enabled bool, listen string) error {
	if !enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return fmt.Errorf("%s %q is not host:port: %w", key, listen, err)
	}
	return nil
}

var brokerSchemes = []string{"tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	var errs []string
	u, err := url.Parse(settings.Broker)
	switch {
	case settings.Broker == "":
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	case err != nil || u.Host == "":
		errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid URL", settings.Broker))
	case !slices.Contains(brokerSchemes, u.Scheme):
		errs = append(errs, fmt.Sprintf("mqtt.broker scheme %q is not supported", u.Scheme))
	}
	if strings.TrimSpace(settings.Topic) == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	if settings.DetectionRate < 0 {
		errs = append(errs, "mqtt.detectionrate must not be negative")
	}
	return joinErrors(errs)
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("logging.defaultlevel %q is not a valid level", level)
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
