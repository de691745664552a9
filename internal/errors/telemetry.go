package errors

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter reports enhanced errors to an external system
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu         sync.RWMutex
	telemetryReporter  TelemetryReporter
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs the global reporter. Passing nil disables
// reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	r := telemetryReporter
	reporterMu.RUnlock()
	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// InitSentry initializes the Sentry SDK and returns a reporter for it.
func InitSentry(dsn, release string) (*SentryReporter, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: false,
		SendDefaultPII:   false,
	}); err != nil {
		return nil, New(err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Build()
	}
	return &SentryReporter{enabled: true}, nil
}

// FlushSentry waits up to timeout for queued events to be sent.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr != nil && sr.enabled
}

// ReportError reports an enhanced error to Sentry with credentials scrubbed.
// Expected outcomes such as validation failures and cancellations are
// not reported.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.IsEnabled() || ee.IsReported() || !reportable(ee.Category) {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = levelFor(ee.Category)
		event.Exception = []sentry.Exception{{
			Type:  ee.Component + " " + string(ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func reportable(category ErrorCategory) bool {
	switch category {
	case CategoryValidation, CategoryCancellation, CategoryConflict, CategoryPermission:
		return false
	default:
		return true
	}
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryDevice, CategoryAudioSource, CategoryNetwork, CategoryMQTTPublish:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	urlQueryRegex   = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	userInfoRegex   = regexp.MustCompile(`(\w+://)[^:@/\s]+:[^@/\s]+@`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|dsn)[=:]\S+`)
)

// scrubMessage removes credentials and query strings from messages
func scrubMessage(message string) string {
	message = urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	message = userInfoRegex.ReplaceAllString(message, "${1}[REDACTED]@")
	return credentialRegex.ReplaceAllString(message, "$1=[REDACTED]")
}
