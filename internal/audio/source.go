// Package audio provides the sample sources a comparison run reads from:
// a live capture device through miniaudio and decoded WAV/FLAC recordings.
package audio

import (
	"context"
	"strings"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

// Sentinel errors reported by sources. Errors returned from Acquire and
// ReadFrame wrap one of these and can be tested with errors.Is.
var (
	ErrNotAllowed  = errors.NewStd("audio input not allowed")
	ErrNotFound    = errors.NewStd("audio input not found")
	ErrDeviceLost  = errors.NewStd("audio input lost")
	ErrNotAcquired = errors.NewStd("audio input not acquired")
)

// Source is a mono float32 sample source.
//
// Acquire may block until the device is available or ctx is done.
// ReadFrame fills dst with the most recent samples and returns how many
// are valid; fewer than len(dst) means not enough audio has arrived yet.
// Release stops the device and is safe to call more than once.
type Source interface {
	Acquire(ctx context.Context) error
	SampleRate() int
	ReadFrame(dst []float32) (int, error)
	Release() error
}

// GetLogger returns the audio package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}

// permissionMarkers are substrings of backend errors raised when the OS
// refuses microphone access.
var permissionMarkers = []string{
	"permission",
	"access denied",
	"not allowed",
	"not authorized",
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// deviceError classifies a backend failure as ErrNotAllowed or wraps it
// as a device error.
func deviceError(err error, operation string) error {
	if isPermissionError(err) {
		return errors.New(errors.Join(ErrNotAllowed, err)).
			Component("audio").
			Category(errors.CategoryPermission).
			Context("operation", operation).
			Build()
	}
	return errors.New(err).
		Component("audio").
		Category(errors.CategoryDevice).
		Context("operation", operation).
		Build()
}

func notFound(err error, context map[string]any) error {
	b := errors.New(errors.Join(ErrNotFound, err)).
		Component("audio").
		Category(errors.CategoryNotFound)
	for k, v := range context {
		b = b.Context(k, v)
	}
	return b.Build()
}

func cancelled(ctx context.Context) error {
	return errors.New(ctx.Err()).
		Component("audio").
		Category(errors.CategoryCancellation).
		Build()
}
