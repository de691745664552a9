// Package pitch estimates the fundamental frequency of mono audio frames.
//
// The estimator is a normalized autocorrelation (McLeod normalized square
// difference function) computed through an FFT. For each frame it
//
//  1. rejects frames whose RMS energy is below a silence threshold,
//  2. finds the key maxima of the normalized autocorrelation and picks the
//     first one exceeding a fraction of the highest,
//  3. refines that lag with parabolic interpolation,
//  4. converts the lag to a frequency as sampleRate/lag.
//
// The peak height at the chosen lag is reported as clarity in [0,1].
package pitch

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Default estimator parameters.
const (
	DefaultSilenceThreshold = 0.01
	DefaultPeakThreshold    = 0.93
	DefaultMinFrequency     = 50.0
	DefaultMaxFrequency     = 2000.0
	DefaultMinClarity       = 0.5
)

// Config holds estimator parameters
type Config struct {
	SilenceThreshold float64 // minimum frame RMS
	PeakThreshold    float64 // fraction of the highest key maximum a peak must reach
	MinFrequency     float64 // Hz
	MaxFrequency     float64 // Hz
	MinClarity       float64 // frames below this clarity report no pitch
}

// DefaultConfig returns the parameters used for live input.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: DefaultSilenceThreshold,
		PeakThreshold:    DefaultPeakThreshold,
		MinFrequency:     DefaultMinFrequency,
		MaxFrequency:     DefaultMaxFrequency,
		MinClarity:       DefaultMinClarity,
	}
}

// Result is the outcome of estimating one frame.
// Frequency <= 0 means no pitch was found.
type Result struct {
	Frequency float64
	Clarity   float64
	RMS       float64
}

// Pitched reports whether the result carries a frequency.
func (r Result) Pitched() bool {
	return r.Frequency > 0
}

// Estimator estimates fundamental frequencies. It holds only configuration
// and is safe for concurrent use.
type Estimator struct {
	cfg Config
}

// NewEstimator returns an estimator, filling zero parameters with defaults.
func NewEstimator(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = def.SilenceThreshold
	}
	if cfg.PeakThreshold <= 0 || cfg.PeakThreshold > 1 {
		cfg.PeakThreshold = def.PeakThreshold
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = def.MinFrequency
	}
	if cfg.MaxFrequency <= cfg.MinFrequency {
		cfg.MaxFrequency = max(def.MaxFrequency, cfg.MinFrequency*2)
	}
	if cfg.MinClarity <= 0 || cfg.MinClarity > 1 {
		cfg.MinClarity = def.MinClarity
	}
	return &Estimator{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate returns the fundamental frequency of frame. Degenerate input
// (empty, non-finite, silent or aperiodic) yields a Result without pitch;
// Estimate never fails.
func (e *Estimator) Estimate(frame []float32, sampleRate int) Result {
	n := len(frame)
	if n < 4 || sampleRate <= 0 {
		return Result{}
	}

	x := make([]float64, n)
	var energy float64
	for i, s := range frame {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}
		}
		x[i] = v
		energy += v * v
	}

	rms := math.Sqrt(energy / float64(n))
	if rms < e.cfg.SilenceThreshold {
		return Result{RMS: rms}
	}

	sr := float64(sampleRate)
	maxLag := min(n-2, int(math.Ceil(sr/e.cfg.MinFrequency))+1)
	if maxLag < 3 {
		return Result{RMS: rms}
	}

	nsdf := normalizedAutocorrelation(x, maxLag)
	tau, ok := pickPeak(nsdf, e.cfg.PeakThreshold)
	if !ok {
		return Result{RMS: rms}
	}

	lag, peak := interpolate(nsdf, tau)
	clarity := math.Min(1, math.Max(0, peak))
	res := Result{Clarity: clarity, RMS: rms}
	if lag <= 0 || clarity < e.cfg.MinClarity {
		return res
	}

	freq := sr / lag
	if freq < e.cfg.MinFrequency || freq > e.cfg.MaxFrequency {
		return res
	}
	res.Frequency = freq
	return res
}

// normalizedAutocorrelation returns n'(tau) = 2r(tau)/m(tau) for
// tau in [0, maxLag], where r is the autocorrelation and m the sum of
// squared terms over the overlapping window.
func normalizedAutocorrelation(x []float64, maxLag int) []float64 {
	n := len(x)

	size := 1
	for size < 2*n {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = c * cmplx.Conj(c)
	}
	acf := fft.IFFT(spectrum)

	nsdf := make([]float64, maxLag+1)
	var m float64
	for _, v := range x {
		m += 2 * v * v
	}
	for tau := 0; tau <= maxLag; tau++ {
		if tau > 0 {
			m -= x[tau-1]*x[tau-1] + x[n-tau]*x[n-tau]
		}
		if m > 1e-12 {
			nsdf[tau] = 2 * real(acf[tau]) / m
		}
	}
	return nsdf
}

// pickPeak returns the lag of the first key maximum whose height reaches
// threshold times the highest key maximum. A key maximum is the highest
// point of a positive region after the zero-lag lobe.
func pickPeak(nsdf []float64, threshold float64) (int, bool) {
	last := len(nsdf) - 1
	pos := 1

	for pos < last && nsdf[pos] > 0 {
		pos++
	}
	for pos < last && nsdf[pos] <= 0 {
		pos++
	}

	var keyMaxima []int
	best := 0
	for pos < last {
		if nsdf[pos] > 0 {
			if nsdf[pos] > nsdf[pos-1] && nsdf[pos] >= nsdf[pos+1] && (best == 0 || nsdf[pos] > nsdf[best]) {
				best = pos
			}
		} else if best > 0 {
			keyMaxima = append(keyMaxima, best)
			best = 0
		}
		pos++
	}
	if best > 0 {
		keyMaxima = append(keyMaxima, best)
	}
	if len(keyMaxima) == 0 {
		return 0, false
	}

	highest := 0.0
	for _, k := range keyMaxima {
		highest = math.Max(highest, nsdf[k])
	}
	if highest <= 0 {
		return 0, false
	}

	cutoff := threshold * highest
	for _, k := range keyMaxima {
		if nsdf[k] >= cutoff {
			return k, true
		}
	}
	return 0, false
}

// interpolate fits a parabola through the peak and its neighbours and
// returns the refined lag and peak height.
func interpolate(nsdf []float64, tau int) (float64, float64) {
	if tau < 1 || tau >= len(nsdf)-1 {
		return float64(tau), nsdf[tau]
	}
	alpha, beta, gamma := nsdf[tau-1], nsdf[tau], nsdf[tau+1]
	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return float64(tau), beta
	}
	delta := (alpha - gamma) / (2 * denom)
	return float64(tau) + delta, beta - 0.25*(alpha-gamma)*delta
}
