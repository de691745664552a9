package pitch

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/notematch/internal/music"
)

const testSampleRate = 48000

func sine(freq float64, amplitude float64, n, sampleRate int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return frame
}

// harmonic builds a tone with decaying overtones, closer to a sung or bowed note.
func harmonic(freq float64, n, sampleRate int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		t := float64(i) / float64(sampleRate)
		v := 0.5*math.Sin(2*math.Pi*freq*t) +
			0.25*math.Sin(2*math.Pi*2*freq*t) +
			0.12*math.Sin(2*math.Pi*3*freq*t)
		frame[i] = float32(v)
	}
	return frame
}

func TestEstimateSine(t *testing.T) {
	t.Parallel()

	est := NewEstimator(DefaultConfig())
	tests := []struct {
		name string
		freq float64
	}{
		{"C3", 130.81},
		{"C4", 261.63},
		{"E4", 329.63},
		{"A4", 440},
		{"C6", 1046.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := est.Estimate(sine(tt.freq, 0.5, 2048, testSampleRate), testSampleRate)
			require.True(t, res.Pitched(), "expected a pitch, got %+v", res)
			assert.InDelta(t, tt.freq, res.Frequency, tt.freq*0.01)
			assert.Greater(t, res.Clarity, 0.9)
			assert.Equal(t, tt.name, music.Quantize(res.Frequency).String())
		})
	}
}

func TestEstimateHarmonicToneFindsFundamental(t *testing.T) {
	t.Parallel()

	est := NewEstimator(DefaultConfig())
	res := est.Estimate(harmonic(196, 2048, testSampleRate), testSampleRate)
	require.True(t, res.Pitched())
	assert.Equal(t, "G3", music.Quantize(res.Frequency).String())
}

func TestEstimateDegenerateInput(t *testing.T) {
	t.Parallel()

	est := NewEstimator(DefaultConfig())
	nan := sine(440, 0.5, 2048, testSampleRate)
	nan[100] = float32(math.NaN())
	inf := sine(440, 0.5, 2048, testSampleRate)
	inf[7] = float32(math.Inf(1))

	tests := []struct {
		name       string
		frame      []float32
		sampleRate int
	}{
		{"empty", nil, testSampleRate},
		{"too short", []float32{0.1, -0.1}, testSampleRate},
		{"silence", make([]float32, 2048), testSampleRate},
		{"below silence threshold", sine(440, 0.005, 2048, testSampleRate), testSampleRate},
		{"nan sample", nan, testSampleRate},
		{"inf sample", inf, testSampleRate},
		{"zero sample rate", sine(440, 0.5, 2048, testSampleRate), 0},
		{"dc offset", constant(0.3, 2048), testSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := est.Estimate(tt.frame, tt.sampleRate)
			assert.False(t, res.Pitched(), "unexpected pitch %+v", res)
		})
	}
}

func TestEstimateNoiseHasLowClarity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	frame := make([]float32, 2048)
	for i := range frame {
		frame[i] = float32(rng.Float64()*2 - 1)
	}

	res := NewEstimator(DefaultConfig()).Estimate(frame, testSampleRate)
	assert.False(t, res.Pitched())
	assert.Less(t, res.Clarity, DefaultMinClarity)
}

func TestEstimateFrequencyBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinFrequency = 200
	cfg.MaxFrequency = 800
	est := NewEstimator(cfg)

	assert.False(t, est.Estimate(sine(1200, 0.5, 2048, testSampleRate), testSampleRate).Pitched())
	assert.True(t, est.Estimate(sine(440, 0.5, 2048, testSampleRate), testSampleRate).Pitched())
}

func TestNewEstimatorDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewEstimator(Config{}).Config()
	assert.Equal(t, DefaultConfig(), cfg)
}

func constant(v float32, n int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestModeFilter(t *testing.T) {
	t.Parallel()

	c4 := music.MustParseNote("C4")
	c5 := music.MustParseNote("C5")

	f := NewModeFilter(5, 2)

	_, ok := f.Push(c4)
	assert.False(t, ok, "one vote is not enough")

	got, ok := f.Push(c4)
	require.True(t, ok)
	assert.Equal(t, c4, got)

	got, ok = f.Push(c5)
	require.True(t, ok)
	assert.Equal(t, c4, got, "a single octave jump is outvoted")

	f.Reset()
	_, ok = f.Push(c5)
	assert.False(t, ok)
}

func TestModeFilterDisabled(t *testing.T) {
	t.Parallel()

	c4 := music.MustParseNote("C4")
	for _, f := range []*ModeFilter{nil, NewModeFilter(0, 2), NewModeFilter(1, 3)} {
		got, ok := f.Push(c4)
		assert.True(t, ok)
		assert.Equal(t, c4, got)
	}
}
