package audio

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

// FileSource plays a recording as if it were captured live. Each
// ReadFrame advances the playhead by the hop duration and returns the
// frame that ends at the playhead; past the end of the recording frames
// are silent.
type FileSource struct {
	path string
	hop  time.Duration
	log  logger.Logger

	mu       sync.Mutex
	samples  []float32
	rate     int
	playhead int
	loaded   bool
}

// NewFileSource returns a source for a WAV or FLAC file.
func NewFileSource(path string, hop time.Duration) *FileSource {
	return &FileSource{path: path, hop: hop, log: GetLogger()}
}

// Acquire decodes the whole recording to mono float32.
func (f *FileSource) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(ctx)
	}

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(err, map[string]any{"path": f.path})
		}
		if os.IsPermission(err) {
			return errors.New(errors.Join(ErrNotAllowed, err)).
				Component("audio").
				Category(errors.CategoryPermission).
				Context("path", f.path).
				Build()
		}
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", f.path).
			Build()
	}
	defer file.Close()

	var samples []float32
	var rate int
	switch ext := strings.ToLower(filepath.Ext(f.path)); ext {
	case ".wav":
		samples, rate, err = decodeWAV(file)
	case ".flac":
		samples, rate, err = decodeFLAC(file)
	default:
		err = errors.Newf("unsupported audio file type %q", ext).
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryOf(err)).
			Context("path", f.path).
			Build()
	}

	f.mu.Lock()
	f.samples = samples
	f.rate = rate
	f.playhead = 0
	f.loaded = true
	f.mu.Unlock()

	f.log.Info("recording loaded",
		logger.String("path", f.path),
		logger.Int("sample_rate", rate),
		logger.Duration("length", f.Duration()))
	return nil
}

// SampleRate returns the recording's sample rate, 0 before Acquire.
func (f *FileSource) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Duration returns the length of the decoded recording.
func (f *FileSource) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rate <= 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.rate)
}

// Exhausted reports whether the playhead has passed the last sample.
func (f *FileSource) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded && f.playhead >= len(f.samples)
}

// ReadFrame advances the playhead by one hop and fills dst with the
// samples that end there, zero padded before the start and after the end.
func (f *FileSource) ReadFrame(dst []float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return 0, errors.New(ErrNotAcquired).
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	f.playhead += int(f.hop.Seconds() * float64(f.rate))
	start := f.playhead - len(dst)

	clear(dst)
	for i := range dst {
		j := start + i
		if j >= 0 && j < len(f.samples) {
			dst[i] = f.samples[j]
		}
	}
	return len(dst), nil
}

// Release drops the decoded samples.
func (f *FileSource) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = nil
	f.loaded = false
	f.playhead = 0
	return nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, errors.Newf("invalid WAV file").
			Category(errors.CategoryFileParsing).
			Build()
	}

	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, errors.Newf("unsupported WAV bit depth %d", decoder.BitDepth).
			Category(errors.CategoryFileParsing).
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.New(err).
			Category(errors.CategoryFileParsing).
			Build()
	}
	return intBufferToMono(buf, int(decoder.BitDepth)), int(decoder.SampleRate), nil
}

// intBufferToMono averages interleaved channels and scales to [-1,1].
// 8-bit PCM is unsigned with its midpoint at 128.
func intBufferToMono(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := float32(int64(1) << (bitDepth - 1))
	var offset float32
	if bitDepth == 8 {
		offset = 128
	}

	out := make([]float32, len(buf.Data)/channels)
	for i := range out {
		var sum float32
		for ch := range channels {
			sum += float32(buf.Data[i*channels+ch]) - offset
		}
		out[i] = sum / float32(channels) / scale
	}
	return out
}

func decodeFLAC(r io.Reader) ([]float32, int, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, 0, errors.New(err).
			Category(errors.CategoryFileParsing).
			Build()
	}

	width := decoder.BitsPerSample / 8
	channels := decoder.NChannels
	switch {
	case width < 2 || width > 4:
		return nil, 0, errors.Newf("unsupported FLAC bit depth %d", decoder.BitsPerSample).
			Category(errors.CategoryFileParsing).
			Build()
	case channels < 1:
		return nil, 0, errors.Newf("invalid FLAC channel count %d", channels).
			Category(errors.CategoryFileParsing).
			Build()
	}
	scale := float32(int64(1) << (decoder.BitsPerSample - 1))
	stride := width * channels

	var out []float32
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.New(err).
				Category(errors.CategoryFileParsing).
				Build()
		}
		for i := 0; i+stride <= len(frame); i += stride {
			var sum float32
			for ch := range channels {
				sum += float32(pcmSample(frame[i+ch*width:], width))
			}
			out = append(out, sum/float32(channels)/scale)
		}
	}
	return out, decoder.SampleRate, nil
}

// pcmSample reads one signed little-endian sample of the given byte width.
func pcmSample(b []byte, width int) int32 {
	switch width {
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}
