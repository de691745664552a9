package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

const (
	bytesPerSample     = 4 // f32
	defaultSampleRate  = 48000
	defaultRingSeconds = 2
)

// CaptureConfig configures a live capture source
type CaptureConfig struct {
	Device      string // name, decoded id or partial name; "" for the default
	SampleRate  int
	RingSeconds int // seconds of audio held between reads
}

// CaptureSource captures mono float32 audio from a sound card.
//
// The miniaudio data callback writes raw samples into a ring buffer; when
// the ring is full the oldest audio is discarded. ReadFrame drains the
// ring into a sliding history and returns its newest samples.
type CaptureSource struct {
	cfg CaptureConfig
	log logger.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	ring    *ringbuffer.RingBuffer
	rate    int
	name    string
	history []float32
	scratch []byte

	discard   []byte // callback goroutine only
	lost      atomic.Bool
	releasing atomic.Bool
}

// NewCaptureSource returns an unacquired capture source.
func NewCaptureSource(cfg CaptureConfig) *CaptureSource {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = defaultRingSeconds
	}
	return &CaptureSource{cfg: cfg, rate: cfg.SampleRate, log: GetLogger()}
}

// Acquire opens and starts the capture device.
func (c *CaptureSource) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	mctx, err := initContext()
	if err != nil {
		return err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return deviceError(err, "enumerate_devices")
	}
	devices := describeDevices(infos)
	idx := matchDevice(devices, c.cfg.Device)
	if idx < 0 {
		freeContext(mctx)
		return notFound(nil, map[string]any{
			"device":            c.cfg.Device,
			"available_devices": len(devices),
		})
	}
	selected := devices[idx]

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	c.ring = ringbuffer.New(c.cfg.SampleRate * c.cfg.RingSeconds * bytesPerSample)
	c.history = c.history[:0]
	c.lost.Store(false)
	c.releasing.Store(false)

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onStop,
	})
	if err != nil {
		freeContext(mctx)
		return deviceError(err, "init_device")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return deviceError(err, "start_device")
	}

	if err := ctx.Err(); err != nil {
		c.releasing.Store(true)
		_ = device.Stop()
		device.Uninit()
		freeContext(mctx)
		return cancelled(ctx)
	}

	c.ctx = mctx
	c.device = device
	c.rate = int(device.SampleRate())
	c.name = selected.Name

	c.log.Info("capture started",
		logger.String("device", selected.Name),
		logger.String("id", selected.ID),
		logger.Int("sample_rate", c.rate))
	return nil
}

// SampleRate returns the device rate once acquired, the requested rate
// before that.
func (c *CaptureSource) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// DeviceName returns the name of the acquired device.
func (c *CaptureSource) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// ReadFrame copies the newest len(dst) samples into the end of dst.
func (c *CaptureSource) ReadFrame(dst []float32) (int, error) {
	if c.lost.Load() {
		return 0, errors.New(ErrDeviceLost).
			Component("audio").
			Category(errors.CategoryDevice).
			Context("device", c.DeviceName()).
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return 0, errors.New(ErrNotAcquired).
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	c.drainLocked(len(dst))

	n := min(len(c.history), len(dst))
	copy(dst[len(dst)-n:], c.history[len(c.history)-n:])
	clear(dst[:len(dst)-n])
	return n, nil
}

// drainLocked moves everything in the ring into the history, keeping at
// most keep samples.
func (c *CaptureSource) drainLocked(keep int) {
	avail := c.ring.Length()
	avail -= avail % bytesPerSample
	if avail > 0 {
		if cap(c.scratch) < avail {
			c.scratch = make([]byte, avail)
		}
		buf := c.scratch[:avail]
		n, _ := c.ring.Read(buf)
		c.history = appendSamples(c.history, buf[:n-n%bytesPerSample])
	}
	if over := len(c.history) - keep; over > 0 {
		c.history = append(c.history[:0], c.history[over:]...)
	}
}

func appendSamples(dst []float32, raw []byte) []float32 {
	for i := 0; i+bytesPerSample <= len(raw); i += bytesPerSample {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
	}
	return dst
}

// Release stops and frees the device.
func (c *CaptureSource) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}

	c.releasing.Store(true)
	var err error
	if stopErr := c.device.Stop(); stopErr != nil {
		err = deviceError(stopErr, "stop_device")
	}
	c.device.Uninit()
	c.device = nil
	freeContext(c.ctx)
	c.ctx = nil
	c.history = c.history[:0]

	c.log.Info("capture released", logger.String("device", c.name))
	return err
}

func (c *CaptureSource) onData(_, input []byte, _ uint32) {
	if free := c.ring.Free(); free < len(input) {
		need := len(input) - free
		need += (bytesPerSample - need%bytesPerSample) % bytesPerSample
		if cap(c.discard) < need {
			c.discard = make([]byte, need)
		}
		_, _ = c.ring.Read(c.discard[:need])
	}
	if _, err := c.ring.Write(input); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		c.log.Warn("capture ring write failed", logger.Error(err))
	}
}

func (c *CaptureSource) onStop() {
	if c.releasing.Load() {
		return
	}
	c.lost.Store(true)
	c.log.Warn("capture device stopped unexpectedly")
}

func freeContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}
