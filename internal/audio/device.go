package audio

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string // decoded backend id, e.g. ":1,0" on ALSA
	Default bool
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("audio").
			Category(errors.CategoryDevice).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	log := GetLogger()
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		log.Trace("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, deviceError(err, "init_context")
	}
	return ctx, nil
}

// ListCaptureDevices returns the capture devices of the platform backend.
func ListCaptureDevices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, deviceError(err, "enumerate_devices")
	}
	return describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// miniaudio's null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      decodeID(infos[i].ID.String()),
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

func decodeID(hexID string) string {
	b, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	return strings.TrimRight(string(b), "\x00")
}

// matchDevice picks the device for the requested name: the system default
// for "", "default" or "sysdefault", otherwise an exact name, then a
// decoded id, then a partial name match. It returns the index into
// devices or -1.
func matchDevice(devices []DeviceInfo, name string) int {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].Default {
				return i
			}
		}
		if len(devices) > 0 {
			return 0
		}
		return -1
	}
	for i := range devices {
		if devices[i].Name == name {
			return i
		}
	}
	for i := range devices {
		if devices[i].ID == name {
			return i
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name, name) {
			return i
		}
	}
	return -1
}
