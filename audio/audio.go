package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Capture format used for dictation: 16 kHz mono PCM16.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BytesPerFrame = Channels * BitsPerSample / 8
)

// ErrPermissionDenied reports that the platform refused microphone access.
var ErrPermissionDenied = errors.New("microphone access denied")

// DeviceError wraps any other failure to open or start a capture device.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("microphone %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a headset that
// drops to low-bandwidth audio while its microphone is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCaptureConfig is the format every recognizer in this module expects.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// String names the device; a nil device is the system default.
func (d *DeviceInfo) String() string {
	if d == nil {
		return "system default"
	}
	return d.Name
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Classify maps a platform error onto ErrPermissionDenied or a DeviceError.
func Classify(device string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.Is(err, ErrPermissionDenied) || errors.As(err, &de) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"access denied", "permission", "not allowed", "notallowed"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return &DeviceError{Device: device, Err: err}
}
