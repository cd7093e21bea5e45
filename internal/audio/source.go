package audio

import (
	"errors"
	"fmt"
)

// DefaultSampleRate is used when a device reports no usable rate range.
const DefaultSampleRate = 44100

// CommonSampleRates are the rates backends probe when a device cannot report
// a continuous range.
var CommonSampleRates = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

var (
	// ErrUnknownDevice is returned for a device name no backend lists.
	ErrUnknownDevice = errors.New("unknown recording device")
	// ErrDeviceBusy is returned when a device is started twice.
	ErrDeviceBusy = errors.New("recording device already started")
	// ErrUnsupportedRate is returned when a backend cannot record at the requested rate.
	ErrUnsupportedRate = errors.New("sample rate not supported by device")
)

// Capabilities is the inclusive sample rate range a device supports.
// Both bounds are 0 when the device does not report a range.
type Capabilities struct {
	MinSampleRate int `json:"min_sample_rate"`
	MaxSampleRate int `json:"max_sample_rate"`
}

// Unreported reports whether the device gave no usable rate range.
func (c Capabilities) Unreported() bool {
	return c.MinSampleRate == 0 && c.MaxSampleRate == 0
}

// Source is a capture backend. Start begins recording mono float samples
// into a looping clip of lengthSeconds seconds. End stops it again.
type Source interface {
	Name() string
	Devices() ([]string, error)
	Capabilities(device string) (Capabilities, error)
	Start(device string, lengthSeconds, sampleRate int) (Clip, error)
	End(device string) error
}

// DeviceError ties a backend failure to the device it concerns.
type DeviceError struct {
	Backend string
	Device  string
	Op      string
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", e.Backend, e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
