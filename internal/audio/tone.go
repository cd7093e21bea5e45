package audio

import (
	"math"
)

// ToneDevice is the device name the tone backend lists.
const ToneDevice = "tone"

// ToneSource is a software backend producing a continuous sine wave.
// It supports any rate between 8 kHz and 48 kHz.
type ToneSource struct {
	Frequency float64
	Amplitude float32

	running producers
}

// NewToneSource returns a tone backend at the given frequency in Hz.
func NewToneSource(frequency float64) *ToneSource {
	if frequency <= 0 {
		frequency = 440
	}
	return &ToneSource{Frequency: frequency, Amplitude: 0.3}
}

func (s *ToneSource) Name() string { return "tone" }

func (s *ToneSource) Devices() ([]string, error) {
	return []string{ToneDevice}, nil
}

func (s *ToneSource) Capabilities(device string) (Capabilities, error) {
	if device != ToneDevice {
		return Capabilities{}, &DeviceError{Backend: s.Name(), Device: device, Op: "capabilities", Err: ErrUnknownDevice}
	}
	return Capabilities{MinSampleRate: 8000, MaxSampleRate: 48000}, nil
}

func (s *ToneSource) Start(device string, lengthSeconds, sampleRate int) (Clip, error) {
	caps, err := s.Capabilities(device)
	if err != nil {
		return nil, err
	}
	if sampleRate < caps.MinSampleRate || sampleRate > caps.MaxSampleRate {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: ErrUnsupportedRate}
	}
	if s.running.busy(device) {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: ErrDeviceBusy}
	}

	clip := NewLoopClip(lengthSeconds * sampleRate)
	step := 2 * math.Pi * s.Frequency / float64(sampleRate)
	var phase float64
	p := startProducer(clip, sampleRate, func(dst []float32) {
		for i := range dst {
			dst[i] = s.Amplitude * float32(math.Sin(phase))
			phase += step
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	})
	if !s.running.add(device, p) {
		p.stop()
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: ErrDeviceBusy}
	}
	return clip, nil
}

func (s *ToneSource) End(device string) error {
	s.running.stop(device)
	return nil
}

// Close stops every running tone.
func (s *ToneSource) Close() error {
	s.running.stopAll()
	return nil
}
