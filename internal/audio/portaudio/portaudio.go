//go:build cgo

// Package portaudio captures microphones through the PortAudio library.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/smazurov/micnode/internal/audio"
)

// Source is the PortAudio capture backend. Open must be called before use
// and Close releases the library.
type Source struct {
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*pa.Stream
}

// Open initializes PortAudio.
func Open(logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	logger.Debug("PortAudio initialized", "version", pa.VersionText())
	return &Source{logger: logger, streams: make(map[string]*pa.Stream)}, nil
}

// Close stops all streams and terminates PortAudio.
func (s *Source) Close() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := s.End(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := pa.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Source) Name() string { return "portaudio" }

// Devices lists every device with at least one input channel.
func (s *Source) Devices() ([]string, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Capabilities probes the common rates and reports the lowest and highest
// the device accepts for mono float capture.
func (s *Source) Capabilities(device string) (audio.Capabilities, error) {
	dev, err := s.lookup(device)
	if err != nil {
		return audio.Capabilities{}, err
	}

	var caps audio.Capabilities
	for _, rate := range audio.CommonSampleRates {
		if pa.IsFormatSupported(inputParameters(dev, rate), make([]float32, 0)) != nil {
			continue
		}
		if caps.MinSampleRate == 0 {
			caps.MinSampleRate = rate
		}
		caps.MaxSampleRate = rate
	}
	if caps.Unreported() && dev.DefaultSampleRate > 0 {
		rate := int(dev.DefaultSampleRate)
		caps = audio.Capabilities{MinSampleRate: rate, MaxSampleRate: rate}
	}
	return caps, nil
}

// Start opens a mono input stream whose callback writes into a looping clip.
func (s *Source) Start(device string, lengthSeconds, sampleRate int) (audio.Clip, error) {
	dev, err := s.lookup(device)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[device]; ok {
		return nil, &audio.DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: audio.ErrDeviceBusy}
	}

	clip := audio.NewLoopClip(lengthSeconds * sampleRate)
	stream, err := pa.OpenStream(inputParameters(dev, sampleRate), func(in []float32) {
		clip.Write(in)
	})
	if err != nil {
		return nil, &audio.DeviceError{Backend: s.Name(), Device: device, Op: "open stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, &audio.DeviceError{Backend: s.Name(), Device: device, Op: "start stream", Err: err}
	}

	s.streams[device] = stream
	s.logger.Info("Input stream started", "device", device, "sample_rate", sampleRate)
	return clip, nil
}

// End stops and closes the device's stream. Ending a stopped device is a no-op.
func (s *Source) End(device string) error {
	s.mu.Lock()
	stream, ok := s.streams[device]
	delete(s.streams, device)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return &audio.DeviceError{Backend: s.Name(), Device: device, Op: "stop stream", Err: err}
	}
	s.logger.Info("Input stream stopped", "device", device)
	return nil
}

func (s *Source) lookup(device string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, &audio.DeviceError{Backend: "portaudio", Device: device, Op: "lookup", Err: audio.ErrUnknownDevice}
}

func inputParameters(dev *pa.DeviceInfo, sampleRate int) pa.StreamParameters {
	return pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: pa.FramesPerBufferUnspecified,
	}
}
