package audio

import (
	"errors"
	"log/slog"
	"slices"
)

// Sources routes device names to the backend that lists them.
// It implements Source itself so the capture controller sees a single backend.
type Sources struct {
	backends []Source
	logger   *slog.Logger
}

// NewSources combines backends. Device listing keeps backend order.
func NewSources(logger *slog.Logger, backends ...Source) *Sources {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sources{backends: backends, logger: logger}
}

func (s *Sources) Name() string { return "sources" }

// Backends returns the registered backends.
func (s *Sources) Backends() []Source {
	return slices.Clone(s.backends)
}

// Devices lists every backend's devices. A backend that fails to enumerate is
// skipped; an error is only returned when every backend failed.
func (s *Sources) Devices() ([]string, error) {
	var all []string
	var errs []error
	for _, b := range s.backends {
		devices, err := b.Devices()
		if err != nil {
			s.logger.Warn("Failed to list devices", "backend", b.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		all = append(all, devices...)
	}
	if len(errs) > 0 && len(errs) == len(s.backends) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (s *Sources) Capabilities(device string) (Capabilities, error) {
	b, err := s.backendFor(device)
	if err != nil {
		return Capabilities{}, err
	}
	return b.Capabilities(device)
}

func (s *Sources) Start(device string, lengthSeconds, sampleRate int) (Clip, error) {
	b, err := s.backendFor(device)
	if err != nil {
		return nil, err
	}
	return b.Start(device, lengthSeconds, sampleRate)
}

func (s *Sources) End(device string) error {
	b, err := s.backendFor(device)
	if err != nil {
		return err
	}
	return b.End(device)
}

func (s *Sources) backendFor(device string) (Source, error) {
	for _, b := range s.backends {
		devices, err := b.Devices()
		if err != nil {
			continue
		}
		if slices.Contains(devices, device) {
			return b, nil
		}
	}
	return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "lookup", Err: ErrUnknownDevice}
}
