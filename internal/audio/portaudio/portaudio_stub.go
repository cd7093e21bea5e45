//go:build !cgo

// Package portaudio captures microphones through the PortAudio library.
// This build has no cgo, so the backend is unavailable.
package portaudio

import (
	"log/slog"

	"github.com/smazurov/micnode/internal/audio"
)

// Source is never constructed in builds without cgo.
type Source struct{}

// Open always fails in builds without cgo.
func Open(_ *slog.Logger) (*Source, error) {
	return nil, ErrUnavailable
}

func (s *Source) Close() error { return nil }
func (s *Source) Name() string { return "portaudio" }
func (s *Source) Devices() ([]string, error) { return nil, ErrUnavailable }
func (s *Source) End(string) error { return nil }

func (s *Source) Capabilities(string) (audio.Capabilities, error) {
	return audio.Capabilities{}, ErrUnavailable
}

func (s *Source) Start(string, int, int) (audio.Clip, error) {
	return nil, ErrUnavailable
}
