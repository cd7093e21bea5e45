package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/audio/portaudio"
)

// SourceOptions selects the capture backends and their order.
type SourceOptions struct {
	Backends      []string
	WAVFiles      []string
	ToneFrequency int
}

type closer interface {
	Close() error
}

// OpenSources builds the backends named in opts. A PortAudio backend that is
// unavailable in this build is skipped with a warning. The returned func
// releases every opened backend.
func OpenSources(opts SourceOptions, logger *slog.Logger) (*audio.Sources, func(), error) {
	var (
		backends []audio.Source
		closers  []closer
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("Failed to close audio backend", "error", err)
			}
		}
	}

	for _, name := range opts.Backends {
		switch name {
		case "portaudio":
			src, err := portaudio.Open(logger)
			if errors.Is(err, portaudio.ErrUnavailable) {
				logger.Warn("PortAudio backend unavailable, skipping", "error", err)
				continue
			}
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			backends = append(backends, src)
			closers = append(closers, src)
		case "tone":
			src := audio.NewToneSource(float64(opts.ToneFrequency))
			backends = append(backends, src)
			closers = append(closers, src)
		case "wav":
			if len(opts.WAVFiles) == 0 {
				continue
			}
			src := audio.NewWAVSource(opts.WAVFiles...)
			backends = append(backends, src)
			closers = append(closers, src)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown audio backend %q", name)
		}
	}

	if len(backends) == 0 {
		closeAll()
		return nil, nil, errors.New("no audio backend available")
	}
	return audio.NewSources(logger, backends...), closeAll, nil
}
