package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Settings is the user-facing part of the configuration, the [settings] table.
// It can change at runtime through the file watcher.
type Settings struct {
	ClientName      string `toml:"client_name" json:"client_name" validate:"required,max=64"`
	ClientID        string `toml:"client_id" json:"client_id" validate:"omitempty,uuid"`
	RecordingDevice string `toml:"recording_device" json:"recording_device" validate:"max=256"`
	SampleRate      int    `toml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=384000"`
}

// Normalize fills defaults: the host name as client name and a random client id.
func (s Settings) Normalize() Settings {
	if s.ClientName == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			s.ClientName = host
		} else {
			s.ClientName = "micnode"
		}
	}
	if s.ClientID == "" {
		s.ClientID = uuid.NewString()
	}
	return s
}

// Validate checks the settings' struct tags.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// LoadSettings reads the [settings] table of path. A missing file gives
// empty settings. The result is not normalized.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	var doc struct {
		Settings Settings `toml:"settings"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return doc.Settings, nil
}

// Overlay returns base with every non-zero field of s applied on top.
func (s Settings) Overlay(base Settings) Settings {
	if s.ClientName != "" {
		base.ClientName = s.ClientName
	}
	if s.ClientID != "" {
		base.ClientID = s.ClientID
	}
	if s.RecordingDevice != "" {
		base.RecordingDevice = s.RecordingDevice
	}
	if s.SampleRate != 0 {
		base.SampleRate = s.SampleRate
	}
	return base
}

// SettingsLoader returns a loader for the config watcher. Keys missing from
// the file keep their value from base, the settings resolved at startup, so
// the client id stays stable across reloads. Invalid files are rejected.
func SettingsLoader(base Settings) func(path string) (Settings, error) {
	return func(path string) (Settings, error) {
		s, err := LoadSettings(path)
		if err != nil {
			return Settings{}, err
		}
		s = s.Overlay(base).Normalize()
		if err := s.Validate(); err != nil {
			return Settings{}, err
		}
		return s, nil
	}
}
