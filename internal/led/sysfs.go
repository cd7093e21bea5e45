package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs drives an LED through the Linux LED class interface.
type sysfs struct {
	dir  string
	name string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{dir: filepath.Join(root, name), name: name}
}

func (s *sysfs) Name() string { return s.name }

// Set writes the trigger first, then the brightness for the manual patterns.
func (s *sysfs) Set(pattern string) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", s.name, s.dir, err)
	}

	var trigger, brightness string
	switch pattern {
	case PatternOff:
		trigger, brightness = "none", "0"
	case PatternSolid:
		trigger, brightness = "none", "1"
	case PatternBlink:
		trigger = "timer"
	case PatternHeartbeat:
		trigger = "heartbeat"
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(s.dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if brightness == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}
