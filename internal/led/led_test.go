package led

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/micnode/internal/events"
)

type mockController struct {
	mu       sync.Mutex
	patterns []string
}

func (m *mockController) Set(pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return nil
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.patterns) == 0 {
		return ""
	}
	return m.patterns[len(m.patterns)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForPattern(t *testing.T, ctrl *mockController, want string) {
	t.Helper()
	deadline := time.After(time.Second)
	for ctrl.last() != want {
		select {
		case <-deadline:
			t.Fatalf("LED pattern = %q, want %q", ctrl.last(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPatternFor(t *testing.T) {
	tests := []struct {
		connection string
		recording  bool
		want       string
	}{
		{events.ConnectionDisconnected, false, PatternOff},
		{events.ConnectionDisconnected, true, PatternOff},
		{events.ConnectionConnecting, false, PatternBlink},
		{events.ConnectionConnected, false, PatternSolid},
		{events.ConnectionConnected, true, PatternHeartbeat},
	}
	for _, tt := range tests {
		if got := PatternFor(tt.connection, tt.recording); got != tt.want {
			t.Errorf("PatternFor(%q, %v) = %q, want %q", tt.connection, tt.recording, got, tt.want)
		}
	}
}

func TestManager_FollowsBus(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus, testLogger())
	mgr.Start()

	waitForPattern(t, ctrl, PatternOff)

	bus.Publish(events.ConnectEvent{AttemptCount: 1, State: events.ConnectionConnecting})
	waitForPattern(t, ctrl, PatternBlink)

	bus.Publish(events.ConnectEvent{Success: true, State: events.ConnectionConnected})
	waitForPattern(t, ctrl, PatternSolid)

	bus.Publish(events.RecordingStateChangedEvent{Recording: true})
	waitForPattern(t, ctrl, PatternHeartbeat)

	bus.Publish(events.ConnectEvent{State: events.ConnectionDisconnected})
	waitForPattern(t, ctrl, PatternOff)

	mgr.Stop()
	if got := mgr.Pattern(); got != PatternOff {
		t.Errorf("pattern after Stop = %q", got)
	}
}

func TestManager_SkipsRepeatedPattern(t *testing.T) {
	ctrl := &mockController{}
	mgr := NewManager(ctrl, events.New(), testLogger())

	mgr.handleConnect(events.ConnectEvent{Success: true, State: events.ConnectionConnected})
	mgr.handleConnect(events.ConnectEvent{Success: true, State: events.ConnectionConnected})
	mgr.handleRecording(events.RecordingStateChangedEvent{Recording: false})

	if len(ctrl.patterns) != 1 || ctrl.patterns[0] != PatternSolid {
		t.Errorf("patterns = %v, want [solid]", ctrl.patterns)
	}
}

func TestSysfs_Set(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "usr_led"), 0o755); err != nil {
		t.Fatal(err)
	}
	led := newSysfs(root, "usr_led")

	tests := []struct {
		pattern    string
		trigger    string
		brightness string
	}{
		{PatternSolid, "none", "1"},
		{PatternOff, "none", "0"},
		{PatternBlink, "timer", "0"},
		{PatternHeartbeat, "heartbeat", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if err := led.Set(tt.pattern); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			trigger, _ := os.ReadFile(filepath.Join(root, "usr_led", "trigger"))
			brightness, _ := os.ReadFile(filepath.Join(root, "usr_led", "brightness"))
			if string(trigger) != tt.trigger {
				t.Errorf("trigger = %q, want %q", trigger, tt.trigger)
			}
			if string(brightness) != tt.brightness {
				t.Errorf("brightness = %q, want %q", brightness, tt.brightness)
			}
		})
	}

	if err := led.Set("disco"); err == nil {
		t.Error("expected error for unknown pattern")
	}
	if err := newSysfs(root, "missing").Set(PatternSolid); err == nil {
		t.Error("expected error for missing LED")
	}
}

func TestBoardLED(t *testing.T) {
	tests := map[string]string{
		"FriendlyElec NanoPC-T6":         "usr_led",
		"Raspberry Pi 4 Model B Rev 1.4": "ACT",
		"Orange Pi 5":                    "green_led",
		"unknown":                        "",
	}
	for model, want := range tests {
		if got := boardLED(model); got != want {
			t.Errorf("boardLED(%q) = %q, want %q", model, got, want)
		}
	}
}
