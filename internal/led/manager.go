// Package led shows the microphone's state on a board LED: off while
// disconnected, blinking while looking for a peer, solid when connected and
// a heartbeat while audio is streaming.
package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/micnode/internal/events"
)

// Manager follows connection and recording events on the bus.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu          sync.Mutex
	unsubscribe []func()
	connection  string
	recording   bool
	shown       string
}

// NewManager creates a manager. Nothing is shown until Start.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		connection: events.ConnectionDisconnected,
	}
}

// Start subscribes to the bus and shows the initial pattern.
func (m *Manager) Start() {
	m.mu.Lock()
	m.unsubscribe = []func(){
		m.eventBus.Subscribe(m.handleConnect),
		m.eventBus.Subscribe(m.handleRecording),
	}
	m.update()
	m.mu.Unlock()
	m.logger.Info("LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.unsubscribe {
		u()
	}
	m.unsubscribe = nil
	m.show(PatternOff)
	m.logger.Info("LED manager stopped")
}

// Pattern returns the pattern currently shown.
func (m *Manager) Pattern() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

func (m *Manager) handleConnect(e events.ConnectEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connection = e.State
	m.update()
}

func (m *Manager) handleRecording(e events.RecordingStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = e.Recording
	m.update()
}

// PatternFor maps the connection state and recording flag to a pattern.
func PatternFor(connection string, recording bool) string {
	switch connection {
	case events.ConnectionConnected:
		if recording {
			return PatternHeartbeat
		}
		return PatternSolid
	case events.ConnectionConnecting:
		return PatternBlink
	default:
		return PatternOff
	}
}

func (m *Manager) update() {
	m.show(PatternFor(m.connection, m.recording))
}

func (m *Manager) show(pattern string) {
	if pattern == m.shown {
		return
	}
	if err := m.controller.Set(pattern); err != nil {
		m.logger.Warn("Failed to set LED", "pattern", pattern, "error", err)
		return
	}
	m.logger.Debug("LED pattern changed", "from", m.shown, "to", pattern)
	m.shown = pattern
}
