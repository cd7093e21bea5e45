package events

import "net/netip"

// Event type constants for kelindar/event.
const (
	TypeDeviceSelected uint32 = iota + 1
	TypeRecordingStateChanged
	TypeConnect
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Connection states carried by ConnectEvent.
const (
	ConnectionDisconnected = "disconnected"
	ConnectionConnecting   = "connecting"
	ConnectionConnected    = "connected"
)

// DeviceSelectedEvent is published after a capture device and sample rate were chosen.
// The capability bounds let a UI offer a rate choice.
type DeviceSelectedEvent struct {
	DeviceName    string `json:"device_name" example:"USB-Mic"`
	MinSampleRate int    `json:"min_sample_rate" example:"16000"`
	MaxSampleRate int    `json:"max_sample_rate" example:"48000"`
	SampleRate    int    `json:"sample_rate" example:"48000"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z"`
}

// Type returns the event type identifier for DeviceSelectedEvent.
func (e DeviceSelectedEvent) Type() uint32 { return TypeDeviceSelected }

// RecordingStateChangedEvent is published on every real recording transition.
type RecordingStateChangedEvent struct {
	DeviceName string `json:"device_name"`
	SampleRate int    `json:"sample_rate"`
	Recording  bool   `json:"recording"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStateChangedEvent.
func (e RecordingStateChangedEvent) Type() uint32 { return TypeRecordingStateChanged }

// ConnectEvent reports the outcome of discovery.
//
// A success carries the peer address and the session ports and always has
// AttemptCount 0. A failure carries the number of the attempt that failed,
// or the peer's error text in ErrorMessage. State is the connection state
// after the event was applied.
type ConnectEvent struct {
	Success        bool       `json:"success"`
	AttemptCount   int        `json:"attempt_count"`
	State          string     `json:"state" example:"connected"`
	Peer           netip.Addr `json:"peer,omitzero"`
	MicrophonePort int        `json:"microphone_port,omitempty"`
	HTTPServerPort int        `json:"http_server_port,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Timestamp      string     `json:"timestamp"`
}

// Type returns the event type identifier for ConnectEvent.
func (e ConnectEvent) Type() uint32 { return TypeConnect }

// LogEntryEvent represents a log entry for the status feed.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq"`
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// CaptureEvent describes the samples that arrived since the previous tick.
//
// Samples is the capture controller's live buffer, not a copy. StartIndex and
// EndIndex are inclusive. Subscribers must finish with the samples before
// returning, since the next tick overwrites the buffer. CaptureEvent is not an
// Event and can only be delivered through a Stream.
type CaptureEvent struct {
	Samples    []float32
	StartIndex int
	EndIndex   int
}

// Count returns the number of new samples.
func (e CaptureEvent) Count() int {
	return e.EndIndex - e.StartIndex + 1
}

// Window returns the new samples as a subslice of the live buffer.
func (e CaptureEvent) Window() []float32 {
	return e.Samples[e.StartIndex : e.EndIndex+1]
}
