package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/smazurov/micnode/internal/config"
	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
)

type fakeRecorder struct {
	calls      []string
	device     string
	rate       int
	recording  bool
	selectErr  error
	startErr   error
	selections int
}

func (f *fakeRecorder) Poll() { f.calls = append(f.calls, "capture.Poll") }

func (f *fakeRecorder) SelectDevice(name string, rate int) error {
	f.selections++
	f.calls = append(f.calls, "SelectDevice")
	if f.selectErr != nil {
		return f.selectErr
	}
	if name == "" {
		name = "default"
	}
	if rate == 0 {
		rate = 44100
	}
	f.device, f.rate, f.recording = name, rate, false
	return nil
}

func (f *fakeRecorder) StartRecording() error {
	f.calls = append(f.calls, "StartRecording")
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = true
	return nil
}

func (f *fakeRecorder) StopRecording() {
	f.calls = append(f.calls, "StopRecording")
	f.recording = false
}

func (f *fakeRecorder) IsRecording() bool  { return f.recording }
func (f *fakeRecorder) DeviceName() string { return f.device }
func (f *fakeRecorder) SampleRate() int    { return f.rate }

type fakeConnector struct {
	calls      []string
	connects   events.Stream[events.ConnectEvent]
	state      discovery.State
	paused     bool
	clientName string
	onPoll     func()
}

func (f *fakeConnector) Poll() {
	f.calls = append(f.calls, "discovery.Poll")
	if f.onPoll != nil {
		f.onPoll()
		f.onPoll = nil
	}
}

func (f *fakeConnector) Connects() *events.Stream[events.ConnectEvent] { return &f.connects }
func (f *fakeConnector) State() discovery.State                       { return f.state }
func (f *fakeConnector) Paused() bool                                 { return f.paused }
func (f *fakeConnector) SetPaused(paused bool)                        { f.paused = paused }
func (f *fakeConnector) SetClientName(name string)                    { f.clientName = name }

func (f *fakeConnector) CloseConnectionAndReconnect() {
	f.calls = append(f.calls, "Reconnect")
	f.state = discovery.State{Phase: discovery.Disconnected}
}

func (f *fakeConnector) connect() {
	f.state = discovery.State{
		Phase:    discovery.Connected,
		Endpoint: netip.MustParseAddrPort("192.168.1.20:50000"),
	}
	f.connects.Publish(events.ConnectEvent{Success: true, State: events.ConnectionConnected})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(autoRecord bool) (*Runner, *fakeRecorder, *fakeConnector) {
	rec := &fakeRecorder{}
	conn := &fakeConnector{}
	r := NewRunner(rec, conn, Options{AutoRecord: autoRecord, Logger: quietLogger()})
	return r, rec, conn
}

func TestTickOrder(t *testing.T) {
	r, rec, conn := newTestRunner(false)

	var order []string
	r.Do(func() { order = append(order, "task") })
	rec.calls, conn.calls = nil, nil

	r.Tick()

	if len(order) != 1 {
		t.Fatalf("queued task ran %d times, want 1", len(order))
	}
	if len(rec.calls) != 1 || rec.calls[0] != "capture.Poll" {
		t.Errorf("recorder calls = %v", rec.calls)
	}
	if len(conn.calls) != 1 || conn.calls[0] != "discovery.Poll" {
		t.Errorf("connector calls = %v", conn.calls)
	}
}

func TestAutoRecordOnConnect(t *testing.T) {
	tests := []struct {
		name       string
		autoRecord bool
		want       bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec, conn := newTestRunner(tt.autoRecord)
			if err := r.applySettings(config.Settings{ClientName: "phone"}, true); err != nil {
				t.Fatal(err)
			}
			conn.onPoll = conn.connect

			r.Tick()

			if rec.recording != tt.want {
				t.Errorf("recording = %v, want %v", rec.recording, tt.want)
			}
			if conn.clientName != "phone" {
				t.Errorf("client name = %q, want phone", conn.clientName)
			}
		})
	}
}

func TestAutoRecordStartsAfterPoll(t *testing.T) {
	r, rec, conn := newTestRunner(true)
	r.applySettings(config.Settings{}, true)

	conn.onPoll = func() {
		conn.connect()
		if rec.recording {
			t.Error("recording started inside event delivery")
		}
	}
	r.Tick()

	if !rec.recording {
		t.Error("recording not started after the tick")
	}
}

func TestApplySettings(t *testing.T) {
	r, rec, conn := newTestRunner(true)
	if err := r.applySettings(config.Settings{ClientName: "a", SampleRate: 44100}, true); err != nil {
		t.Fatal(err)
	}
	if rec.selections != 1 {
		t.Fatalf("initial selections = %d, want 1", rec.selections)
	}

	// Rename only.
	if err := r.applySettings(config.Settings{ClientName: "b", SampleRate: 44100}, false); err != nil {
		t.Fatal(err)
	}
	if rec.selections != 1 {
		t.Errorf("rename reselected the device")
	}
	if conn.clientName != "b" {
		t.Errorf("client name = %q, want b", conn.clientName)
	}

	// Rate change while connected reconnects.
	conn.connect()
	conn.calls = nil
	if err := r.applySettings(config.Settings{ClientName: "b", SampleRate: 16000}, false); err != nil {
		t.Fatal(err)
	}
	if rec.selections != 2 || rec.rate != 16000 {
		t.Errorf("selections = %d rate = %d, want 2 and 16000", rec.selections, rec.rate)
	}
	if len(conn.calls) != 1 || conn.calls[0] != "Reconnect" {
		t.Errorf("connector calls = %v, want a reconnect", conn.calls)
	}
}

func TestApplySettingsKeepsRecordingAcrossDeviceChange(t *testing.T) {
	r, rec, conn := newTestRunner(false)
	r.applySettings(config.Settings{RecordingDevice: "mic-a", SampleRate: 48000}, true)
	conn.connect()
	rec.StartRecording()

	if err := r.applySettings(config.Settings{RecordingDevice: "mic-b", SampleRate: 48000}, false); err != nil {
		t.Fatal(err)
	}
	if rec.device != "mic-b" || !rec.recording {
		t.Errorf("device = %q recording = %v, want mic-b recording", rec.device, rec.recording)
	}
}

func TestSelectRetryBackoff(t *testing.T) {
	now := time.Unix(1000, 0)
	rec := &fakeRecorder{selectErr: errors.New("no device")}
	conn := &fakeConnector{}
	r := NewRunner(rec, conn, Options{Logger: quietLogger(), Now: func() time.Time { return now }})

	if err := r.applySettings(config.Settings{}, true); err == nil {
		t.Fatal("expected selection error")
	}
	r.Tick()
	if rec.selections != 1 {
		t.Fatalf("retried before backoff expired: %d selections", rec.selections)
	}

	now = now.Add(selectRetryInitial)
	r.Tick()
	if rec.selections != 2 {
		t.Fatalf("selections = %d, want 2 after first delay", rec.selections)
	}

	// The second delay is twice the first.
	now = now.Add(selectRetryInitial)
	r.Tick()
	if rec.selections != 2 {
		t.Errorf("retried too early: %d selections", rec.selections)
	}

	rec.selectErr = nil
	now = now.Add(selectRetryInitial)
	r.Tick()
	if rec.selections != 3 || rec.device != "default" {
		t.Errorf("selections = %d device = %q, want 3 and default", rec.selections, rec.device)
	}
	if r.snapshot().SelectFailed {
		t.Error("snapshot still reports a failed selection")
	}
}

func TestCallRequiresRunningLoop(t *testing.T) {
	r, _, _ := newTestRunner(false)
	if err := r.Reconnect(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Reconnect without loop = %v, want ErrNotRunning", err)
	}
}

func TestDoQueueFull(t *testing.T) {
	rec := &fakeRecorder{}
	conn := &fakeConnector{}
	r := NewRunner(rec, conn, Options{TaskQueue: 1, Logger: quietLogger()})

	if !r.Do(func() {}) {
		t.Fatal("first task rejected")
	}
	if r.Do(func() {}) {
		t.Error("second task accepted by a full queue")
	}
}

func TestRunCommands(t *testing.T) {
	r, rec, conn := newTestRunner(false)
	r.opts.Settings = config.Settings{ClientName: "phone", RecordingDevice: "mic"}
	r.opts.FrameRate = 200

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, func() bool { return r.running.Load() })

	if err := r.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := r.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	snap, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Device != "mic" || !snap.Recording || !snap.Paused || snap.ClientName != "phone" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	rec.startErr = errors.New("busy")
	r.StopRecording(ctx)
	if err := r.StartRecording(ctx); err == nil || err.Error() != "busy" {
		t.Errorf("StartRecording error = %v, want busy", err)
	}

	if err := r.SelectDevice(ctx, "usb", 16000); err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	if err := r.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if rec.device != "usb" || rec.rate != 16000 {
		t.Errorf("device = %q rate = %d, want usb 16000", rec.device, rec.rate)
	}
	if !conn.paused {
		t.Error("connector not paused")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met")
		case <-time.After(time.Millisecond):
		}
	}
}
