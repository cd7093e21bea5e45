// Package app runs the main loop that drives capture, discovery and sending.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/smazurov/micnode/internal/capture"
	"github.com/smazurov/micnode/internal/config"
	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/util"
)

// Defaults for Options.
const (
	DefaultFrameRate = 30
	DefaultTaskQueue = 64
)

// Device selection retry bounds while no device could be opened.
const (
	selectRetryInitial = time.Second
	selectRetryMax     = 30 * time.Second
)

var (
	// ErrNotRunning is returned by Call when the loop has stopped.
	ErrNotRunning = errors.New("main loop is not running")
	// ErrQueueFull is returned by Call when the task queue is saturated.
	ErrQueueFull = errors.New("main loop task queue is full")
)

// Recorder is the capture side of the loop.
type Recorder interface {
	Poll()
	SelectDevice(name string, rate int) error
	StartRecording() error
	StopRecording()
	IsRecording() bool
	DeviceName() string
	SampleRate() int
}

// Connector is the discovery side of the loop.
type Connector interface {
	Poll()
	Connects() *events.Stream[events.ConnectEvent]
	State() discovery.State
	Paused() bool
	SetPaused(paused bool)
	SetClientName(name string)
	CloseConnectionAndReconnect()
}

// Options configures a Runner.
type Options struct {
	// FrameRate is the number of ticks per second.
	FrameRate int
	// AutoRecord starts recording whenever a session is established.
	AutoRecord bool
	// Settings are applied on the loop before the first tick.
	Settings  config.Settings
	TaskQueue int
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is the loop-side view reported on the status endpoint.
type Snapshot struct {
	Device       string         `json:"device"`
	SampleRate   int            `json:"sample_rate"`
	Recording    bool           `json:"recording"`
	Connection   string         `json:"connection"`
	Attempts     int            `json:"attempts"`
	Peer         netip.AddrPort `json:"peer,omitzero"`
	HTTPPort     int            `json:"http_server_port,omitempty"`
	Paused       bool           `json:"paused"`
	ClientName   string         `json:"client_name"`
	Ticks        uint64         `json:"ticks"`
	SelectFailed bool           `json:"select_failed,omitempty"`
}

// Runner owns the cooperative main loop. Capture and discovery are only
// touched from the loop goroutine; other goroutines reach them through Do
// and Call.
type Runner struct {
	recorder  Recorder
	connector Connector
	opts      Options
	logger    *slog.Logger

	tasks   chan func()
	running atomic.Bool
	ticks   atomic.Uint64

	settings     config.Settings
	startPending bool
	selectRetry  *util.Backoff
	nextSelect   time.Time
	selectFailed bool

	unsubscribe func()
}

// NewRunner creates a runner. Subscribers registered on the connector's
// stream before this call, such as the sender, see each event first.
func NewRunner(recorder Recorder, connector Connector, opts Options) *Runner {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.TaskQueue <= 0 {
		opts.TaskQueue = DefaultTaskQueue
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Runner{
		recorder:    recorder,
		connector:   connector,
		opts:        opts,
		logger:      opts.Logger,
		tasks:       make(chan func(), opts.TaskQueue),
		selectRetry: util.NewBackoff(selectRetryInitial, selectRetryMax),
	}
	r.unsubscribe = connector.Connects().Subscribe(r.onConnect)
	return r
}

// Run applies the initial settings and ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("main loop already running")
	}
	defer r.running.Store(false)
	defer r.unsubscribe()

	r.applySettings(r.opts.Settings, true)

	interval := time.Second / time.Duration(r.opts.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Main loop started", "frame_rate", r.opts.FrameRate)
	for {
		select {
		case <-ctx.Done():
			r.recorder.StopRecording()
			r.logger.Info("Main loop stopped", "ticks", r.ticks.Load())
			return nil
		case fn := <-r.tasks:
			fn()
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick runs one frame: queued tasks, then capture, then discovery.
func (r *Runner) Tick() {
	r.drainTasks()
	r.retrySelect()
	r.recorder.Poll()
	r.connector.Poll()
	if r.startPending {
		r.startPending = false
		r.startRecording("session established")
	}
	r.ticks.Add(1)
}

func (r *Runner) drainTasks() {
	for {
		select {
		case fn := <-r.tasks:
			fn()
		default:
			return
		}
	}
}

// Do queues fn for the loop. It never blocks and reports false when the
// queue is full.
func (r *Runner) Do(fn func()) bool {
	select {
	case r.tasks <- fn:
		return true
	default:
		r.logger.Warn("Task queue full, dropping task")
		return false
	}
}

// Call runs fn on the loop and waits for its result.
func (r *Runner) Call(ctx context.Context, fn func() error) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	done := make(chan error, 1)
	if !r.Do(func() { done <- fn() }) {
		return ErrQueueFull
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconnect drops the session so discovery starts over.
func (r *Runner) Reconnect(ctx context.Context) error {
	return r.Call(ctx, func() error {
		r.logger.Info("Reconnect requested")
		r.connector.CloseConnectionAndReconnect()
		return nil
	})
}

// SetPaused suspends or resumes the application. Pausing drops the session,
// which stops recording.
func (r *Runner) SetPaused(ctx context.Context, paused bool) error {
	return r.Call(ctx, func() error {
		r.connector.SetPaused(paused)
		return nil
	})
}

// StartRecording starts capture on the selected device.
func (r *Runner) StartRecording(ctx context.Context) error {
	return r.Call(ctx, r.recorder.StartRecording)
}

// StopRecording stops capture.
func (r *Runner) StopRecording(ctx context.Context) error {
	return r.Call(ctx, func() error {
		r.recorder.StopRecording()
		return nil
	})
}

// SelectDevice switches device or rate as if the settings had changed.
func (r *Runner) SelectDevice(ctx context.Context, name string, rate int) error {
	return r.Call(ctx, func() error {
		s := r.settings
		s.RecordingDevice = name
		s.SampleRate = rate
		return r.applySettings(s, false)
	})
}

// ApplySettings queues a settings change, typically from the config watcher.
func (r *Runner) ApplySettings(s config.Settings) {
	r.Do(func() {
		if err := r.applySettings(s, false); err != nil {
			r.logger.Error("Failed to apply settings", "error", err)
		}
	})
}

// Status returns a snapshot taken on the loop.
func (r *Runner) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.Call(ctx, func() error {
		snap = r.snapshot()
		return nil
	})
	return snap, err
}

func (r *Runner) snapshot() Snapshot {
	st := r.connector.State()
	return Snapshot{
		Device:       r.recorder.DeviceName(),
		SampleRate:   r.recorder.SampleRate(),
		Recording:    r.recorder.IsRecording(),
		Connection:   string(st.Phase),
		Attempts:     st.Attempts,
		Peer:         st.Endpoint,
		HTTPPort:     st.HTTPServerPort,
		Paused:       r.connector.Paused(),
		ClientName:   r.settings.ClientName,
		Ticks:        r.ticks.Load(),
		SelectFailed: r.selectFailed,
	}
}

// onConnect runs synchronously inside connector.Poll. Recording is started
// after Poll returns so the arm wait does not run inside event delivery.
func (r *Runner) onConnect(evt events.ConnectEvent) {
	if evt.Success && r.opts.AutoRecord && !r.recorder.IsRecording() {
		r.startPending = true
	}
}

// applySettings renames the client and reselects the device when the device
// or rate changed. A rate change during a session reconnects so the peer
// learns the new rate.
func (r *Runner) applySettings(s config.Settings, initial bool) error {
	prev := r.settings
	r.settings = s
	r.connector.SetClientName(s.ClientName)

	if !initial && !r.selectFailed && s.RecordingDevice == prev.RecordingDevice && s.SampleRate == prev.SampleRate {
		return nil
	}

	wasRecording := r.recorder.IsRecording()
	oldRate := r.recorder.SampleRate()
	if err := r.selectDevice(); err != nil {
		return err
	}

	st := r.connector.State()
	if st.Phase == discovery.Connected && r.recorder.SampleRate() != oldRate {
		r.logger.Info("Sample rate changed during session, reconnecting", "old", oldRate, "new", r.recorder.SampleRate())
		r.connector.CloseConnectionAndReconnect()
		return nil
	}
	if wasRecording || (r.opts.AutoRecord && st.Phase == discovery.Connected) {
		r.startRecording("device changed")
	}
	return nil
}

func (r *Runner) selectDevice() error {
	err := r.recorder.SelectDevice(r.settings.RecordingDevice, r.settings.SampleRate)
	if err != nil {
		r.selectFailed = true
		delay := r.selectRetry.Next()
		r.nextSelect = r.opts.Now().Add(delay)
		r.logger.Error("Failed to select recording device",
			"device", r.settings.RecordingDevice,
			"retry_in", delay,
			"error", err)
		return err
	}
	r.selectFailed = false
	r.selectRetry.Reset()
	return nil
}

// retrySelect retries a failed device selection once its backoff expires.
func (r *Runner) retrySelect() {
	if !r.selectFailed || r.opts.Now().Before(r.nextSelect) {
		return
	}
	if r.selectDevice() != nil {
		return
	}
	if r.opts.AutoRecord && r.connector.State().Phase == discovery.Connected {
		r.startRecording("device available")
	}
}

func (r *Runner) startRecording(reason string) {
	if r.recorder.IsRecording() {
		return
	}
	if err := r.recorder.StartRecording(); err != nil {
		r.logger.Error("Failed to start recording", "reason", reason, "error", err)
	}
}

var _ Recorder = (*capture.Controller)(nil)
var _ Connector = (*discovery.Manager)(nil)
