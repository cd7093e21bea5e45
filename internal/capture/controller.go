// Package capture owns the microphone: device selection, arming the hardware
// stream, and extracting the window of new samples on every tick.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/metrics"
)

// State is the recording state of the controller.
type State string

// Controller states.
const (
	StateIdle      State = "idle"
	StateArming    State = "arming"
	StateRecording State = "recording"
)

const (
	// DefaultArmTimeout bounds the wait for the first hardware samples.
	DefaultArmTimeout = time.Second
	// DefaultArmPollInterval paces the arm spin.
	DefaultArmPollInterval = time.Millisecond
	// ClipLengthSeconds is the length of the looping hardware clip.
	ClipLengthSeconds = 1
)

// Options configures a Controller.
type Options struct {
	// ArmTimeout defaults to DefaultArmTimeout.
	ArmTimeout time.Duration
	// ArmPollInterval defaults to DefaultArmPollInterval. A negative value
	// spins with runtime.Gosched between checks.
	ArmPollInterval time.Duration
	Logger          *slog.Logger
}

// Controller is the microphone capture state machine. It is not safe for
// concurrent use: all methods run on the main loop, and every notification is
// delivered synchronously on the calling goroutine.
type Controller struct {
	source audio.Source
	opts   Options
	logger *slog.Logger

	state      State
	deviceName string
	caps       audio.Capabilities
	sampleRate int
	buffer     *audio.SampleBuffer
	clip       audio.Clip

	deviceSelected events.Stream[events.DeviceSelectedEvent]
	recordingState events.Stream[events.RecordingStateChangedEvent]
	captures       events.Stream[events.CaptureEvent]
}

// NewController creates an idle controller with no device selected.
func NewController(source audio.Source, opts Options) *Controller {
	if opts.ArmTimeout <= 0 {
		opts.ArmTimeout = DefaultArmTimeout
	}
	if opts.ArmPollInterval == 0 {
		opts.ArmPollInterval = DefaultArmPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source: source,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// DeviceSelected notifies after every successful SelectDevice.
func (c *Controller) DeviceSelected() *events.Stream[events.DeviceSelectedEvent] {
	return &c.deviceSelected
}

// RecordingStateChanged notifies on every real start or stop.
func (c *Controller) RecordingStateChanged() *events.Stream[events.RecordingStateChangedEvent] {
	return &c.recordingState
}

// Captures notifies once per tick that produced new samples.
func (c *Controller) Captures() *events.Stream[events.CaptureEvent] {
	return &c.captures
}

// State returns the recording state.
func (c *Controller) State() State { return c.state }

// IsRecording reports whether the controller is recording.
func (c *Controller) IsRecording() bool { return c.state == StateRecording }

// DeviceName returns the selected device, or "" when none is selected.
func (c *Controller) DeviceName() string { return c.deviceName }

// SampleRate returns the chosen rate of the selected device, or 0.
func (c *Controller) SampleRate() int { return c.sampleRate }

// Capabilities returns the rate range of the selected device.
func (c *Controller) Capabilities() audio.Capabilities { return c.caps }

// Buffer returns the current sample buffer, or nil when no device is selected.
func (c *Controller) Buffer() *audio.SampleBuffer { return c.buffer }

// ChooseSampleRate applies the rate rule: a device reporting no range gets
// audio.DefaultSampleRate, a request equal to the device minimum gets the
// minimum, anything else gets the maximum.
func ChooseSampleRate(caps audio.Capabilities, requested int) int {
	switch {
	case caps.Unreported():
		return audio.DefaultSampleRate
	case requested > 0 && requested == caps.MinSampleRate:
		return caps.MinSampleRate
	default:
		return caps.MaxSampleRate
	}
}

// SelectDevice stops any running recording, picks the device and its rate and
// allocates a fresh one-second buffer. An empty name selects the first device
// the source lists.
func (c *Controller) SelectDevice(name string, requestedRate int) error {
	if c.state != StateIdle {
		c.StopRecording()
	}

	devices, err := c.source.Devices()
	if err != nil {
		return newError(CodeInvalidDevice, "list recording devices", err)
	}
	if len(devices) == 0 {
		return newError(CodeInvalidDevice, "no recording device available", nil)
	}
	if name == "" {
		name = devices[0]
	}

	caps, err := c.source.Capabilities(name)
	if err != nil {
		return newError(CodeInvalidDevice, fmt.Sprintf("query capabilities of %q", name), err)
	}

	rate := ChooseSampleRate(caps, requestedRate)
	if rate <= 0 {
		return newError(CodeInvalidSampleRate, fmt.Sprintf("device %q reports no usable rate", name), nil)
	}

	c.deviceName = name
	c.caps = caps
	c.sampleRate = rate
	c.buffer = audio.NewSampleBuffer(rate)
	c.clip = nil

	c.logger.Info("Recording device selected",
		"device", name,
		"min_sample_rate", caps.MinSampleRate,
		"max_sample_rate", caps.MaxSampleRate,
		"requested_sample_rate", requestedRate,
		"sample_rate", rate)
	metrics.SetSampleRate(rate)

	c.deviceSelected.Publish(events.DeviceSelectedEvent{
		DeviceName:    name,
		MinSampleRate: caps.MinSampleRate,
		MaxSampleRate: caps.MaxSampleRate,
		SampleRate:    rate,
		Timestamp:     timestamp(),
	})
	return nil
}

// StartRecording arms the hardware and waits, bounded by ArmTimeout, until it
// reports its first samples.
func (c *Controller) StartRecording() error {
	switch {
	case c.state != StateIdle:
		return ErrAlreadyRecording
	case c.deviceName == "":
		return ErrNoDeviceSelected
	case c.sampleRate <= 0:
		return ErrInvalidSampleRate
	}

	c.state = StateArming
	clip, err := c.source.Start(c.deviceName, ClipLengthSeconds, c.sampleRate)
	if err != nil {
		c.state = StateIdle
		if errors.Is(err, audio.ErrUnknownDevice) {
			return newError(CodeInvalidDevice, fmt.Sprintf("start %q", c.deviceName), err)
		}
		return newError(CodeHardwareFailure, fmt.Sprintf("start %q", c.deviceName), err)
	}

	if !c.waitArmed(clip) {
		if endErr := c.source.End(c.deviceName); endErr != nil {
			c.logger.Warn("Failed to disarm recording device", "device", c.deviceName, "error", endErr)
		}
		c.state = StateIdle
		metrics.IncArmTimeouts()
		c.logger.Error("Recording device did not start", "device", c.deviceName, "timeout", c.opts.ArmTimeout)
		return newError(CodeHardwareArmTimeout, fmt.Sprintf("device %q produced no samples within %s", c.deviceName, c.opts.ArmTimeout), nil)
	}

	c.clip = clip
	c.buffer.Reset()
	c.state = StateRecording
	metrics.SetRecording(true)
	c.logger.Info("Recording started", "device", c.deviceName, "sample_rate", c.sampleRate)

	c.recordingState.Publish(events.RecordingStateChangedEvent{
		DeviceName: c.deviceName,
		SampleRate: c.sampleRate,
		Recording:  true,
		Timestamp:  timestamp(),
	})
	return nil
}

// waitArmed spins until the clip's write cursor leaves 0 or the timeout passes.
func (c *Controller) waitArmed(clip audio.Clip) bool {
	deadline := time.Now().Add(c.opts.ArmTimeout)
	for clip.Position() <= 0 {
		if !time.Now().Before(deadline) {
			return false
		}
		if c.opts.ArmPollInterval > 0 {
			time.Sleep(c.opts.ArmPollInterval)
		} else {
			runtime.Gosched()
		}
	}
	return true
}

// Poll extracts the samples written since the previous tick and publishes a
// CaptureEvent when there are any.
func (c *Controller) Poll() {
	if c.state != StateRecording || c.clip == nil {
		return
	}

	position := c.clip.Position()
	c.buffer.Fill(c.clip, position)
	w := c.buffer.Advance(position)
	if w.Empty() {
		return
	}

	metrics.AddCapturedSamples(w.Count)
	c.captures.Publish(events.CaptureEvent{
		Samples:    c.buffer.Samples(),
		StartIndex: w.Start,
		EndIndex:   w.End,
	})
}

// StopRecording disarms the hardware. Stopping an idle controller does nothing.
func (c *Controller) StopRecording() {
	if c.state == StateIdle {
		return
	}

	if err := c.source.End(c.deviceName); err != nil {
		c.logger.Warn("Failed to stop recording device", "device", c.deviceName, "error", err)
	}
	c.clip = nil
	c.state = StateIdle
	metrics.SetRecording(false)
	c.logger.Info("Recording stopped", "device", c.deviceName)

	c.recordingState.Publish(events.RecordingStateChangedEvent{
		DeviceName: c.deviceName,
		SampleRate: c.sampleRate,
		Recording:  false,
		Timestamp:  timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
