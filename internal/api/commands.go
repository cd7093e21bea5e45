package api

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Websocket command types.
const (
	CommandReconnect      = "reconnect"
	CommandPause          = "pause"
	CommandResume         = "resume"
	CommandStartRecording = "start_recording"
	CommandStopRecording  = "stop_recording"
	CommandSelectDevice   = "select_device"
	CommandStatus         = "status"
)

// commandTimeout bounds one command. Starting a recording may wait for the
// hardware to arm.
const commandTimeout = 5 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// WSCommand is a command received from a websocket client.
type WSCommand struct {
	Type       string `json:"type" validate:"required,oneof=reconnect pause resume start_recording stop_recording select_device status"`
	ID         string `json:"id,omitempty" validate:"max=64"`
	Device     string `json:"device,omitempty" validate:"max=256"`
	SampleRate int    `json:"sample_rate,omitempty" validate:"gte=0,lte=384000"`
}

// WSResult answers a command.
type WSResult struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WSMessage wraps pushed status, events and log lines.
type WSMessage struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data"`
}

// CommandHandler runs websocket commands against the main loop.
type CommandHandler struct {
	controller Controller
}

// NewCommandHandler creates a handler for controller.
func NewCommandHandler(controller Controller) *CommandHandler {
	return &CommandHandler{controller: controller}
}

// Handle validates and runs cmd. The status command produces no result; the
// caller pushes a fresh status instead.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand) WSResult {
	result := WSResult{Type: "result", ID: cmd.ID, Action: cmd.Type}
	if err := validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			result.Error = "invalid field " + verrs[0].Field() + ": " + verrs[0].Tag()
		} else {
			result.Error = err.Error()
		}
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch cmd.Type {
	case CommandReconnect:
		err = h.controller.Reconnect(ctx)
	case CommandPause:
		err = h.controller.SetPaused(ctx, true)
	case CommandResume:
		err = h.controller.SetPaused(ctx, false)
	case CommandStartRecording:
		err = h.controller.StartRecording(ctx)
	case CommandStopRecording:
		err = h.controller.StopRecording(ctx)
	case CommandSelectDevice:
		err = h.controller.SelectDevice(ctx, cmd.Device, cmd.SampleRate)
	case CommandStatus:
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}
