package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/micnode/internal/app"
	"github.com/smazurov/micnode/internal/capture"
)

// toHTTPError maps loop and capture errors to HTTP status codes.
func toHTTPError(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNotRunning), errors.Is(err, app.ErrQueueFull):
		return huma.Error503ServiceUnavailable(msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable(msg, err)
	case errors.Is(err, capture.ErrAlreadyRecording):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, capture.ErrInvalidDevice),
		errors.Is(err, capture.ErrInvalidSampleRate),
		errors.Is(err, capture.ErrNoDeviceSelected):
		return huma.Error400BadRequest(msg, err)
	case errors.Is(err, capture.ErrHardwareArmTimeout):
		return huma.Error504GatewayTimeout(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
