package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/micnode/internal/api/models"
)

func actionOK(action string) *models.ActionResponse {
	return &models.ActionResponse{Body: models.ActionData{Action: action, Success: true}}
}

func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/start",
		Summary:     "Start Recording",
		Tags:        []string{"recording"},
		Errors:      []int{400, 409, 503, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.options.Controller.StartRecording(ctx); err != nil {
			return nil, toHTTPError("Failed to start recording", err)
		}
		return actionOK("start_recording"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/stop",
		Summary:     "Stop Recording",
		Tags:        []string{"recording"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.options.Controller.StopRecording(ctx); err != nil {
			return nil, toHTTPError("Failed to stop recording", err)
		}
		return actionOK("stop_recording"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reconnect",
		Method:      http.MethodPost,
		Path:        "/api/connection/reconnect",
		Summary:     "Reconnect",
		Description: "Drop the current session and restart discovery",
		Tags:        []string{"connection"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.options.Controller.Reconnect(ctx); err != nil {
			return nil, toHTTPError("Failed to reconnect", err)
		}
		return actionOK("reconnect"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-paused",
		Method:      http.MethodPut,
		Path:        "/api/pause",
		Summary:     "Pause",
		Description: "Suspend or resume discovery. Pausing ends the session and stops recording.",
		Tags:        []string{"connection"},
		Errors:      []int{503},
	}, func(ctx context.Context, input *models.PauseRequest) (*models.ActionResponse, error) {
		action := "resume"
		if input.Body.Paused {
			action = "pause"
		}
		if err := s.options.Controller.SetPaused(ctx, input.Body.Paused); err != nil {
			return nil, toHTTPError("Failed to change pause state", err)
		}
		return actionOK(action), nil
	})
}
