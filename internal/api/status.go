package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/micnode/internal/api/models"
	"github.com/smazurov/micnode/internal/metrics"
)

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Current device, recording and connection state with process counters",
		Tags:        []string{"status"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		data, err := s.buildStatus(ctx)
		if err != nil {
			return nil, toHTTPError("Main loop unavailable", err)
		}
		return &models.StatusResponse{Body: data}, nil
	})
}

func (s *Server) buildStatus(ctx context.Context) (models.StatusData, error) {
	snap, err := s.options.Controller.Status(ctx)
	if err != nil {
		return models.StatusData{}, err
	}
	return models.StatusData{App: snap, Metrics: metrics.Current()}, nil
}
