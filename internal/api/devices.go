package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/micnode/internal/api/models"
)

// GetDevicesData lists every device with its capabilities. A failing probe
// is reported on the device instead of failing the whole list.
func GetDevicesData(lister DeviceLister, selected string) (models.DevicesData, error) {
	names, err := lister.Devices()
	if err != nil {
		return models.DevicesData{}, err
	}

	devices := make([]models.DeviceInfo, 0, len(names))
	for _, name := range names {
		info := models.DeviceInfo{Name: name, Selected: name == selected}
		caps, err := lister.Capabilities(name)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.MinSampleRate = caps.MinSampleRate
			info.MaxSampleRate = caps.MaxSampleRate
		}
		devices = append(devices, info)
	}
	return models.DevicesData{Devices: devices, Count: len(devices)}, nil
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List recording devices and their sample rate bounds",
		Tags:        []string{"devices"},
		Errors:      []int{500},
	}, func(ctx context.Context, _ *struct{}) (*models.DevicesResponse, error) {
		if s.options.Devices == nil {
			return &models.DevicesResponse{Body: models.DevicesData{Devices: []models.DeviceInfo{}}}, nil
		}

		selected := ""
		if snap, err := s.options.Controller.Status(ctx); err == nil {
			selected = snap.Device
		}
		data, err := GetDevicesData(s.options.Devices, selected)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list devices", err)
		}
		return &models.DevicesResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-device",
		Method:      http.MethodPut,
		Path:        "/api/device",
		Summary:     "Select Device",
		Description: "Switch the recording device or sample rate. Recording resumes on the new device if it was running.",
		Tags:        []string{"devices"},
		Errors:      []int{400, 409, 503},
	}, func(ctx context.Context, input *models.SelectDeviceRequest) (*models.ActionResponse, error) {
		if err := s.options.Controller.SelectDevice(ctx, input.Body.Device, input.Body.SampleRate); err != nil {
			return nil, toHTTPError("Failed to select device", err)
		}
		return actionOK("select_device"), nil
	})
}
