// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/micnode/internal/app"
	"github.com/smazurov/micnode/internal/metrics"
	"github.com/smazurov/micnode/internal/version"
)

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// StatusData combines the main loop's view with the process counters.
type StatusData struct {
	App     app.Snapshot     `json:"app" doc:"Capture and connection state"`
	Metrics metrics.Counters `json:"metrics" doc:"Process counters"`
}

type StatusResponse struct {
	Body StatusData
}

// Device models
type DeviceInfo struct {
	Name          string `json:"name" example:"USB Audio Device" doc:"Recording device name"`
	MinSampleRate int    `json:"min_sample_rate" example:"16000" doc:"Lowest supported rate, 0 if unreported"`
	MaxSampleRate int    `json:"max_sample_rate" example:"48000" doc:"Highest supported rate, 0 if unreported"`
	Selected      bool   `json:"selected" doc:"Whether this device is in use"`
	Error         string `json:"error,omitempty" doc:"Capability probe failure"`
}

type DevicesData struct {
	Devices []DeviceInfo `json:"devices" doc:"Available recording devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices"`
}

type DevicesResponse struct {
	Body DevicesData
}

type SelectDeviceRequest struct {
	Body struct {
		Device     string `json:"device" maxLength:"256" doc:"Device name, empty for the first device"`
		SampleRate int    `json:"sample_rate,omitempty" minimum:"0" maximum:"384000" doc:"Requested rate, 0 for the device default"`
	}
}

type PauseRequest struct {
	Body struct {
		Paused bool `json:"paused" doc:"Suspend discovery and streaming"`
	}
}

// ActionData is returned by every control operation.
type ActionData struct {
	Action  string `json:"action" example:"reconnect" doc:"Performed action"`
	Success bool   `json:"success" doc:"Whether the action was applied"`
}

type ActionResponse struct {
	Body ActionData
}

// Log models
type LogsInput struct {
	Since uint64 `query:"since" doc:"Return entries with a sequence number above this"`
}

type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level" enum:"debug,info,warn,error"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries"`
	Count   int        `json:"count"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" minLength:"1" doc:"Logger module, e.g. discovery"`
		Level  string `json:"level" enum:"debug,info,warn,warning,error" doc:"New level"`
	}
}
