package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/smazurov/micnode/internal/api/models"
	"github.com/smazurov/micnode/internal/app"
	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/capture"
	"github.com/smazurov/micnode/internal/logging"
)

// mockController records calls and returns canned errors.
type mockController struct {
	mu       sync.Mutex
	snapshot app.Snapshot
	calls    []string
	err      error
	device   string
	rate     int
}

func (m *mockController) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockController) Status(context.Context) (app.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *mockController) Reconnect(context.Context) error      { return m.record("reconnect") }
func (m *mockController) StartRecording(context.Context) error { return m.record("start") }
func (m *mockController) StopRecording(context.Context) error  { return m.record("stop") }

func (m *mockController) SetPaused(_ context.Context, paused bool) error {
	if paused {
		return m.record("pause")
	}
	return m.record("resume")
}

func (m *mockController) SelectDevice(_ context.Context, name string, rate int) error {
	m.mu.Lock()
	m.device, m.rate = name, rate
	m.mu.Unlock()
	return m.record("select")
}

func newTestServer(t *testing.T, ctrl *mockController, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.Controller = ctrl
	server := NewServer(opts)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Stop(context.Background())
		ts.Close()
	})
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, &mockController{}, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/version", nil)
	var info struct {
		ProtocolVersion int `json:"protocol_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.ProtocolVersion != 1 {
		t.Errorf("protocol_version = %d, want 1", info.ProtocolVersion)
	}
}

func TestNewServer_StatusSchemas(t *testing.T) {
	server := NewServer(&Options{Controller: &mockController{}})
	t.Cleanup(func() { server.Stop(context.Background()) })

	schemas := server.GetAPI().OpenAPI().Components.Schemas.Map()
	for _, name := range []string{"Snapshot", "Counters", "StatusData"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("schema %q not registered", name)
		}
	}
}

func TestStatus(t *testing.T) {
	ctrl := &mockController{snapshot: app.Snapshot{Device: "tone", SampleRate: 48000, Connection: "connecting", Attempts: 3}}
	ts := newTestServer(t, ctrl, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	var data models.StatusData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	if data.App.Device != "tone" || data.App.SampleRate != 48000 || data.App.Attempts != 3 {
		t.Errorf("unexpected status %+v", data.App)
	}
}

func TestControlRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		err      error
		wantCode int
		wantCall string
	}{
		{"start", http.MethodPost, "/api/recording/start", nil, nil, http.StatusOK, "start"},
		{"start while recording", http.MethodPost, "/api/recording/start", nil, capture.ErrAlreadyRecording, http.StatusConflict, "start"},
		{"start without device", http.MethodPost, "/api/recording/start", nil, capture.ErrNoDeviceSelected, http.StatusBadRequest, "start"},
		{"start arm timeout", http.MethodPost, "/api/recording/start", nil, capture.ErrHardwareArmTimeout, http.StatusGatewayTimeout, "start"},
		{"loop stopped", http.MethodPost, "/api/recording/stop", nil, app.ErrNotRunning, http.StatusServiceUnavailable, "stop"},
		{"reconnect", http.MethodPost, "/api/connection/reconnect", nil, nil, http.StatusOK, "reconnect"},
		{"pause", http.MethodPut, "/api/pause", map[string]any{"paused": true}, nil, http.StatusOK, "pause"},
		{"resume", http.MethodPut, "/api/pause", map[string]any{"paused": false}, nil, http.StatusOK, "resume"},
		{"select", http.MethodPut, "/api/device", map[string]any{"device": "usb", "sample_rate": 16000}, nil, http.StatusOK, "select"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{err: tt.err}
			ts := newTestServer(t, ctrl, nil)

			resp := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			calls := ctrl.Calls()
			if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", calls, tt.wantCall)
			}
		})
	}
}

func TestSelectDeviceRejectsInvalidRate(t *testing.T) {
	ctrl := &mockController{}
	ts := newTestServer(t, ctrl, nil)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/device", map[string]any{"device": "usb", "sample_rate": -1})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if len(ctrl.Calls()) != 0 {
		t.Error("controller called with an invalid rate")
	}
}

func TestListDevices(t *testing.T) {
	tone := audio.NewToneSource(440)
	t.Cleanup(func() { tone.Close() })

	ctrl := &mockController{snapshot: app.Snapshot{Device: "tone"}}
	ts := newTestServer(t, ctrl, &Options{Devices: audio.NewSources(nil, tone)})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/devices", nil)
	var data models.DevicesData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	if data.Count != 1 || data.Devices[0].Name != "tone" || !data.Devices[0].Selected {
		t.Fatalf("unexpected devices %+v", data)
	}
	if data.Devices[0].MinSampleRate != 8000 || data.Devices[0].MaxSampleRate != 48000 {
		t.Errorf("rates = %d..%d, want 8000..48000", data.Devices[0].MinSampleRate, data.Devices[0].MaxSampleRate)
	}
}

func TestLogHistoryAndLevel(t *testing.T) {
	ts := newTestServer(t, &mockController{}, nil)

	logging.GetLogger("apitest").Warn("history marker", "n", 1)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/logs", nil)
	var data models.LogsData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range data.Entries {
		if e.Message == "history marker" && e.Module == "apitest" {
			found = true
		}
	}
	if !found {
		t.Errorf("log history does not contain the marker: %+v", data.Entries)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/logs/level", map[string]any{"module": "apitest", "level": "debug"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("set level status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/logs/level", map[string]any{"module": "apitest", "level": "loud"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid level status = %d, want 422", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &mockController{}, nil)

	resp := doJSON(t, http.MethodOptions, ts.URL+"/api/status", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestMetricsMounted(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	ts := newTestServer(t, &mockController{}, &Options{PrometheusHandler: handler})

	doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	if !called {
		t.Error("metrics handler not mounted")
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
		want   slog.Level
	}{
		{http.MethodGet, "/api/status", 200, slog.LevelDebug},
		{http.MethodOptions, "/api/device", 204, slog.LevelDebug},
		{http.MethodPost, "/api/recording/start", 200, slog.LevelInfo},
		{http.MethodGet, "/api/status", 503, slog.LevelError},
		{http.MethodPut, "/api/device", 400, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s %s, %d) = %v, want %v", tt.method, tt.path, tt.status, got, tt.want)
		}
	}
}
