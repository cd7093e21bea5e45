package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/micnode/internal/events"
)

// subscribeStateEvents attaches ch to every state event on the bus.
func subscribeStateEvents(bus *events.Bus, ch chan<- any) func() {
	unsubscribers := []func(){
		events.SubscribeToChannel[events.DeviceSelectedEvent](bus, ch),
		events.SubscribeToChannel[events.RecordingStateChangedEvent](bus, ch),
		events.SubscribeToChannel[events.ConnectEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

// registerSSERoutes registers the state event stream.
func (s *Server) registerSSERoutes() {
	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event Stream",
		Description: "Device selection, recording and connection events as they happen",
		Tags:        []string{"events"},
	}, map[string]any{
		"device-selected":         events.DeviceSelectedEvent{},
		"recording-state-changed": events.RecordingStateChangedEvent{},
		"connect":                 events.ConnectEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribe := subscribeStateEvents(s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
