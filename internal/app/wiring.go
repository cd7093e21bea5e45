package app

import (
	"github.com/smazurov/micnode/internal/capture"
	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/logging"
	"github.com/smazurov/micnode/internal/sender"
)

// Wire connects the components' synchronous streams: the sender follows the
// connection and receives captured windows, and value events are mirrored to
// the bus for observers. Call it before NewRunner so the sender sees every
// connect event before the runner does. The returned function undoes it.
func Wire(ctrl *capture.Controller, mgr *discovery.Manager, snd *sender.Sender, bus *events.Bus) func() {
	unsubs := []func(){
		mgr.Connects().Subscribe(snd.HandleConnect),
		ctrl.Captures().Subscribe(snd.HandleCapture),
	}
	if bus != nil {
		unsubs = append(unsubs,
			events.Forward(ctrl.DeviceSelected(), bus),
			events.Forward(ctrl.RecordingStateChanged(), bus),
			events.Forward(mgr.Connects(), bus),
		)
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ForwardLogs publishes every buffered log entry on the bus.
func ForwardLogs(bus *events.Bus) {
	logging.SetLogCallback(func(e logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Seq:        e.Seq,
			Timestamp:  e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Level:      e.Level,
			Module:     e.Module,
			Message:    e.Message,
			Attributes: e.Attributes,
		})
	})
}
