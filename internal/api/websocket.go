package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smazurov/micnode/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin accepts same-origin, loopback and private-network origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("Rejected websocket connection: invalid origin URL", "origin", origin)
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("Rejected websocket connection", "origin", origin, "host", host)
	return false
}

// handleWebSocket pushes status, state events and log lines, and accepts
// commands. The event loop is the only sender on send and the writer the only
// goroutine writing to the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	s.logger.Debug("Websocket client connected", "remote", r.RemoteAddr)

	send := make(chan any, 32)
	results := make(chan WSResult)
	readerDone := make(chan struct{})
	loopDone := make(chan struct{})

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, results, readerDone, loopDone)

	s.runWebSocketEventLoop(send, results, readerDone)
	close(loopDone)
	s.logger.Debug("Websocket client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) runWebSocketWriter(conn *websocket.Conn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Websocket close error", "error", err)
		}
	}()
	for msg := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *Server) runWebSocketReader(conn *websocket.Conn, results chan<- WSResult, readerDone chan<- struct{}, loopDone <-chan struct{}) {
	defer close(readerDone)

	handler := NewCommandHandler(s.options.Controller)
	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}

		select {
		case results <- handler.Handle(s.ctx, cmd):
		case <-loopDone:
			return
		}
	}
}

func (s *Server) runWebSocketEventLoop(send chan<- any, results <-chan WSResult, readerDone <-chan struct{}) {
	defer close(send)

	eventCh := make(chan any, 32)
	if s.eventBus != nil {
		unsubState := subscribeStateEvents(s.eventBus, eventCh)
		defer unsubState()
		unsubLogs := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubLogs()
	}

	statusTicker := time.NewTicker(s.options.StatusInterval)
	defer statusTicker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-readerDone:
			return false
		case <-s.ctx.Done():
			return false
		}
	}
	pushStatus := func() bool {
		data, err := s.buildStatus(s.ctx)
		if err != nil {
			s.logger.Debug("Status unavailable", "error", err)
			return true
		}
		return trySend(WSMessage{Type: "status", Data: data})
	}

	if !pushStatus() {
		return
	}

	for {
		select {
		case <-readerDone:
			return
		case <-s.ctx.Done():
			return
		case res := <-results:
			if res.Action != CommandStatus || !res.Success {
				if !trySend(res) {
					return
				}
			}
			if !pushStatus() {
				return
			}
		case <-statusTicker.C:
			if !pushStatus() {
				return
			}
		case ev := <-eventCh:
			if !trySend(wrapEvent(ev)) {
				return
			}
		}
	}
}

func wrapEvent(ev any) WSMessage {
	switch e := ev.(type) {
	case events.LogEntryEvent:
		return WSMessage{Type: "log", Data: e}
	case events.DeviceSelectedEvent:
		return WSMessage{Type: "event", Event: "device-selected", Data: e}
	case events.RecordingStateChangedEvent:
		return WSMessage{Type: "event", Event: "recording-state-changed", Data: e}
	case events.ConnectEvent:
		return WSMessage{Type: "event", Event: "connect", Data: e}
	default:
		return WSMessage{Type: "event", Data: e}
	}
}
