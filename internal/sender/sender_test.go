package sender

import (
	"log/slog"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/events"
)

type mockRecorder struct {
	stops int
}

func (m *mockRecorder) StopRecording() { m.stops++ }

func newTestSender(t *testing.T) (*Sender, *mockRecorder) {
	t.Helper()
	rec := &mockRecorder{}
	s, err := New(rec, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, rec
}

func listenPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func connectEvent(conn *net.UDPConn) events.ConnectEvent {
	return events.ConnectEvent{
		Success:        true,
		State:          events.ConnectionConnected,
		Peer:           netip.MustParseAddr("127.0.0.1"),
		MicrophonePort: conn.LocalAddr().(*net.UDPAddr).Port,
	}
}

func readDatagram(t *testing.T, conn *net.UDPConn, timeout time.Duration) ([]byte, bool) {
	t.Helper()
	buf := make([]byte, 70000)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func TestHandleCapture_SendsWindow(t *testing.T) {
	s, _ := newTestSender(t)
	peer := listenPeer(t)
	s.HandleConnect(connectEvent(peer))

	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i) / 100
	}
	s.HandleCapture(events.CaptureEvent{Samples: samples, StartIndex: 85, EndIndex: 99})

	data, ok := readDatagram(t, peer, time.Second)
	if !ok {
		t.Fatal("No datagram received")
	}
	if len(data) != 15*audio.BytesPerSample {
		t.Fatalf("Expected %d bytes, got %d", 15*audio.BytesPerSample, len(data))
	}
	got := audio.DecodeFloat32LE(nil, data)
	if got[0] != samples[85] || got[14] != samples[99] {
		t.Errorf("Unexpected payload bounds %v .. %v", got[0], got[14])
	}
}

func TestHandleCapture_TruncatesToLimit(t *testing.T) {
	s, _ := newTestSender(t)
	peer := listenPeer(t)
	s.HandleConnect(connectEvent(peer))

	samples := make([]float32, 48000)
	samples[0] = 1
	s.HandleCapture(events.CaptureEvent{Samples: samples, StartIndex: 0, EndIndex: 47999})

	data, ok := readDatagram(t, peer, time.Second)
	if !ok {
		t.Fatal("No datagram received")
	}
	if len(data) != MaxDatagramLength {
		t.Errorf("Expected %d bytes, got %d", MaxDatagramLength, len(data))
	}
	if got := audio.DecodeFloat32LE(nil, data[:4]); got[0] != 1 {
		t.Errorf("Truncation should keep the head of the window, got first sample %v", got[0])
	}
}

func TestHandleCapture_NoEndpoint(t *testing.T) {
	s, _ := newTestSender(t)
	peer := listenPeer(t)

	s.HandleCapture(events.CaptureEvent{Samples: make([]float32, 10), StartIndex: 0, EndIndex: 9})
	if _, ok := readDatagram(t, peer, 50*time.Millisecond); ok {
		t.Error("Datagram sent without an endpoint")
	}
}

func TestHandleConnect_DisconnectStopsStreaming(t *testing.T) {
	s, rec := newTestSender(t)
	peer := listenPeer(t)
	s.HandleConnect(connectEvent(peer))

	if _, ok := s.Endpoint(); !ok {
		t.Fatal("Expected an endpoint after success")
	}

	s.HandleConnect(events.ConnectEvent{State: events.ConnectionDisconnected})
	if _, ok := s.Endpoint(); ok {
		t.Error("Endpoint should be cleared on disconnect")
	}
	if rec.stops != 1 {
		t.Errorf("Expected capture to be stopped once, got %d", rec.stops)
	}

	s.HandleCapture(events.CaptureEvent{Samples: make([]float32, 10), StartIndex: 0, EndIndex: 9})
	if _, ok := readDatagram(t, peer, 50*time.Millisecond); ok {
		t.Error("Datagram sent after disconnect")
	}
}

func TestHandleConnect_PeerErrorDuringSession(t *testing.T) {
	s, rec := newTestSender(t)
	peer := listenPeer(t)
	s.HandleConnect(connectEvent(peer))

	s.HandleConnect(events.ConnectEvent{State: events.ConnectionConnected, ErrorMessage: "busy"})
	if _, ok := s.Endpoint(); !ok {
		t.Error("A peer error that keeps the session should not clear the endpoint")
	}
	if rec.stops != 0 {
		t.Errorf("Capture should keep running, got %d stops", rec.stops)
	}
}

func TestHandleConnect_IgnoresUnusableSuccess(t *testing.T) {
	s, _ := newTestSender(t)
	s.HandleConnect(events.ConnectEvent{Success: true, State: events.ConnectionConnected, MicrophonePort: 0})
	if _, ok := s.Endpoint(); ok {
		t.Error("Success without a port should not set an endpoint")
	}
}
