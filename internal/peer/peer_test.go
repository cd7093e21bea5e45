package peer

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/sender"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func startResponder(t *testing.T, opts ResponderOptions) *Responder {
	t.Helper()
	opts.ListenAddr = "127.0.0.1:0"
	opts.Logger = testLogger()
	r, err := NewResponder(opts)
	if err != nil {
		t.Fatalf("NewResponder failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func exchange(t *testing.T, to net.Addr, req discovery.ConnectRequest) discovery.ConnectResponse {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	payload, _ := discovery.EncodeRequest(req)
	if _, err := conn.WriteTo(payload, to); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("No response: %v", err)
	}
	resp, err := discovery.DecodeResponse(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestResponder(t *testing.T) {
	valid := discovery.ConnectRequest{
		ProtocolVersion:      discovery.ProtocolVersion,
		ClientName:           "phone",
		ClientID:             "id-1",
		MicrophoneSampleRate: 16000,
	}
	mismatched := valid
	mismatched.ProtocolVersion = discovery.ProtocolVersion + 1

	tests := []struct {
		name      string
		opts      ResponderOptions
		req       discovery.ConnectRequest
		wantPort  int
		wantError bool
	}{
		{"accepts", ResponderOptions{MicrophonePort: 40000, HTTPServerPort: 8080}, valid, 40000, false},
		{"version mismatch", ResponderOptions{MicrophonePort: 40000}, mismatched, 0, true},
		{"busy", ResponderOptions{MicrophonePort: 40000, Busy: "busy"}, valid, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := startResponder(t, tt.opts)
			resp := exchange(t, r.Addr(), tt.req)

			if resp.MicrophonePort != tt.wantPort {
				t.Errorf("Expected port %d, got %d", tt.wantPort, resp.MicrophonePort)
			}
			if (resp.ErrorMessage != "") != tt.wantError {
				t.Errorf("Unexpected error message %q", resp.ErrorMessage)
			}
			if resp.ClientName != "phone" || resp.ClientID != "id-1" {
				t.Errorf("Response should echo the client, got %+v", resp)
			}
			if tt.wantError {
				if len(r.Clients()) != 0 {
					t.Error("Rejected client should not be recorded")
				}
				return
			}
			if resp.HTTPServerPort != 8080 {
				t.Errorf("Expected http port 8080, got %d", resp.HTTPServerPort)
			}
			clients := r.Clients()
			if len(clients) != 1 || clients[0].SampleRate != 16000 {
				t.Errorf("Expected one client at 16000 Hz, got %+v", clients)
			}
		})
	}
}

type noopStopper struct{}

func (noopStopper) StopRecording() {}

func TestEndToEnd_DiscoverAndStream(t *testing.T) {
	rx, err := NewReceiver("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	received := make(chan []float32, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = rx.Serve(ctx, func(samples []float32, _ netip.AddrPort) {
			received <- append([]float32(nil), samples...)
		})
	}()

	r := startResponder(t, ResponderOptions{MicrophonePort: rx.Port()})

	m, err := discovery.NewManager(discovery.Options{
		ClientName:    "phone",
		ListenAddr:    "127.0.0.1:0",
		DiscoveryAddr: r.Addr().String(),
		SampleRate:    fixedRate(16000),
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	s, err := sender.New(noopStopper{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	m.Connects().Subscribe(s.HandleConnect)

	deadline := time.Now().Add(3 * time.Second)
	for m.State().Phase != discovery.Connected {
		if time.Now().After(deadline) {
			t.Fatal("Never connected")
		}
		m.Poll()
		time.Sleep(5 * time.Millisecond)
	}

	samples := []float32{0.1, 0.2, 0.3, 0.4}
	s.HandleCapture(events.CaptureEvent{Samples: samples, StartIndex: 1, EndIndex: 3})

	select {
	case got := <-received:
		if len(got) != 3 || got[0] != 0.2 || got[2] != 0.4 {
			t.Errorf("Unexpected samples %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No audio received")
	}

	if st := rx.Stats(); st.Datagrams != 1 || st.Samples != 3 || st.Bytes != 12 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

type fixedRate int

func (r fixedRate) SampleRate() int { return int(r) }

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := CreateWAV(path, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]float32{0, 0.5, 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]float32{-1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("Written file is not a valid WAV")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if d.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz, got %d", d.SampleRate)
	}
	want := []int{0, 16383, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], buf.Data[i])
		}
	}
}
