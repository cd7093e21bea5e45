// Package sender streams captured sample windows to the connected peer.
package sender

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/metrics"
)

// MaxDatagramLength is the largest payload sent in one datagram. Longer
// windows lose their tail.
const MaxDatagramLength = 65500

// maxSamples is the number of whole samples that fit in one datagram.
const maxSamples = MaxDatagramLength / audio.BytesPerSample

// Stopper halts capture when the peer goes away.
type Stopper interface {
	StopRecording()
}

// Sender turns capture events into best-effort UDP datagrams. It runs on the
// main loop and is not safe for concurrent use.
type Sender struct {
	conn     *net.UDPConn
	recorder Stopper
	logger   *slog.Logger

	endpoint netip.AddrPort
	payload  []byte
}

// New opens the data socket. recorder is stopped whenever the session ends.
func New(recorder Stopper, logger *slog.Logger) (*Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open audio data socket: %w", err)
	}
	return &Sender{
		conn:     conn,
		recorder: recorder,
		logger:   logger,
		payload:  make([]byte, 0, MaxDatagramLength),
	}, nil
}

// Endpoint returns the current audio destination.
func (s *Sender) Endpoint() (netip.AddrPort, bool) {
	return s.endpoint, s.endpoint.IsValid()
}

// HandleConnect follows the discovery state. A success sets the destination.
// A failure that leaves the manager disconnected clears it and stops capture;
// a peer error reported during an established session is ignored.
func (s *Sender) HandleConnect(evt events.ConnectEvent) {
	if evt.Success {
		if !evt.Peer.IsValid() || evt.MicrophonePort <= 0 || evt.MicrophonePort > 65535 {
			s.logger.Warn("Ignoring success event without a usable endpoint", "peer", evt.Peer.String(), "port", evt.MicrophonePort)
			return
		}
		s.endpoint = netip.AddrPortFrom(evt.Peer.Unmap(), uint16(evt.MicrophonePort))
		s.logger.Info("Streaming audio", "to", s.endpoint.String())
		return
	}

	if evt.State == events.ConnectionConnected {
		return
	}
	if s.endpoint.IsValid() {
		s.logger.Info("Peer lost, streaming stopped", "to", s.endpoint.String(), "reason", evt.ErrorMessage)
	}
	s.endpoint = netip.AddrPort{}
	s.recorder.StopRecording()
}

// HandleCapture sends the event's window as one datagram of little-endian
// float32 samples. Without an endpoint the window is dropped.
func (s *Sender) HandleCapture(evt events.CaptureEvent) {
	if !s.endpoint.IsValid() {
		return
	}

	window := evt.Window()
	if len(window) > maxSamples {
		s.logger.Debug("Truncating oversized window", "samples", len(window), "kept", maxSamples)
		metrics.IncTruncated()
		window = window[:maxSamples]
	}

	s.payload = audio.AppendFloat32LE(s.payload[:0], window)
	n, err := s.conn.WriteToUDPAddrPort(s.payload, s.endpoint)
	if err != nil {
		metrics.IncTransportErrors("sender", "write")
		s.logger.Warn("Failed to send audio", "to", s.endpoint.String(), "bytes", len(s.payload), "error", err)
		return
	}
	metrics.AddDatagramSent(n)
}

// Close releases the data socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
