package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/metrics"
	"github.com/smazurov/micnode/internal/util"
)

// ErrManagerActive is returned by NewManager while another manager is open.
var ErrManagerActive = errors.New("a discovery manager is already active in this process")

// Receive error backoff bounds.
const (
	receiveBackoffInitial = 10 * time.Millisecond
	receiveBackoffMax     = time.Second
)

// active holds the single open manager of the process.
var active atomic.Pointer[Manager]

// Phase is the connection state.
type Phase string

// Connection phases.
const (
	Disconnected Phase = events.ConnectionDisconnected
	Connecting   Phase = events.ConnectionConnecting
	Connected    Phase = events.ConnectionConnected
)

// State is a snapshot of the connection state machine.
type State struct {
	Phase    Phase
	Attempts int
	// Endpoint is the peer's audio endpoint, valid only while Connected.
	Endpoint       netip.AddrPort
	HTTPServerPort int
}

// SampleRater reports the capture rate to announce. Zero means no device is
// selected yet, which holds back broadcasting.
type SampleRater interface {
	SampleRate() int
}

// Options configures a Manager.
type Options struct {
	ClientName string
	ClientID   string
	// ListenAddr defaults to ":34568".
	ListenAddr string
	// DiscoveryAddr defaults to "255.255.255.255:34567".
	DiscoveryAddr string
	// ConnectRequestPause defaults to ConnectRequestPause.
	ConnectRequestPause time.Duration
	// MaxMalformedResponses defaults to MaxMalformedResponses.
	MaxMalformedResponses int
	SampleRate            SampleRater
	Logger                *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager runs discovery and owns the connection state.
//
// Everything except Close runs on the main loop. The only state shared with
// the receive goroutine is the response queue.
type Manager struct {
	opts          Options
	logger        *slog.Logger
	conn          packetConn
	discoveryAddr netip.AddrPort

	queue    responseQueue
	stopping atomic.Bool
	wg       sync.WaitGroup
	closed   sync.Once

	clientName  string
	phase       Phase
	attempts    int
	peer        netip.AddrPort
	httpPort    int
	lastAttempt time.Time
	paused      bool
	malformed   int

	connects events.Stream[events.ConnectEvent]
}

// NewManager binds the listen socket and starts the receive goroutine.
// Only one manager may be open per process.
func NewManager(opts Options) (*Manager, error) {
	if opts.ListenAddr == "" {
		opts.ListenAddr = fmt.Sprintf(":%d", ListenPort)
	}
	if opts.DiscoveryAddr == "" {
		opts.DiscoveryAddr = fmt.Sprintf("255.255.255.255:%d", DiscoveryPort)
	}
	if opts.ConnectRequestPause <= 0 {
		opts.ConnectRequestPause = ConnectRequestPause
	}
	if opts.MaxMalformedResponses <= 0 {
		opts.MaxMalformedResponses = MaxMalformedResponses
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dst, err := netip.ParseAddrPort(opts.DiscoveryAddr)
	if err != nil {
		return nil, fmt.Errorf("parse discovery address %q: %w", opts.DiscoveryAddr, err)
	}

	m := &Manager{
		opts:          opts,
		logger:        logger,
		discoveryAddr: dst,
		clientName:    opts.ClientName,
		phase:         Disconnected,
	}
	if !active.CompareAndSwap(nil, m) {
		logger.Warn("Refusing to start a second discovery manager")
		return nil, ErrManagerActive
	}

	conn, err := ListenUDP(context.Background(), opts.ListenAddr)
	if err != nil {
		active.CompareAndSwap(m, nil)
		return nil, fmt.Errorf("listen for connect responses on %s: %w", opts.ListenAddr, err)
	}
	m.conn = conn
	metrics.SetConnectionState(metrics.ConnectionDisconnected)

	m.wg.Add(1)
	go m.receiveLoop()

	logger.Info("Discovery started",
		"listen", conn.LocalAddr().String(),
		"broadcast", dst.String(),
		"client_name", opts.ClientName,
		"client_id", opts.ClientID)
	return m, nil
}

// Connects notifies about every success and failure.
func (m *Manager) Connects() *events.Stream[events.ConnectEvent] {
	return &m.connects
}

// LocalAddr returns the bound listen address.
func (m *Manager) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	s := State{Phase: m.phase, Attempts: m.attempts}
	if m.phase == Connected {
		s.Endpoint = m.peer
		s.HTTPServerPort = m.httpPort
	}
	return s
}

// AttemptCount returns the number of broadcasts since the last success.
func (m *Manager) AttemptCount() int { return m.attempts }

// Endpoint returns the peer's audio endpoint while connected.
func (m *Manager) Endpoint() (netip.AddrPort, bool) {
	if m.phase != Connected {
		return netip.AddrPort{}, false
	}
	return m.peer, true
}

// Paused reports whether broadcasting is suspended.
func (m *Manager) Paused() bool { return m.paused }

// SetClientName changes the name announced by the next request.
func (m *Manager) SetClientName(name string) {
	if name == m.clientName {
		return
	}
	m.logger.Info("Client name changed", "old", m.clientName, "new", name)
	m.clientName = name
}

// Poll applies queued responses and broadcasts a connect request when one is due.
func (m *Manager) Poll() {
	// Responses arriving while these are applied wait for the next tick.
	for _, resp := range m.queue.drain() {
		m.applyResponse(resp)
	}

	if m.phase == Connected || m.paused {
		return
	}
	rate := m.sampleRate()
	if rate <= 0 {
		return
	}
	now := m.opts.Now()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.opts.ConnectRequestPause {
		return
	}
	m.lastAttempt = now
	m.sendConnectRequest(rate)
}

// CloseConnectionAndReconnect drops the session. The next due Poll broadcasts again.
func (m *Manager) CloseConnectionAndReconnect() {
	if m.phase == Connected {
		m.logger.Info("Closing connection", "peer", m.peer.String())
	}
	m.phase = Disconnected
	m.peer = netip.AddrPort{}
	m.httpPort = 0
	m.malformed = 0
	metrics.SetConnectionState(metrics.ConnectionDisconnected)
	m.publishFailure("")
}

// SetPaused suspends or resumes discovery. Pausing also drops the session.
func (m *Manager) SetPaused(paused bool) {
	if paused == m.paused {
		return
	}
	m.paused = paused
	if paused {
		m.logger.Info("Discovery paused")
		m.CloseConnectionAndReconnect()
		return
	}
	m.logger.Info("Discovery resumed")
}

// Close stops the receive goroutine, closes the socket and frees the
// process-wide slot. It is safe to call from any goroutine, more than once.
func (m *Manager) Close() error {
	var err error
	m.closed.Do(func() {
		m.stopping.Store(true)
		err = m.conn.Close()
		m.wg.Wait()
		active.CompareAndSwap(m, nil)
		m.logger.Info("Discovery stopped")
	})
	return err
}

func (m *Manager) sampleRate() int {
	if m.opts.SampleRate == nil {
		return 0
	}
	return m.opts.SampleRate.SampleRate()
}

func (m *Manager) sendConnectRequest(rate int) {
	if m.attempts > 0 {
		m.publishFailure("")
	}
	m.attempts++
	m.phase = Connecting
	metrics.SetConnectionState(metrics.ConnectionConnecting)

	payload, err := EncodeRequest(ConnectRequest{
		ProtocolVersion:      ProtocolVersion,
		ClientName:           m.clientName,
		ClientID:             m.opts.ClientID,
		MicrophoneSampleRate: rate,
	})
	if err != nil {
		m.logger.Error("Failed to encode connect request", "error", err)
		return
	}

	metrics.IncConnectRequests()
	if err := m.conn.WriteTo(payload, m.discoveryAddr); err != nil {
		metrics.IncTransportErrors("discovery", "write")
		m.logger.Warn("Failed to send connect request", "attempt", m.attempts, "to", m.discoveryAddr.String(), "error", err)
		return
	}
	m.logger.Debug("Sent connect request", "attempt", m.attempts, "to", m.discoveryAddr.String(), "sample_rate", rate)
}

func (m *Manager) applyResponse(resp ConnectResponse) {
	if err := resp.Validate(m.opts.ClientID); err != nil {
		m.rejectResponse(resp, err)
		return
	}

	m.malformed = 0
	if m.paused {
		m.logger.Debug("Ignoring connect response while paused", "peer", resp.Peer.String())
		return
	}
	endpoint := netip.AddrPortFrom(resp.Peer.Addr(), uint16(resp.MicrophonePort))
	if m.phase == Connected && endpoint == m.peer && resp.HTTPServerPort == m.httpPort {
		m.logger.Debug("Ignoring duplicate connect response", "peer", resp.Peer.String())
		return
	}

	metrics.IncConnectResponses(metrics.ResponseAccepted)
	m.phase = Connected
	m.peer = endpoint
	m.httpPort = resp.HTTPServerPort
	m.attempts = 0
	metrics.SetConnectionState(metrics.ConnectionConnected)
	m.logger.Info("Connected",
		"peer", resp.Peer.Addr().String(),
		"peer_name", resp.ClientName,
		"microphone_port", resp.MicrophonePort,
		"http_server_port", resp.HTTPServerPort)

	m.connects.Publish(events.ConnectEvent{
		Success:        true,
		AttemptCount:   0,
		State:          string(m.phase),
		Peer:           endpoint.Addr(),
		MicrophonePort: resp.MicrophonePort,
		HTTPServerPort: resp.HTTPServerPort,
		Timestamp:      m.timestamp(),
	})
}

func (m *Manager) rejectResponse(resp ConnectResponse, err error) {
	var perr *ProtocolError
	text := err.Error()
	if errors.As(err, &perr) {
		text = perr.EventText()
		if perr.Remote {
			metrics.IncConnectResponses(metrics.ResponseRejected)
		} else {
			metrics.IncConnectResponses(metrics.ResponseMalformed)
		}
	}
	m.logger.Warn("Connect response not accepted", "peer", resp.Peer.String(), "error", err)

	if m.phase == Connected {
		m.malformed++
		if m.malformed >= m.opts.MaxMalformedResponses {
			m.logger.Warn("Too many bad responses, reconnecting", "count", m.malformed)
			m.CloseConnectionAndReconnect()
			return
		}
	}
	m.publishFailure(text)
}

func (m *Manager) publishFailure(text string) {
	m.connects.Publish(events.ConnectEvent{
		Success:      false,
		AttemptCount: m.attempts,
		State:        string(m.phase),
		ErrorMessage: text,
		Timestamp:    m.timestamp(),
	})
}

func (m *Manager) timestamp() string {
	return m.opts.Now().UTC().Format(time.RFC3339)
}

// receiveLoop runs until Close. Only shutdown ends it.
func (m *Manager) receiveLoop() {
	defer m.wg.Done()

	buf := make([]byte, maxMessageSize)
	backoff := util.NewBackoff(receiveBackoffInitial, receiveBackoffMax)

	for {
		n, src, ifIndex, err := m.conn.ReadFrom(buf)
		if err != nil {
			if m.stopping.Load() || errors.Is(err, net.ErrClosed) {
				m.logger.Debug("Receive loop stopped", "reason", err)
				return
			}
			metrics.IncTransportErrors("discovery", "read")
			delay := backoff.Next()
			m.logger.Error("Failed to receive connect response", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		backoff.Reset()

		resp, err := DecodeResponse(buf[:n])
		if err != nil {
			metrics.IncConnectResponses(metrics.ResponseMalformed)
			m.logger.Warn("Dropping undecodable datagram", "from", src.String(), "bytes", n, "error", err)
			continue
		}
		resp.Peer = src
		m.logger.Debug("Received connect response", "from", src.String(), "interface", ifIndex, "bytes", n)
		m.queue.push(resp)
	}
}
