// Package peer emulates the desktop side of the protocol: it answers connect
// requests with a microphone port and receives the audio stream on that port.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/smazurov/micnode/internal/discovery"
)

// Client is the last request seen from one client.
type Client struct {
	Name       string
	ID         string
	SampleRate int
	Addr       netip.AddrPort
}

// ResponderOptions configures a Responder.
type ResponderOptions struct {
	// ListenAddr defaults to ":34567".
	ListenAddr     string
	Name           string
	MicrophonePort int
	HTTPServerPort int
	// Busy makes every answer an error response with this text.
	Busy   string
	Logger *slog.Logger
}

// Responder answers discovery broadcasts.
type Responder struct {
	opts   ResponderOptions
	conn   *discovery.UDPConn
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]Client
	onJoin  func(Client)
}

// NewResponder binds the discovery port.
func NewResponder(opts ResponderOptions) (*Responder, error) {
	if opts.ListenAddr == "" {
		opts.ListenAddr = fmt.Sprintf(":%d", discovery.DiscoveryPort)
	}
	if opts.Name == "" {
		opts.Name = "micnode-responder"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := discovery.ListenUDP(context.Background(), opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen for connect requests on %s: %w", opts.ListenAddr, err)
	}
	return &Responder{
		opts:    opts,
		conn:    conn,
		logger:  logger,
		clients: make(map[string]Client),
	}, nil
}

// Addr returns the bound address.
func (r *Responder) Addr() net.Addr { return r.conn.LocalAddr() }

// OnJoin registers a callback run for every accepted request. Set it before Serve.
func (r *Responder) OnJoin(fn func(Client)) { r.onJoin = fn }

// Clients returns the clients that sent a valid request.
func (r *Responder) Clients() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Serve answers requests until ctx is canceled.
func (r *Responder) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer stop()

	r.logger.Info("Responder listening", "addr", r.Addr().String(), "microphone_port", r.opts.MicrophonePort)
	buf := make([]byte, 64*1024)
	for {
		n, src, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Error("Failed to read connect request", "error", err)
			continue
		}
		r.handle(buf[:n], src)
	}
}

// Close releases the socket.
func (r *Responder) Close() error {
	return r.conn.Close()
}

func (r *Responder) handle(data []byte, src netip.AddrPort) {
	req, err := discovery.DecodeRequest(data)
	if err != nil {
		r.logger.Warn("Dropping undecodable request", "from", src.String(), "error", err)
		return
	}

	resp := discovery.ConnectResponse{
		ClientName:           req.ClientName,
		ClientID:             req.ClientID,
		MicrophonePort:       r.opts.MicrophonePort,
		MicrophoneSampleRate: req.MicrophoneSampleRate,
		HTTPServerPort:       r.opts.HTTPServerPort,
	}
	switch {
	case r.opts.Busy != "":
		resp.MicrophonePort = 0
		resp.ErrorMessage = r.opts.Busy
	default:
		if err := req.Validate(); err != nil {
			var perr *discovery.ProtocolError
			resp.MicrophonePort = 0
			resp.ErrorMessage = err.Error()
			if errors.As(err, &perr) {
				resp.ErrorMessage = perr.Message
			}
		}
	}

	if resp.ErrorMessage == "" {
		c := Client{Name: req.ClientName, ID: req.ClientID, SampleRate: req.MicrophoneSampleRate, Addr: src}
		key := c.ID
		if key == "" {
			key = c.Name
		}
		r.mu.Lock()
		_, known := r.clients[key]
		r.clients[key] = c
		r.mu.Unlock()
		if !known {
			r.logger.Info("Client connected", "name", c.Name, "id", c.ID, "sample_rate", c.SampleRate, "from", src.String())
		}
		if r.onJoin != nil {
			r.onJoin(c)
		}
	} else {
		r.logger.Warn("Rejecting connect request", "from", src.String(), "reason", resp.ErrorMessage)
	}

	payload, err := discovery.EncodeResponse(resp)
	if err != nil {
		r.logger.Error("Failed to encode connect response", "error", err)
		return
	}
	if err := r.conn.WriteTo(payload, src); err != nil {
		r.logger.Warn("Failed to send connect response", "to", src.String(), "error", err)
	}
}
