package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/smazurov/micnode/internal/audio"
)

// Stats are running totals of received audio.
type Stats struct {
	Datagrams uint64
	Samples   uint64
	Bytes     uint64
}

// Receiver accepts audio datagrams on the microphone port.
type Receiver struct {
	conn   *net.UDPConn
	logger *slog.Logger

	datagrams atomic.Uint64
	samples   atomic.Uint64
	bytes     atomic.Uint64
}

// NewReceiver binds the microphone port.
func NewReceiver(addr string, logger *slog.Logger) (*Receiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen for audio on %s: %w", addr, err)
	}
	return &Receiver{conn: conn, logger: logger}, nil
}

// Port returns the bound port, which is what the responder hands out.
func (r *Receiver) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Stats returns the totals so far.
func (r *Receiver) Stats() Stats {
	return Stats{
		Datagrams: r.datagrams.Load(),
		Samples:   r.samples.Load(),
		Bytes:     r.bytes.Load(),
	}
}

// Serve decodes datagrams until ctx is canceled and hands the samples to
// handle, which must not retain the slice. handle may be nil.
func (r *Receiver) Serve(ctx context.Context, handle func(samples []float32, from netip.AddrPort)) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer stop()

	buf := make([]byte, 64*1024)
	var samples []float32
	for {
		n, from, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Error("Failed to read audio", "error", err)
			continue
		}

		samples = audio.DecodeFloat32LE(samples, buf[:n])
		r.datagrams.Add(1)
		r.samples.Add(uint64(len(samples)))
		r.bytes.Add(uint64(n))
		if handle != nil {
			handle(samples, from)
		}
	}
}

// Close releases the socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
