package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/micnode/internal/logging"
	"github.com/smazurov/micnode/internal/peer"
)

// CreateResponderCmd creates the responder command, a stand-in for the
// desktop peer used to exercise a node on the local network.
func CreateResponderCmd() *cobra.Command {
	var (
		listenAddr string
		audioAddr  string
		name       string
		httpPort   int
		busy       string
		wavPath    string
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "responder",
		Short: "Answer connect requests and receive audio",
		Long: `Listens for discovery broadcasts, answers them with a microphone port and ` +
			`counts the audio datagrams that arrive on it. Received audio can be written to a WAV file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("peer")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			receiver, err := peer.NewReceiver(audioAddr, logger)
			if err != nil {
				return err
			}
			defer receiver.Close()

			responder, err := peer.NewResponder(peer.ResponderOptions{
				ListenAddr:     listenAddr,
				Name:           name,
				MicrophonePort: receiver.Port(),
				HTTPServerPort: httpPort,
				Busy:           busy,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			defer responder.Close()

			rec := &recording{path: wavPath, logger: logger}
			defer rec.close()
			responder.OnJoin(rec.join)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := responder.Serve(ctx); err != nil {
					logger.Error("Responder stopped", "error", err)
				}
			}()
			go func() {
				defer wg.Done()
				if err := receiver.Serve(ctx, rec.write); err != nil {
					logger.Error("Receiver stopped", "error", err)
				}
			}()

			reportRX(ctx, receiver)
			wg.Wait()

			total := receiver.Stats()
			fmt.Printf("Total: %d datagrams, %d samples, %d bytes\n", total.Datagrams, total.Samples, total.Bytes)
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":34567", "Discovery address to answer on")
	cmd.Flags().StringVar(&audioAddr, "audio", ":0", "Address to receive audio on")
	cmd.Flags().StringVar(&name, "name", "micnode-responder", "Name announced to clients")
	cmd.Flags().IntVar(&httpPort, "http-port", 0, "HTTP server port announced to clients")
	cmd.Flags().StringVar(&busy, "busy", "", "Refuse every request with this error text")
	cmd.Flags().StringVar(&wavPath, "wav", "", "Write received audio to this WAV file")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// reportRX prints the receive rate once per second until ctx is done.
func reportRX(ctx context.Context, r *peer.Receiver) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last peer.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := r.Stats()
			if cur.Datagrams != last.Datagrams {
				fmt.Printf("RX: %d datagrams, %d samples/s\n", cur.Datagrams-last.Datagrams, cur.Samples-last.Samples)
			}
			last = cur
		}
	}
}

// recording opens the WAV file at the rate of the first client that joins.
type recording struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	writer *peer.WAVWriter
}

func (r *recording) join(c peer.Client) {
	r.logger.Info("Client joined", "name", c.Name, "id", c.ID, "sample_rate", c.SampleRate, "addr", c.Addr.String())
	if r.path == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		return
	}
	w, err := peer.CreateWAV(r.path, c.SampleRate)
	if err != nil {
		r.logger.Error("Failed to create WAV file", "path", r.path, "error", err)
		return
	}
	r.writer = w
	r.logger.Info("Recording received audio", "path", r.path, "sample_rate", c.SampleRate)
}

func (r *recording) write(samples []float32, _ netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	if err := r.writer.Write(samples); err != nil {
		r.logger.Error("Failed to write WAV data", "error", err)
	}
}

func (r *recording) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	if err := r.writer.Close(); err != nil {
		r.logger.Error("Failed to finalize WAV file", "error", err)
	}
	r.writer = nil
}
