package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/micnode/cmd"
	"github.com/smazurov/micnode/internal/api"
	"github.com/smazurov/micnode/internal/app"
	"github.com/smazurov/micnode/internal/capture"
	"github.com/smazurov/micnode/internal/config"
	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/led"
	"github.com/smazurov/micnode/internal/logging"
	"github.com/smazurov/micnode/internal/metrics/exporters"
	"github.com/smazurov/micnode/internal/sender"
)

// node owns the running client. Nothing is opened until open, so building
// one has no side effects.
type node struct {
	opts   *Options
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone sync.WaitGroup

	closeSources func()
	manager      *discovery.Manager
	sender       *sender.Sender
	unwire       func()
	led          *led.Manager
	server       *api.Server
	watcher      *config.Watcher[config.Settings]
}

func newNode(opts *Options, logger *slog.Logger) *node {
	ctx, cancel := context.WithCancel(context.Background())
	return &node{opts: opts, logger: logger, ctx: ctx, cancel: cancel}
}

// open builds the pipeline and starts the main loop. On error the parts
// opened so far are released by stop.
func (n *node) open() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return nil
	}
	opts := n.opts

	settings := config.Settings{
		ClientName:      opts.ClientName,
		ClientID:        opts.ClientID,
		RecordingDevice: opts.RecordingDevice,
		SampleRate:      opts.SampleRate,
	}.Normalize()

	sources, closeSources, err := cmd.OpenSources(cmd.SourceOptions{
		Backends:      config.SplitList(opts.Backends),
		WAVFiles:      config.SplitList(opts.WAVFiles),
		ToneFrequency: opts.ToneFrequency,
	}, logging.GetLogger("audio"))
	if err != nil {
		return fmt.Errorf("open audio backends: %w", err)
	}
	n.closeSources = closeSources

	controller := capture.NewController(sources, capture.Options{
		ArmTimeout: parseDuration(n.logger, "arm-timeout", opts.ArmTimeout, capture.DefaultArmTimeout),
		Logger:     logging.GetLogger("capture"),
	})

	n.manager, err = discovery.NewManager(discovery.Options{
		ClientName:          settings.ClientName,
		ClientID:            settings.ClientID,
		ListenAddr:          opts.DiscoveryListen,
		DiscoveryAddr:       opts.DiscoveryBroadcast,
		ConnectRequestPause: parseDuration(n.logger, "discovery-pause", opts.DiscoveryPause, discovery.ConnectRequestPause),
		SampleRate:          controller,
		Logger:              logging.GetLogger("discovery"),
	})
	if err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	n.sender, err = sender.New(controller, logging.GetLogger("sender"))
	if err != nil {
		return fmt.Errorf("open audio socket: %w", err)
	}

	// Event bus for observers of the main loop
	eventBus := events.New()
	n.unwire = app.Wire(controller, n.manager, n.sender, eventBus)
	app.ForwardLogs(eventBus)

	runner := app.NewRunner(controller, n.manager, app.Options{
		FrameRate:  opts.FrameRate,
		AutoRecord: opts.AutoRecord,
		Settings:   settings,
		Logger:     logging.GetLogger("app"),
	})

	if opts.HTTPAddr != "" {
		n.server = api.NewServer(&api.Options{
			Controller:        runner,
			Devices:           sources,
			EventBus:          eventBus,
			PrometheusHandler: exporters.HTTPHandler(),
		})
	}

	n.loopDone.Add(1)
	go func() {
		defer n.loopDone.Done()
		if runErr := runner.Run(n.ctx); runErr != nil {
			n.logger.Error("Main loop failed", "error", runErr)
		}
	}()
	runner.HandlePauseSignals(n.ctx)

	if opts.FeaturesLEDControl {
		ledLogger := logging.GetLogger("led")
		n.led = led.NewManager(led.New(opts.FeaturesLEDName, ledLogger), eventBus, ledLogger)
		n.led.Start()
	}

	if opts.WatchConfig && opts.Config != "" {
		watcher := config.NewConfigWatcher(
			opts.Config,
			config.SettingsLoader(settings),
			logging.GetLogger("config"),
			config.WithErrorHandler[config.Settings](func(err error) {
				n.logger.Warn("Ignoring invalid settings", "error", err)
			}),
		)
		watcher.OnReload(runner.ApplySettings)
		if startErr := watcher.Start(); startErr != nil {
			n.logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
		} else {
			n.watcher = watcher
		}
	}

	if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
		n.logger.Debug("sd_notify failed", "error", notifyErr)
	}
	return nil
}

// serve blocks on the HTTP API, or until stop when the API is disabled.
func (n *node) serve() error {
	n.mu.Lock()
	server, stopped := n.server, n.stopped
	n.mu.Unlock()
	if stopped {
		return nil
	}

	if server == nil {
		n.logger.Info("HTTP API disabled")
		<-n.ctx.Done()
		return nil
	}
	n.logger.Info("Starting HTTP server", "addr", n.opts.HTTPAddr)
	if err := server.Start(n.opts.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stop releases everything open opened. It is safe to call more than once
// and before open.
func (n *node) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	n.stopped = true

	if n.server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.server.Stop(stopCtx); err != nil {
			n.logger.Error("Error stopping HTTP server", "error", err)
		}
		stopCancel()
	}
	if n.watcher != nil {
		if err := n.watcher.Stop(); err != nil {
			n.logger.Warn("Error stopping config watcher", "error", err)
		}
	}

	// The loop stops recording on its way out
	n.cancel()
	n.loopDone.Wait()

	if n.led != nil {
		n.led.Stop()
	}
	if n.unwire != nil {
		n.unwire()
	}
	if n.sender != nil {
		if err := n.sender.Close(); err != nil {
			n.logger.Warn("Error closing audio socket", "error", err)
		}
	}
	if n.manager != nil {
		if err := n.manager.Close(); err != nil {
			n.logger.Warn("Error closing discovery", "error", err)
		}
	}
	if n.closeSources != nil {
		n.closeSources()
	}
}
