package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/micnode/cmd"
	"github.com/smazurov/micnode/internal/config"
	"github.com/smazurov/micnode/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"micnode.toml"`

	// Settings, also watched for changes at runtime
	ClientName      string `help:"Name shown to the desktop peer, host name if empty" toml:"settings.client_name" env:"CLIENT_NAME" validate:"max=64"`
	ClientID        string `help:"Client id (UUID), random if empty" toml:"settings.client_id" env:"CLIENT_ID" validate:"omitempty,uuid"`
	RecordingDevice string `help:"Recording device, first device if empty" toml:"settings.recording_device" env:"RECORDING_DEVICE"`
	SampleRate      int    `help:"Requested sample rate, 0 for the device default" default:"0" toml:"settings.sample_rate" env:"SAMPLE_RATE" validate:"gte=0,lte=384000"`

	// Discovery settings
	DiscoveryListen    string `help:"Address receiving connect responses" default:":34568" toml:"discovery.listen" env:"DISCOVERY_LISTEN"`
	DiscoveryBroadcast string `help:"Address connect requests are sent to" default:"255.255.255.255:34567" toml:"discovery.broadcast" env:"DISCOVERY_BROADCAST"`
	DiscoveryPause     string `help:"Pause between connect requests" default:"1s" toml:"discovery.pause" env:"DISCOVERY_PAUSE"`

	// Main loop and capture settings
	FrameRate     int    `help:"Main loop ticks per second" default:"30" toml:"app.frame_rate" env:"FRAME_RATE" validate:"gte=1,lte=1000"`
	AutoRecord    bool   `help:"Start recording when a session is established" default:"true" toml:"app.auto_record" env:"AUTO_RECORD"`
	ArmTimeout    string `help:"How long to wait for the device to deliver samples" default:"1s" toml:"capture.arm_timeout" env:"ARM_TIMEOUT"`
	Backends      string `help:"Comma-separated audio backends in lookup order" default:"portaudio,tone,wav" toml:"audio.backends" env:"AUDIO_BACKENDS"`
	WAVFiles      string `help:"Comma-separated WAV files exposed as wav:<path> devices" toml:"audio.wav_files" env:"AUDIO_WAV_FILES"`
	ToneFrequency int    `help:"Frequency of the tone device in Hz" default:"440" toml:"audio.tone_frequency" env:"AUDIO_TONE_FREQUENCY" validate:"gt=0,lte=20000"`

	// Server settings
	HTTPAddr    string `help:"HTTP API address, empty to disable" default:":8091" toml:"server.addr" env:"SERVER_ADDR"`
	WatchConfig bool   `help:"Reload settings when the config file changes" default:"true" toml:"server.watch_config" env:"WATCH_CONFIG"`

	// Features settings
	FeaturesLEDControl bool   `help:"Show the connection state on a board LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `help:"LED under /sys/class/leds, detected from the board if empty" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT" validate:"oneof=text json"`
	LoggingCapture   string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAudio     string `help:"Audio backend logging level" default:"info" toml:"logging.audio" env:"LOGGING_AUDIO"`
	LoggingDiscovery string `help:"Discovery logging level" default:"info" toml:"logging.discovery" env:"LOGGING_DISCOVERY"`
	LoggingSender    string `help:"Sender logging level" default:"info" toml:"logging.sender" env:"LOGGING_SENDER"`
	LoggingApp       string `help:"Main loop logging level" default:"info" toml:"logging.app" env:"LOGGING_APP"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig    string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingLED       string `help:"LED logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
}

func main() {
	newCLI().Run()
}

// newCLI builds the root command and its subcommands.
func newCLI() humacli.CLI {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Flags given on the command line keep precedence over file and env
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture":   opts.LoggingCapture,
				"audio":     opts.LoggingAudio,
				"discovery": opts.LoggingDiscovery,
				"sender":    opts.LoggingSender,
				"app":       opts.LoggingApp,
				"api":       opts.LoggingAPI,
				"config":    opts.LoggingConfig,
				"led":       opts.LoggingLED,
			},
		})
		logger := logging.GetLogger("main")

		if err := config.ValidateOptions(opts); err != nil {
			logger.Error("Invalid options", "error", err)
			os.Exit(1)
		}

		// Sockets and devices are opened in OnStart so subcommands, which
		// also pass through this callback, never bind the client ports.
		n := newNode(opts, logger)

		hooks.OnStart(func() {
			if err := n.open(); err != nil {
				logger.Error("Failed to start", "error", err)
				n.stop()
				os.Exit(1)
			}
			if err := n.serve(); err != nil {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			n.stop()
		})
	})

	cli.Root().Use = "micnode"
	cli.Root().Short = "Wireless microphone client"
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateResponderCmd())
	return cli
}

// parseDuration reads a duration option, falling back on bad input.
func parseDuration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}
