package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device tree model fragment to the LED used for status.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a controller for name under /sys/class/leds. An empty name
// picks the board's user LED from the device tree model. Boards without a
// known LED get a no-op controller.
func New(name string, logger *slog.Logger) Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		model := detectBoard()
		name = boardLED(model)
		if name == "" {
			logger.Info("No LED support detected, using no-op controller", "board_model", model)
			return newNoop(logger)
		}
		logger.Info("Detected board LED", "board_model", model, "led", name)
	}
	return newSysfs(sysfsLEDPath, name)
}

func boardLED(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
