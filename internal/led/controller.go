package led

// Patterns a Controller can show.
const (
	PatternOff       = "off"
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Controller drives one board LED.
type Controller interface {
	// Set shows pattern on the LED.
	Set(pattern string) error

	// Name returns the LED's sysfs name, empty when there is none.
	Name() string
}
