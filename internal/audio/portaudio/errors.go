package portaudio

import "errors"

// ErrUnavailable is returned by Open in builds without cgo.
var ErrUnavailable = errors.New("portaudio backend requires cgo")
