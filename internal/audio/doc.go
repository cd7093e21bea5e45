// Package audio holds the sample-level building blocks of the capture path:
// the one-second ring window arithmetic, the looping clip written by capture
// backends, and the software backends (tone generator, WAV playback) used
// when no hardware is present.
package audio
