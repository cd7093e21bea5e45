package audio

import (
	"sync"
)

// ClipReader copies samples out of a looping clip.
type ClipReader interface {
	// ReadAt fills dst starting at offset, wrapping around the end of the clip.
	ReadAt(dst []float32, offset int)
}

// Clip is a looping recording target as exposed by a capture backend.
// Position is the hardware write cursor: the index the next sample will be
// written to. It stays at 0 until the device has delivered its first samples.
type Clip interface {
	ClipReader
	Position() int
	Len() int
}

// LoopClip is the Clip implementation shared by all backends. A producer
// goroutine (device callback, generator) calls Write while the main loop
// reads through Position and ReadAt.
type LoopClip struct {
	mu       sync.RWMutex
	data     []float32
	position int
	written  int64
}

// NewLoopClip creates a clip holding length samples.
func NewLoopClip(length int) *LoopClip {
	return &LoopClip{data: make([]float32, length)}
}

// Len returns the clip length in samples.
func (c *LoopClip) Len() int {
	return len(c.data)
}

// Position returns the write cursor.
func (c *LoopClip) Position() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// Written returns the total number of samples written since creation.
func (c *LoopClip) Written() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.written
}

// Write appends samples at the write cursor, overwriting the oldest samples
// once the clip has looped.
func (c *LoopClip) Write(samples []float32) {
	n := len(c.data)
	if n == 0 || len(samples) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.written += int64(len(samples))
	if len(samples) > n {
		// Only the newest n samples survive, so start writing where they land.
		skipped := len(samples) - n
		c.position = (c.position + skipped) % n
		samples = samples[skipped:]
	}

	pos := c.position
	for len(samples) > 0 {
		k := copy(c.data[pos:], samples)
		samples = samples[k:]
		pos = (pos + k) % n
	}
	c.position = pos
}

// ReadAt fills dst with samples starting at offset, wrapping around the clip.
func (c *LoopClip) ReadAt(dst []float32, offset int) {
	n := len(c.data)
	if n == 0 {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	start := wrap(offset, n)
	k := copy(dst, c.data[start:])
	for k < len(dst) {
		k += copy(dst[k:], c.data)
	}
}
