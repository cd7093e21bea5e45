package audio

// Window is the region of a SampleBuffer holding newly captured samples.
// Start and End are inclusive. A zero Window has Count 0 and is empty.
type Window struct {
	Start int
	End   int
	Count int
}

// Empty reports whether the window holds no samples.
func (w Window) Empty() bool {
	return w.Count <= 0
}

// NewSampleCount returns how many samples the hardware wrote since the read
// cursor was at last, given that the write cursor is now at current.
// Both cursors index a ring of the given length.
func NewSampleCount(length, last, current int) int {
	switch {
	case current > last:
		return current - last
	case current == last:
		return 0
	default:
		return (length - last) + current
	}
}

// WindowFor returns the tail region of a buffer of the given length that
// holds count new samples.
func WindowFor(length, count int) Window {
	if count <= 0 || length <= 0 {
		return Window{}
	}
	if count > length {
		count = length
	}
	return Window{
		Start: length - count,
		End:   length - 1,
		Count: count,
	}
}

// SampleBuffer is a snapshot of the most recent second of audio from one
// device, with the newest sample always at the last index, plus the read
// cursor that remembers where the hardware write cursor was on the previous
// tick.
//
// A SampleBuffer is not safe for concurrent use. It is owned by the capture
// controller and touched only from the main loop.
type SampleBuffer struct {
	samples           []float32
	lastWritePosition int
}

// NewSampleBuffer allocates a buffer of length samples. length is the sample
// rate of the session and must be positive.
func NewSampleBuffer(length int) *SampleBuffer {
	return &SampleBuffer{samples: make([]float32, length)}
}

// Len returns the buffer length, which equals the session sample rate.
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}

// Samples returns the live backing slice. Callers must not retain it across ticks.
func (b *SampleBuffer) Samples() []float32 {
	return b.samples
}

// LastWritePosition returns the read cursor.
func (b *SampleBuffer) LastWritePosition() int {
	return b.lastWritePosition
}

// Reset moves the read cursor back to the start of the ring.
func (b *SampleBuffer) Reset() {
	b.lastWritePosition = 0
}

// Fill copies len(b) samples out of the clip starting at position, so that
// the sample just before the write cursor lands at the last index.
func (b *SampleBuffer) Fill(src ClipReader, position int) {
	src.ReadAt(b.samples, position)
}

// WindowSince returns the region holding the samples written between the two
// cursors, without moving the read cursor.
func (b *SampleBuffer) WindowSince(last, current int) Window {
	return WindowFor(len(b.samples), NewSampleCount(len(b.samples), last, current))
}

// Advance computes the window of samples written since the previous call and
// moves the read cursor to current.
func (b *SampleBuffer) Advance(current int) Window {
	w := b.WindowSince(b.lastWritePosition, current)
	b.lastWritePosition = wrap(current, len(b.samples))
	return w
}

func wrap(pos, length int) int {
	if length <= 0 {
		return 0
	}
	pos %= length
	if pos < 0 {
		pos += length
	}
	return pos
}
