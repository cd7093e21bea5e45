package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the wire size of one float32 sample.
const BytesPerSample = 4

// AppendFloat32LE appends samples to dst as IEEE-754 little-endian floats.
func AppendFloat32LE(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// DecodeFloat32LE decodes little-endian floats from b into dst and returns
// the filled prefix of dst. Trailing bytes that do not form a full sample are ignored.
func DecodeFloat32LE(dst []float32, b []byte) []float32 {
	n := len(b) / BytesPerSample
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*BytesPerSample:]))
	}
	return dst
}
