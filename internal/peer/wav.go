package peer

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter records received samples as a 16-bit mono WAV file.
type WAVWriter struct {
	f   *os.File
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

// CreateWAV creates path, truncating any existing file.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &WAVWriter{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends samples, clipping them to [-1, 1].
func (w *WAVWriter) Write(samples []float32) error {
	data := w.buf.Data[:0]
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data = append(data, int(v*math.MaxInt16))
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

// Close finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return fileErr
}
