package audio

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/go-audio/wav"
)

// WAVPrefix marks device names served by the WAV backend.
const WAVPrefix = "wav:"

// WAVSource plays WAV files back in real time as if they were microphones.
// Each file is listed as a device named "wav:<path>" whose only supported
// rate is the file's own rate. Playback loops at the end of the file.
type WAVSource struct {
	paths []string

	mu      sync.Mutex
	decoded map[string]*pcmData
	running producers
}

type pcmData struct {
	sampleRate int
	samples    []float32
}

// NewWAVSource returns a backend serving the given files.
func NewWAVSource(paths ...string) *WAVSource {
	return &WAVSource{
		paths:   paths,
		decoded: make(map[string]*pcmData),
	}
}

func (s *WAVSource) Name() string { return "wav" }

func (s *WAVSource) Devices() ([]string, error) {
	devices := make([]string, 0, len(s.paths))
	for _, p := range s.paths {
		devices = append(devices, WAVPrefix+p)
	}
	return devices, nil
}

func (s *WAVSource) Capabilities(device string) (Capabilities, error) {
	path, err := s.pathFor(device)
	if err != nil {
		return Capabilities{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Capabilities{}, &DeviceError{Backend: s.Name(), Device: device, Op: "open", Err: err}
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Capabilities{}, &DeviceError{Backend: s.Name(), Device: device, Op: "decode", Err: fmt.Errorf("not a valid WAV file")}
	}
	rate := int(d.SampleRate)
	return Capabilities{MinSampleRate: rate, MaxSampleRate: rate}, nil
}

func (s *WAVSource) Start(device string, lengthSeconds, sampleRate int) (Clip, error) {
	if s.running.busy(device) {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: ErrDeviceBusy}
	}

	pcm, err := s.load(device)
	if err != nil {
		return nil, err
	}
	if sampleRate != pcm.sampleRate {
		return nil, &DeviceError{
			Backend: s.Name(), Device: device, Op: "start",
			Err: fmt.Errorf("%w: file is %d Hz, requested %d Hz", ErrUnsupportedRate, pcm.sampleRate, sampleRate),
		}
	}

	clip := NewLoopClip(lengthSeconds * sampleRate)
	cursor := 0
	p := startProducer(clip, sampleRate, func(dst []float32) {
		for i := range dst {
			dst[i] = pcm.samples[cursor]
			cursor++
			if cursor == len(pcm.samples) {
				cursor = 0
			}
		}
	})
	if !s.running.add(device, p) {
		p.stop()
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "start", Err: ErrDeviceBusy}
	}
	return clip, nil
}

func (s *WAVSource) End(device string) error {
	s.running.stop(device)
	return nil
}

// Close stops all playback.
func (s *WAVSource) Close() error {
	s.running.stopAll()
	return nil
}

func (s *WAVSource) pathFor(device string) (string, error) {
	path, ok := strings.CutPrefix(device, WAVPrefix)
	if ok {
		for _, p := range s.paths {
			if p == path {
				return path, nil
			}
		}
	}
	return "", &DeviceError{Backend: s.Name(), Device: device, Op: "lookup", Err: ErrUnknownDevice}
}

// load decodes the whole file once and keeps the first channel as floats in [-1, 1].
func (s *WAVSource) load(device string) (*pcmData, error) {
	path, err := s.pathFor(device)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pcm, ok := s.decoded[path]; ok {
		return pcm, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "open", Err: err}
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "decode", Err: fmt.Errorf("not a valid WAV file")}
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "decode", Err: err}
	}

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, &DeviceError{Backend: s.Name(), Device: device, Op: "decode", Err: fmt.Errorf("file holds no samples")}
	}
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(buf.Data[i*channels]) / scale
	}

	pcm := &pcmData{sampleRate: int(d.SampleRate), samples: samples}
	s.decoded[path] = pcm
	return pcm, nil
}
