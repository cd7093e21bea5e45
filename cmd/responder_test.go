package cmd

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/smazurov/micnode/internal/peer"
)

func TestRecording_OpensOnFirstJoin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.wav")
	rec := &recording{path: path, logger: discardLogger()}

	// Samples before any client joined are dropped
	rec.write([]float32{0.5}, netip.AddrPort{})

	rec.join(peer.Client{Name: "phone", SampleRate: 16000})
	rec.join(peer.Client{Name: "laptop", SampleRate: 48000})
	rec.write(make([]float32, 160), netip.AddrPort{})
	rec.close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("WAV file not written: %v", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000 from the first client", d.SampleRate)
	}
	if len(buf.Data) != 160 {
		t.Errorf("samples = %d, want 160", len(buf.Data))
	}
}

func TestRecording_NoPath(t *testing.T) {
	rec := &recording{logger: discardLogger()}
	rec.join(peer.Client{Name: "phone", SampleRate: 16000})
	rec.write([]float32{0.1}, netip.AddrPort{})
	rec.close()
	if rec.writer != nil {
		t.Error("no writer expected without a path")
	}
}
