package audio

import (
	"testing"
)

func TestNewSampleCount(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		last    int
		current int
		want    int
	}{
		{"forward", 100, 10, 40, 30},
		{"unchanged", 100, 42, 42, 0},
		{"wrapped", 100, 90, 5, 15},
		{"wrapped to zero", 100, 90, 0, 10},
		{"from zero", 48000, 0, 1600, 1600},
		{"almost full lap", 100, 1, 0, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewSampleCount(tt.length, tt.last, tt.current); got != tt.want {
				t.Errorf("NewSampleCount(%d, %d, %d) = %d, want %d", tt.length, tt.last, tt.current, got, tt.want)
			}
		})
	}
}

func TestWindowSince_Wraparound(t *testing.T) {
	b := NewSampleBuffer(100)

	w := b.WindowSince(90, 5)
	if w.Count != 15 {
		t.Fatalf("Expected count 15, got %d", w.Count)
	}
	if w.Start != 85 || w.End != 99 {
		t.Errorf("Expected window [85, 99], got [%d, %d]", w.Start, w.End)
	}
}

func TestWindowSince_NoNewSamples(t *testing.T) {
	b := NewSampleBuffer(100)
	if w := b.WindowSince(42, 42); !w.Empty() {
		t.Errorf("Expected empty window, got %+v", w)
	}
}

func TestWindowFor_AlwaysEndsAtLastIndex(t *testing.T) {
	for count := 1; count < 100; count++ {
		w := WindowFor(100, count)
		if w.End != 99 {
			t.Fatalf("count %d: expected end 99, got %d", count, w.End)
		}
		if w.End-w.Start+1 != count {
			t.Fatalf("count %d: window spans %d samples", count, w.End-w.Start+1)
		}
	}
}

func TestAdvance_MovesCursor(t *testing.T) {
	b := NewSampleBuffer(100)

	w := b.Advance(30)
	if w.Count != 30 || w.Start != 70 {
		t.Errorf("First advance: expected 30 samples from 70, got %+v", w)
	}
	if b.LastWritePosition() != 30 {
		t.Errorf("Expected cursor 30, got %d", b.LastWritePosition())
	}

	if w := b.Advance(30); !w.Empty() {
		t.Errorf("Second advance at same position should be empty, got %+v", w)
	}

	w = b.Advance(10)
	if w.Count != 80 {
		t.Errorf("Wrapped advance: expected 80 samples, got %d", w.Count)
	}

	b.Reset()
	if b.LastWritePosition() != 0 {
		t.Errorf("Expected cursor 0 after reset, got %d", b.LastWritePosition())
	}
}

func TestFill_NewestSampleAtEnd(t *testing.T) {
	clip := NewLoopClip(8)
	clip.Write([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	b := NewSampleBuffer(8)
	b.Fill(clip, clip.Position())

	samples := b.Samples()
	if samples[len(samples)-1] != 10 {
		t.Errorf("Expected newest sample 10 at the last index, got %v", samples)
	}
	if samples[0] != 3 {
		t.Errorf("Expected oldest surviving sample 3 at index 0, got %v", samples)
	}
}
