package tui

import (
	"slices"
	"testing"
	"unicode/utf8"
)

func TestRingBuffer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		capacity int
		push     []float64
		want     []float64
	}{
		{"empty", 3, nil, nil},
		{"partial", 3, []float64{1, 2}, []float64{1, 2}},
		{"full", 3, []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"overflow", 3, []float64{1, 2, 3, 4, 5}, []float64{3, 4, 5}},
		{"zero capacity", 0, []float64{1, 2}, []float64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rb := NewRingBuffer(tt.capacity)
			for _, v := range tt.push {
				rb.Push(v)
			}
			if got := rb.Slice(); !slices.Equal(got, tt.want) {
				t.Errorf("Slice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRingBuffer_Resize(t *testing.T) {
	t.Parallel()
	rb := NewRingBuffer(5)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		rb.Push(v)
	}
	rb.Resize(3)
	if got := rb.Slice(); !slices.Equal(got, []float64{3, 4, 5}) {
		t.Errorf("after shrink = %v", got)
	}
	rb.Resize(6)
	rb.Push(6)
	if got := rb.Slice(); !slices.Equal(got, []float64{3, 4, 5, 6}) {
		t.Errorf("after grow = %v", got)
	}
	rb.Reset()
	if rb.Len() != 0 {
		t.Errorf("Len after Reset = %d", rb.Len())
	}
}

func TestRenderSparkline(t *testing.T) {
	t.Parallel()
	got := RenderSparkline([]float64{-10, 0, 50, 100, 250})
	if utf8.RuneCountInString(got) != 5 {
		t.Fatalf("sparkline %q should have 5 runes", got)
	}
	if got != "▁▁▄██" {
		t.Errorf("RenderSparkline = %q, want ▁▁▄██", got)
	}
	if RenderSparkline(nil) != "" {
		t.Error("empty input should render nothing")
	}
}
