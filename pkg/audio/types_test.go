// ABOUTME: Tests for audio types and conversion helpers
// ABOUTME: Tests S16LE decoding and the guest volume curve constants
package audio

import (
	"math"
	"testing"
)

func TestFormatStride(t *testing.T) {
	f := Format{Channels: 2, SampleRate: 48000}
	if f.Stride() != 8 {
		t.Errorf("expected float32 stride 8, got %d", f.Stride())
	}
	if f.S16Stride() != 4 {
		t.Errorf("expected s16 stride 4, got %d", f.S16Stride())
	}
}

func TestS16LEToF32(t *testing.T) {
	tests := []struct {
		name     string
		src      []byte
		expected []float32
	}{
		{"zero", []byte{0x00, 0x00}, []float32{0}},
		{"max positive", []byte{0xFF, 0x7F}, []float32{32767.0 / 32768.0}},
		{"min negative", []byte{0x00, 0x80}, []float32{-1.0}},
		{"minus one", []byte{0xFF, 0xFF}, []float32{-1.0 / 32768.0}},
		{"interleaved pair", []byte{0x00, 0x40, 0x00, 0xC0}, []float32{0.5, -0.5}},
	}

	for _, tt := range tests {
		dst := make([]float32, len(tt.src)/2)
		S16LEToF32(tt.src, dst)
		for i, want := range tt.expected {
			if dst[i] != want {
				t.Errorf("%s: sample %d: expected %f, got %f", tt.name, i, want, dst[i])
			}
		}
	}
}

// The volume curve is a bit-exact contract with the guest agent; the expected
// values below were computed directly from the curve constants.
func TestVolumeGain(t *testing.T) {
	tests := []struct {
		volume   uint16
		expected float64
		tol      float64
	}{
		{0, -1.7185466e-4, 1e-9},
		{32768, 7.9287e-4, 5e-7},
		{65535, 0.9998, 5e-4},
	}

	for _, tt := range tests {
		got := VolumeGain(tt.volume)
		if math.Abs(got-tt.expected) > tt.tol {
			t.Errorf("VolumeGain(%d): expected %.6g, got %.6g", tt.volume, tt.expected, got)
		}
	}

	// The curve must be strictly increasing over the full range.
	prev := VolumeGain(0)
	for v := 1024; v <= 65535; v += 1024 {
		g := VolumeGain(uint16(v))
		if g <= prev {
			t.Errorf("curve not increasing at %d: %.6g <= %.6g", v, g, prev)
		}
		prev = g
	}
}

func TestClampGain(t *testing.T) {
	if g := ClampGain(VolumeGain(0)); g != 0 {
		t.Errorf("expected gain at volume 0 to clamp to 0, got %g", g)
	}
	if g := ClampGain(1.5); g != 1 {
		t.Errorf("expected 1.5 to clamp to 1, got %g", g)
	}
	if g := ClampGain(0.25); g != 0.25 {
		t.Errorf("expected 0.25 unchanged, got %g", g)
	}
}
