// ABOUTME: Tests for the signed-count sample ring
// ABOUTME: Tests owed-silence accounting, slews, growth, and the count invariant
package ring

import (
	"math/rand"
	"testing"
)

func frames(vals ...float32) []float32 {
	return vals
}

func TestSampleRingAppendConsume(t *testing.T) {
	r := NewSampleRing(8, 1)

	r.Append(frames(1, 2, 3), 3)
	if r.Count() != 3 {
		t.Fatalf("expected count 3, got %d", r.Count())
	}

	dst := make([]float32, 3)
	r.Consume(dst, 3)
	if dst[0] != 1 || dst[1] != 2 || dst[2] != 3 {
		t.Errorf("expected 1,2,3 got %v", dst)
	}
	if r.Count() != 0 {
		t.Errorf("expected count 0, got %d", r.Count())
	}
}

func TestSampleRingSilenceAppend(t *testing.T) {
	r := NewSampleRing(8, 2)
	r.Append(nil, 4)

	dst := []float32{9, 9, 9, 9, 9, 9, 9, 9}
	r.Consume(dst, 4)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("sample %d: expected silence, got %f", i, v)
		}
	}
}

func TestSampleRingOwedSilence(t *testing.T) {
	r := NewSampleRing(8, 1)

	// Consume from an empty ring: full request satisfied with zeros,
	// count goes negative.
	dst := []float32{5, 5, 5, 5}
	r.Consume(dst, 4)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("sample %d: expected zero fill, got %f", i, v)
		}
	}
	if r.Count() != -4 {
		t.Fatalf("expected count -4, got %d", r.Count())
	}

	// The next append pays the debt first: only the last 2 of 6 frames
	// remain readable.
	r.Append(frames(1, 2, 3, 4, 5, 6), 6)
	if r.Count() != 2 {
		t.Fatalf("expected count 2, got %d", r.Count())
	}
	out := make([]float32, 2)
	r.Consume(out, 2)
	if out[0] != 5 || out[1] != 6 {
		t.Errorf("expected frames 5,6 after debt repaid, got %v", out)
	}
}

func TestSampleRingDiscard(t *testing.T) {
	r := NewSampleRing(8, 1)
	r.Append(frames(1, 2, 3, 4), 4)
	r.Consume(nil, 2)

	out := make([]float32, 2)
	r.Consume(out, 2)
	if out[0] != 3 || out[1] != 4 {
		t.Errorf("expected 3,4 after discard, got %v", out)
	}
}

func TestSampleRingNegativeConsume(t *testing.T) {
	r := NewSampleRing(8, 1)
	r.Append(frames(1, 2), 2)

	// Back the read cursor up by 3 frames: count rises and the backed
	// region reads as silence.
	r.Consume(nil, -3)
	if r.Count() != 5 {
		t.Fatalf("expected count 5, got %d", r.Count())
	}
	out := make([]float32, 5)
	r.Consume(out, 5)
	want := []float32{0, 0, 0, 1, 2}
	for i, v := range want {
		if out[i] != v {
			t.Errorf("sample %d: expected %f, got %f", i, v, out[i])
		}
	}
}

func TestSampleRingNegativeAppend(t *testing.T) {
	r := NewSampleRing(8, 1)
	r.Append(frames(1, 2, 3, 4), 4)
	r.Append(nil, -2)
	if r.Count() != 2 {
		t.Fatalf("expected count 2, got %d", r.Count())
	}
	out := make([]float32, 2)
	r.Consume(out, 2)
	if out[0] != 1 || out[1] != 2 {
		t.Errorf("expected oldest frames 1,2 kept, got %v", out)
	}
}

func TestSampleRingGrow(t *testing.T) {
	r := NewSampleRing(4, 2)
	data := make([]float32, 100*2)
	for i := range data {
		data[i] = float32(i)
	}
	r.Append(data, 100)
	if r.Count() != 100 {
		t.Fatalf("expected count 100, got %d", r.Count())
	}
	if r.Capacity() < 100 {
		t.Fatalf("expected capacity >= 100, got %d", r.Capacity())
	}

	out := make([]float32, 100*2)
	r.Consume(out, 100)
	for i := range out {
		if out[i] != float32(i) {
			t.Fatalf("sample %d: expected %f, got %f", i, float32(i), out[i])
		}
	}
}

func TestSampleRingWraparound(t *testing.T) {
	r := NewSampleRing(4, 1)
	for round := 0; round < 10; round++ {
		r.Append(frames(float32(round), float32(round)+0.5), 2)
		out := make([]float32, 2)
		r.Consume(out, 2)
		if out[0] != float32(round) || out[1] != float32(round)+0.5 {
			t.Fatalf("round %d: got %v", round, out)
		}
	}
}

// The count must equal appended minus consumed at all times, counting
// requested frames including silence and owed fills.
func TestSampleRingCountInvariant(t *testing.T) {
	r := NewSampleRing(16, 2)
	rng := rand.New(rand.NewSource(1))

	appended, consumed := 0, 0
	for i := 0; i < 2000; i++ {
		n := rng.Intn(64)
		switch rng.Intn(4) {
		case 0:
			buf := make([]float32, n*2)
			r.Append(buf, n)
			appended += n
		case 1:
			r.Append(nil, n)
			appended += n
		case 2:
			dst := make([]float32, n*2)
			r.Consume(dst, n)
			consumed += n
		case 3:
			r.Consume(nil, n)
			consumed += n
		}
		if got := r.Count(); got+consumed-appended != 0 {
			t.Fatalf("iteration %d: count %d + consumed %d - appended %d != 0",
				i, got, consumed, appended)
		}
	}
}
