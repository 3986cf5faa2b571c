// ABOUTME: Shared definitions for audio server backends
// ABOUTME: Defines the engine-facing Source interface and gain helpers
package device

import (
	"encoding/binary"
	"math"

	"github.com/spicy-kvm/spicy-kvm-go/pkg/audio"
)

// Source is the playback engine as seen from a device backend: the pull
// entry point driven from the output callback and the capture push for the
// record path.
type Source interface {
	Pull(dst []float32, frames int) int
	RecordPush(data []byte)
}

// gainsFromVolume converts guest volume words to per-channel linear gains.
// When fewer words than channels arrive, the last word covers the rest.
type gains []float32

func gainsFromVolume(volume []uint16, channels int) gains {
	g := make(gains, channels)
	for i := 0; i < channels; i++ {
		v := uint16(0)
		if len(volume) > 0 {
			if i < len(volume) {
				v = volume[i]
			} else {
				v = volume[len(volume)-1]
			}
		}
		g[i] = float32(audio.ClampGain(audio.VolumeGain(v)))
	}
	return g
}

// apply scales interleaved samples in place. A nil gains slice means unity.
func (g gains) apply(samples []float32, channels int, mute bool) {
	if mute {
		for i := range samples {
			samples[i] = 0
		}
		return
	}
	if g == nil {
		return
	}
	for i := range samples {
		samples[i] *= g[i%channels]
	}
}

// encodeF32LE writes float32 samples as little-endian bytes for backends
// whose callback hands out a raw byte buffer.
func encodeF32LE(dst []byte, src []float32) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
