// ABOUTME: Opus payload decoding for the bridge's compressed audio mode
// ABOUTME: Decodes packets to the S16LE byte stream the engine ingests
package bridge

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is the largest decoded frame Opus allows: 120 ms at 48 kHz.
const maxOpusFrame = 5760

// opusStream decodes one stream's Opus packets into S16LE bytes.
type opusStream struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

func newOpusStream(sampleRate, channels int) (*opusStream, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &opusStream{
		decoder:  dec,
		channels: channels,
		pcm:      make([]int16, maxOpusFrame*channels),
	}, nil
}

// decode returns the packet's samples as little-endian S16 bytes.
func (s *opusStream) decode(packet []byte) ([]byte, error) {
	n, err := s.decoder.Decode(packet, s.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	samples := n * s.channels
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		out[i*2] = byte(s.pcm[i])
		out[i*2+1] = byte(s.pcm[i] >> 8)
	}
	return out, nil
}
