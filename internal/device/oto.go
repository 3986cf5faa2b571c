// ABOUTME: Oto-based playback backend for hosts without miniaudio support
// ABOUTME: Feeds the engine's pull path through oto's reader-driven player
package device

import (
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
)

// Oto is an alternative playback-only backend. Oto pulls from an io.Reader
// on its own goroutine, which maps cleanly onto the engine's pull entry
// point; there is no capture support.
type Oto struct {
	src Source

	mu         sync.Mutex
	ctx        *oto.Context
	player     *oto.Player
	channels   int
	sampleRate int
	periodSize int
	gains      gains
	mute       bool
}

var _ playback.Device = (*Oto)(nil)

// NewOto creates a backend pulling from src.
func NewOto(src Source) (*Oto, error) {
	return &Oto{src: src}, nil
}

// pullReader adapts the engine's pull entry point to oto's io.Reader.
type pullReader struct {
	o *Oto
}

func (r *pullReader) Read(p []byte) (int, error) {
	o := r.o
	channels := o.channels
	frames := len(p) / (channels * 4)
	if frames == 0 {
		return 0, nil
	}

	scratch := make([]float32, frames*channels)
	o.src.Pull(scratch, frames)

	o.mu.Lock()
	g, mute := o.gains, o.mute
	o.mu.Unlock()
	g.apply(scratch, channels, mute)

	encodeF32LE(p, scratch)
	return frames * channels * 4, nil
}

// PlaybackSetup opens the oto context. Oto allows one context per process,
// so a format change past the first is refused and the stream stays down
// until the format returns.
func (o *Oto) PlaybackSetup(sink string, channels, sampleRate, requestedPeriodFrames int) (int, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx != nil {
		if o.channels == channels && o.sampleRate == sampleRate {
			return o.periodSize, o.periodSize, nil
		}
		return 0, 0, fmt.Errorf("oto cannot reinitialize from %dHz/%dch to %dHz/%dch",
			o.sampleRate, o.channels, sampleRate, channels)
	}

	if sink != "" {
		log.Printf("Ignoring sink %q, oto always uses the default device", sink)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.ctx = ctx
	o.channels = channels
	o.sampleRate = sampleRate
	o.periodSize = requestedPeriodFrames
	o.player = ctx.NewPlayer(&pullReader{o: o})

	log.Printf("Audio output initialized: %dHz, %d channels (oto)", sampleRate, channels)
	return o.periodSize, o.periodSize, nil
}

// PlaybackStart begins pulling.
func (o *Oto) PlaybackStart() {
	o.mu.Lock()
	player := o.player
	o.mu.Unlock()
	if player != nil {
		player.Play()
	}
}

// PlaybackStop pauses the player on its own goroutine so a call from the
// pull path cannot deadlock.
func (o *Oto) PlaybackStop() {
	go func() {
		o.mu.Lock()
		player := o.player
		o.mu.Unlock()
		if player != nil {
			player.Pause()
		}
	}()
}

// PlaybackVolume applies the guest volume curve in the reader.
func (o *Oto) PlaybackVolume(volume []uint16) {
	o.mu.Lock()
	o.gains = gainsFromVolume(volume, o.channels)
	o.mu.Unlock()
}

// PlaybackMute silences the reader output.
func (o *Oto) PlaybackMute(mute bool) {
	o.mu.Lock()
	o.mute = mute
	o.mu.Unlock()
}

// PlaybackLatency reports the configured period as the device buffering.
func (o *Oto) PlaybackLatency() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.periodSize
}

// RecordStart is unsupported; oto is playback only.
func (o *Oto) RecordStart(source string, channels, sampleRate int) {
	log.Printf("Capture requested but the oto backend is playback only")
}

// RecordStop is a no-op for the playback-only backend.
func (o *Oto) RecordStop() {}

// RecordVolume is a no-op for the playback-only backend.
func (o *Oto) RecordVolume(volume []uint16) {}

// RecordMute is a no-op for the playback-only backend.
func (o *Oto) RecordMute(mute bool) {}
