//go:build portaudio

// ABOUTME: PortAudio playback backend
// ABOUTME: Callback-driven output for hosts where miniaudio is unavailable
package device

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
)

// PortAudio is a playback-only backend using the portaudio callback API.
type PortAudio struct {
	src Source

	mu         sync.Mutex
	stream     *portaudio.Stream
	channels   int
	sampleRate int
	periodSize int
	gains      gains
	mute       bool
}

var _ playback.Device = (*PortAudio)(nil)

// NewPortAudio creates a backend pulling from src.
func NewPortAudio(src Source) (playback.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudio{src: src}, nil
}

// PlaybackSetup opens the default output stream with a float32 callback.
func (p *PortAudio) PlaybackSetup(sink string, channels, sampleRate, requestedPeriodFrames int) (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil && p.channels == channels && p.sampleRate == sampleRate {
		return p.periodSize, p.periodSize, nil
	}
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	if sink != "" {
		log.Printf("Ignoring sink %q, using the default output stream", sink)
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate),
		requestedPeriodFrames, func(out []float32) {
			p.callback(out)
		})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open stream: %w", err)
	}

	p.stream = stream
	p.channels = channels
	p.sampleRate = sampleRate
	p.periodSize = requestedPeriodFrames
	return p.periodSize, p.periodSize, nil
}

func (p *PortAudio) callback(out []float32) {
	frames := len(out) / p.channels
	p.src.Pull(out, frames)

	p.mu.Lock()
	g, mute := p.gains, p.mute
	p.mu.Unlock()
	g.apply(out, p.channels, mute)
}

// PlaybackStart begins pulling.
func (p *PortAudio) PlaybackStart() {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.Start(); err != nil {
		log.Printf("Failed to start stream: %v", err)
	}
}

// PlaybackStop halts the stream off the callback thread.
func (p *PortAudio) PlaybackStop() {
	go func() {
		p.mu.Lock()
		stream := p.stream
		p.mu.Unlock()
		if stream == nil {
			return
		}
		if err := stream.Stop(); err != nil {
			log.Printf("Failed to stop stream: %v", err)
		}
	}()
}

// PlaybackVolume applies the guest volume curve in the callback.
func (p *PortAudio) PlaybackVolume(volume []uint16) {
	p.mu.Lock()
	p.gains = gainsFromVolume(volume, p.channels)
	p.mu.Unlock()
}

// PlaybackMute silences the callback output.
func (p *PortAudio) PlaybackMute(mute bool) {
	p.mu.Lock()
	p.mute = mute
	p.mu.Unlock()
}

// PlaybackLatency reports the configured period as the device buffering.
func (p *PortAudio) PlaybackLatency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.periodSize
}

// RecordStart is unsupported; this backend is playback only.
func (p *PortAudio) RecordStart(source string, channels, sampleRate int) {
	log.Printf("Capture requested but the portaudio backend is playback only")
}

// RecordStop is a no-op for the playback-only backend.
func (p *PortAudio) RecordStop() {}

// RecordVolume is a no-op for the playback-only backend.
func (p *PortAudio) RecordVolume(volume []uint16) {}

// RecordMute is a no-op for the playback-only backend.
func (p *PortAudio) RecordMute(mute bool) {}
