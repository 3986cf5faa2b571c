// ABOUTME: Malgo-based audio server backend using miniaudio
// ABOUTME: Pull-style playback callback and S16 capture, both driving the engine
package device

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
)

// Malgo is the primary audio server backend. The playback device runs a
// pull callback that drains the engine; the capture device pushes S16
// frames back to it.
type Malgo struct {
	src Source

	mu  sync.Mutex
	ctx *malgo.AllocatedContext

	play struct {
		device     *malgo.Device
		channels   int
		sampleRate int
		maxPeriod  int
		startAhead int
		gains      gains
		mute       bool
		scratch    []float32
	}

	rec struct {
		device *malgo.Device
		mute   bool
	}
}

var _ playback.Device = (*Malgo)(nil)

// NewMalgo creates a backend pulling from src.
func NewMalgo(src Source) (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &Malgo{src: src, ctx: ctx}, nil
}

// PlaybackSetup opens the sink stream, reusing the existing device when the
// format is unchanged. The device is created stopped; PlaybackStart runs it.
func (m *Malgo) PlaybackSetup(sink string, channels, sampleRate, requestedPeriodFrames int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.play.device != nil &&
		m.play.channels == channels && m.play.sampleRate == sampleRate {
		return m.play.maxPeriod, m.play.startAhead, nil
	}

	m.closePlaybackLocked()

	if sink != "" {
		// Device selection needs a context-level enumeration pass;
		// TODO: resolve sink names once malgo exposes stable device ids
		// across backends.
		log.Printf("Ignoring sink %q, using the default playback device", sink)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(channels)
	config.SampleRate = uint32(sampleRate)
	config.PeriodSizeInFrames = uint32(requestedPeriodFrames)
	config.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.playbackCallback(pOutput, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, config, callbacks)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	m.play.device = device
	m.play.channels = channels
	m.play.sampleRate = sampleRate
	m.play.maxPeriod = requestedPeriodFrames
	m.play.startAhead = requestedPeriodFrames
	m.play.scratch = make([]float32, requestedPeriodFrames*channels*4)

	log.Printf("Playback device ready: %dHz, %d channels, period %d frames",
		sampleRate, channels, requestedPeriodFrames)

	return m.play.maxPeriod, m.play.startAhead, nil
}

// playbackCallback runs on miniaudio's realtime thread.
func (m *Malgo) playbackCallback(pOutput []byte, frameCount int) {
	channels := m.play.channels
	samples := frameCount * channels
	scratch := m.play.scratch
	if len(scratch) < samples {
		// Period grew beyond the preallocated scratch; skip this buffer
		// rather than allocate on the audio thread.
		return
	}
	scratch = scratch[:samples]

	m.src.Pull(scratch, frameCount)

	m.mu.Lock()
	g, mute := m.play.gains, m.play.mute
	m.mu.Unlock()
	g.apply(scratch, channels, mute)

	encodeF32LE(pOutput, scratch)
}

// PlaybackStart begins pulling. Called once the engine has data queued.
func (m *Malgo) PlaybackStart() {
	m.mu.Lock()
	device := m.play.device
	m.mu.Unlock()
	if device == nil {
		return
	}
	if err := device.Start(); err != nil {
		log.Printf("Failed to start playback device: %v", err)
	}
}

// PlaybackStop halts the stream. It may be invoked from the pull callback
// itself (keep-alive expiry), so the actual stop runs on its own goroutine.
func (m *Malgo) PlaybackStop() {
	go func() {
		m.mu.Lock()
		device := m.play.device
		m.mu.Unlock()
		if device == nil {
			return
		}
		if err := device.Stop(); err != nil {
			log.Printf("Failed to stop playback device: %v", err)
		}
	}()
}

func (m *Malgo) closePlaybackLocked() {
	if m.play.device != nil {
		m.play.device.Uninit()
		m.play.device = nil
	}
}

// PlaybackVolume converts guest volume words to gains applied in the
// callback; miniaudio has no per-stream volume control of its own.
func (m *Malgo) PlaybackVolume(volume []uint16) {
	m.mu.Lock()
	m.play.gains = gainsFromVolume(volume, m.play.channels)
	m.mu.Unlock()
}

// PlaybackMute silences the output without disturbing the pull cadence.
func (m *Malgo) PlaybackMute(mute bool) {
	m.mu.Lock()
	m.play.mute = mute
	m.mu.Unlock()
}

// PlaybackLatency reports the device-side buffering in frames.
func (m *Malgo) PlaybackLatency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.play.maxPeriod
}

// RecordStart opens the capture stream delivering S16 frames to the engine.
func (m *Malgo) RecordStart(source string, channels, sampleRate int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.device != nil {
		return
	}
	if source != "" {
		log.Printf("Ignoring source %q, using the default capture device", source)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = uint32(channels)
	config.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.mu.Lock()
			mute := m.rec.mute
			m.mu.Unlock()
			if mute {
				return
			}
			m.src.RecordPush(pInput)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, config, callbacks)
	if err != nil {
		log.Printf("Failed to initialize capture device: %v", err)
		return
	}
	if err := device.Start(); err != nil {
		log.Printf("Failed to start capture device: %v", err)
		device.Uninit()
		return
	}
	m.rec.device = device

	log.Printf("Capture device ready: %dHz, %d channels", sampleRate, channels)
}

// RecordStop closes the capture stream.
func (m *Malgo) RecordStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec.device == nil {
		return
	}
	m.rec.device.Uninit()
	m.rec.device = nil
}

// RecordVolume is not applied host-side; capture gain stays with the guest.
func (m *Malgo) RecordVolume(volume []uint16) {}

// RecordMute stops forwarding without closing the device.
func (m *Malgo) RecordMute(mute bool) {
	m.mu.Lock()
	m.rec.mute = mute
	m.mu.Unlock()
}

// Close releases the devices and the device context, ending the pull
// callback; it runs before the engine is freed.
func (m *Malgo) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closePlaybackLocked()
	if m.rec.device != nil {
		m.rec.device.Uninit()
		m.rec.device = nil
	}
	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}
}
