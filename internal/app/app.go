// ABOUTME: Main host application orchestration
// ABOUTME: Wires discovery, bridge client, playback engine, device, and UI
package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spicy-kvm/spicy-kvm-go/internal/bridge"
	"github.com/spicy-kvm/spicy-kvm-go/internal/device"
	"github.com/spicy-kvm/spicy-kvm-go/internal/discovery"
	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
	"github.com/spicy-kvm/spicy-kvm-go/internal/ui"
)

// InputGrabber owns the host's input devices while the guest has focus.
// The event-device implementation lives outside this program; the no-op
// default keeps the audio path usable on its own.
type InputGrabber interface {
	Grab() error
	Release() error
	Grabbed() bool
}

// MonitorSwitcher flips the shared display between host and guest inputs
// over the monitor control bus.
type MonitorSwitcher interface {
	SwitchToGuest() error
	SwitchToHost() error
}

// NoopGrabber satisfies InputGrabber without touching any devices.
type NoopGrabber struct {
	grabbed bool
}

func (g *NoopGrabber) Grab() error    { g.grabbed = true; return nil }
func (g *NoopGrabber) Release() error { g.grabbed = false; return nil }
func (g *NoopGrabber) Grabbed() bool  { return g.grabbed }

// NoopSwitcher satisfies MonitorSwitcher without a monitor bus.
type NoopSwitcher struct{}

func (NoopSwitcher) SwitchToGuest() error { return nil }
func (NoopSwitcher) SwitchToHost() error  { return nil }

// Config holds application configuration.
type Config struct {
	BridgeAddr    string // empty means discover via mDNS
	Name          string
	Backend       string // "malgo" (default), "oto", or "portaudio"
	PeriodSize    int
	BufferLatency int
	Sink          string
	Source        string

	Grabber InputGrabber
	Monitor MonitorSwitcher

	// Device overrides the audio backend, used by tests.
	Device playback.Device

	// OnStatus receives UI updates when set.
	OnStatus func(ui.StatusMsg)

	// Quit, when closed, ends Run. One is created if not provided.
	Quit chan struct{}
}

// engineSource breaks the construction cycle between the engine (which
// needs a device) and the device backends (which need a pull source).
type engineSource struct {
	mu sync.RWMutex
	e  *playback.Engine
}

func (s *engineSource) set(e *playback.Engine) {
	s.mu.Lock()
	s.e = e
	s.mu.Unlock()
}

func (s *engineSource) Pull(dst []float32, frames int) int {
	s.mu.RLock()
	e := s.e
	s.mu.RUnlock()
	if e == nil {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}
	return e.Pull(dst, frames)
}

func (s *engineSource) RecordPush(data []byte) {
	s.mu.RLock()
	e := s.e
	s.mu.RUnlock()
	if e != nil {
		e.RecordPush(data)
	}
}

// App is the host-side companion process.
type App struct {
	config Config

	engine *playback.Engine
	client *bridge.Client

	deviceClose func()

	mu       sync.Mutex
	totalMs  float64
	offsetMs float64
	deviceMs float64

	quit chan struct{}
}

// New wires the engine to an audio backend per config.
func New(config Config) (*App, error) {
	if config.Grabber == nil {
		config.Grabber = &NoopGrabber{}
	}
	if config.Monitor == nil {
		config.Monitor = NoopSwitcher{}
	}

	if config.Quit == nil {
		config.Quit = make(chan struct{})
	}
	a := &App{config: config, quit: config.Quit}

	src := &engineSource{}
	dev := config.Device
	if dev == nil {
		switch config.Backend {
		case "", "malgo":
			m, err := device.NewMalgo(src)
			if err != nil {
				return nil, err
			}
			dev = m
			a.deviceClose = m.Close
		case "oto":
			o, err := device.NewOto(src)
			if err != nil {
				return nil, err
			}
			dev = o
		case "portaudio":
			p, err := device.NewPortAudio(src)
			if err != nil {
				return nil, err
			}
			dev = p
		default:
			return nil, fmt.Errorf("unknown audio backend %q", config.Backend)
		}
	}

	a.engine = playback.NewEngine(dev, playback.Options{
		PeriodSize:    config.PeriodSize,
		BufferLatency: config.BufferLatency,
		Sink:          config.Sink,
		Source:        config.Source,
		LatencyFunc:   a.onLatency,
		RecordFunc:    a.onRecordFrame,
	})
	src.set(a.engine)

	return a, nil
}

// Run connects to the bridge (discovering it first if needed) and blocks
// until Quit is closed or the process is stopped externally.
func (a *App) Run() error {
	addr := a.config.BridgeAddr
	if addr == "" {
		disc := discovery.NewManager()
		disc.Browse()
		defer disc.Stop()

		log.Printf("Searching for a bridge via mDNS...")
		select {
		case b := <-disc.Bridges():
			addr = fmt.Sprintf("%s:%d", b.Host, b.Port)
		case <-time.After(10 * time.Second):
			return fmt.Errorf("no bridge found after 10 seconds")
		case <-a.quit:
			return nil
		}
	}

	a.client = bridge.NewClient(bridge.Config{
		ServerAddr: addr,
		Name:       a.config.Name,
	}, a.engine)

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("bridge connection failed: %w", err)
	}
	log.Printf("Connected to bridge at %s", addr)

	if a.config.OnStatus != nil {
		connected := true
		a.config.OnStatus(ui.StatusMsg{Connected: &connected, BridgeName: addr})
		go a.statusLoop()
	}

	<-a.quit

	a.client.Close()
	if a.deviceClose != nil {
		a.deviceClose()
	}
	a.engine.Free()
	return nil
}

// Quit returns the channel whose closing makes Run shut down.
func (a *App) Quit() chan struct{} {
	return a.quit
}

// ToggleGrab flips input ownership and switches the shared display.
func (a *App) ToggleGrab() {
	if a.config.Grabber.Grabbed() {
		if err := a.config.Grabber.Release(); err != nil {
			log.Printf("Input release failed: %v", err)
			return
		}
		if err := a.config.Monitor.SwitchToHost(); err != nil {
			log.Printf("Monitor switch to host failed: %v", err)
		}
	} else {
		if err := a.config.Grabber.Grab(); err != nil {
			log.Printf("Input grab failed: %v", err)
			return
		}
		if err := a.config.Monitor.SwitchToGuest(); err != nil {
			log.Printf("Monitor switch to guest failed: %v", err)
		}
	}

	if a.config.OnStatus != nil {
		grabbed := a.config.Grabber.Grabbed()
		a.config.OnStatus(ui.StatusMsg{Grabbed: &grabbed})
	}
}

// onLatency receives throttled reports from the engine's guest thread.
func (a *App) onLatency(totalMs, offsetMs, deviceMs float64) {
	a.mu.Lock()
	a.totalMs = totalMs
	a.offsetMs = offsetMs
	a.deviceMs = deviceMs
	a.mu.Unlock()
}

// onRecordFrame forwards captured audio to the guest.
func (a *App) onRecordFrame(data []byte) {
	if a.client == nil {
		return
	}
	if err := a.client.SendRecordFrame(data); err != nil {
		log.Printf("Record frame send failed: %v", err)
	}
}

// statusLoop feeds the UI with pipeline state.
func (a *App) statusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
			stats := a.engine.Stats()
			a.mu.Lock()
			totalMs, offsetMs, deviceMs := a.totalMs, a.offsetMs, a.deviceMs
			a.mu.Unlock()

			a.config.OnStatus(ui.StatusMsg{
				StreamState: stats.State,
				SampleRate:  stats.SampleRate,
				Channels:    stats.Channels,
				TotalMs:     totalMs,
				OffsetMs:    offsetMs,
				DeviceMs:    deviceMs,
				History:     a.engine.LatencyHistory(),
			})
		}
	}
}
