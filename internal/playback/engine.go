// ABOUTME: Adaptive audio playback engine bridging guest packets to the device
// ABOUTME: Owns the stream state machine, both clock trackers, and the PI loop
package playback

import (
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/spicy-kvm/spicy-kvm-go/pkg/audio"
	"github.com/spicy-kvm/spicy-kvm-go/pkg/audio/resample"
	"github.com/spicy-kvm/spicy-kvm-go/pkg/audio/ring"
)

// Options configures the engine. The zero value requests the defaults.
type Options struct {
	// PeriodSize is the requested device period in frames. A hint only;
	// the device may override it.
	PeriodSize int

	// BufferLatency is extra target latency in milliseconds to absorb
	// packet pacing jitter from the guest.
	BufferLatency int

	// Sink and Source are optional device identifiers passed through to
	// the audio server.
	Sink   string
	Source string

	// LatencyFunc, when set, receives a latency report roughly once per
	// eight guest packets. total = offset + device, all milliseconds.
	LatencyFunc func(totalMs, offsetMs, deviceMs float64)

	// RecordFunc, when set, receives captured S16 frames for delivery to
	// the guest.
	RecordFunc func(data []byte)
}

type streamState int32

const (
	stateStop streamState = iota
	stateSetupSource
	stateSetupDevice
	stateRun
	stateKeepAlive
)

func (s streamState) active() bool {
	return s != stateStop
}

func (s streamState) String() string {
	switch s {
	case stateStop:
		return "stop"
	case stateSetupSource:
		return "setup-source"
	case stateSetupDevice:
		return "setup-device"
	case stateRun:
		return "run"
	case stateKeepAlive:
		return "keep-alive"
	}
	return "unknown"
}

const (
	// keepAliveSec is how long a silent stream keeps the device open
	// before shutting down, measured in owed silence.
	keepAliveSec = 30

	// latencyReportInterval gates LatencyFunc to one call per N packets.
	latencyReportInterval = 8
)

// deviceData is the device-callback thread's working set.
type deviceData struct {
	clock clockTracker
}

// sourceData is the guest data thread's working set, including its snapshot
// of the device clock assembled from drained ticks.
type sourceData struct {
	framesIn  []float32
	framesOut []float32

	clock clockTracker

	devPeriodFrames int
	devLastTime     int64
	devNextTime     int64
	devLastPosition int64
	devNextPosition int64

	controller latencyController
	conv       resample.Converter

	lastRatio  float64
	lastOffset float64 // frames
}

// Engine is the adaptive playback pipeline. The guest-facing entry points
// (Start, Stop, Volume, Mute, Data) are serialized by the protocol client
// on one goroutine; Pull and Latency run on the audio server's callback
// thread. The only channel between the two is the timing ring.
type Engine struct {
	opts Options
	dev  Device
	now  func() int64

	// newConverter is swapped out by tests to observe resampler lifecycle.
	newConverter func(channels int) (resample.Converter, error)

	state atomic.Int32

	channels   int
	sampleRate int
	stride     int

	lastChannels   int
	lastSampleRate int

	volumeChannels int
	volume         [8]uint16
	mute           bool

	deviceMaxPeriodFrames int
	deviceStartFrames     int
	targetStartFrames     int

	buffer       *ring.SampleRing
	deviceTiming *ring.TimingRing

	timings      History
	latencyCalls int

	// The two per-thread working sets sit on separate cache lines so the
	// device callback's writes do not invalidate the guest thread's line.
	_      [64]byte
	device deviceData
	_      [64]byte
	source sourceData

	record recordState
}

type recordState struct {
	requested      bool
	started        bool
	volumeChannels int
	volume         [8]uint16
	mute           bool
	stride         int
	lastChannels   int
	lastSampleRate int
	lastFormat     audio.SampleFormat
}

// NewEngine creates an engine playing through dev.
func NewEngine(dev Device, opts Options) *Engine {
	if opts.PeriodSize == 0 {
		opts.PeriodSize = 256
	}
	if opts.BufferLatency == 0 {
		opts.BufferLatency = 12
	}
	base := time.Now()
	e := &Engine{
		opts: opts,
		dev:  dev,
		now:  func() int64 { return int64(time.Since(base)) },
		newConverter: func(channels int) (resample.Converter, error) {
			return resample.NewSinc(channels)
		},
	}
	e.source.lastRatio = 1.0
	return e
}

func (e *Engine) loadState() streamState {
	return streamState(e.state.Load())
}

func (e *Engine) storeState(s streamState) {
	e.state.Store(int32(s))
}

// playbackStop tears the stream down completely. References are dropped
// rather than freed so a racing Pull on the callback thread stays safe.
func (e *Engine) playbackStop() {
	if e.loadState() == stateStop {
		return
	}
	e.storeState(stateStop)
	e.dev.PlaybackStop()
	e.buffer = nil
	e.deviceTiming = nil
	e.source.conv = nil
	e.source.framesIn = nil
	e.source.framesOut = nil
}

// Start opens a playback stream for the given format. If a keep-alive
// stream with the same format exists it is resumed without touching the
// device; this is the fast path that makes keep-alive worthwhile.
func (e *Engine) Start(channels, sampleRate int, format audio.SampleFormat, timestamp uint32) {
	if format != audio.FormatS16 {
		log.Printf("Unsupported sample format %d, ignoring stream", format)
		return
	}

	if e.loadState() == stateKeepAlive &&
		channels == e.lastChannels && sampleRate == e.lastSampleRate {
		return
	}
	if e.loadState() != stateStop {
		e.playbackStop()
	}

	conv, err := e.newConverter(channels)
	if err != nil {
		log.Printf("Failed to create resampler: %v", err)
		return
	}

	e.buffer = ring.NewSampleRing(sampleRate, channels)
	e.deviceTiming = ring.NewTimingRing()

	e.lastChannels = channels
	e.lastSampleRate = sampleRate

	e.channels = channels
	e.sampleRate = sampleRate
	e.stride = channels * 4

	e.device.clock = clockTracker{}

	e.source.clock = clockTracker{}
	e.source.devPeriodFrames = 0
	e.source.devLastTime = math.MinInt64
	e.source.devNextTime = math.MinInt64
	e.source.devLastPosition = 0
	e.source.devNextPosition = 0
	e.source.controller.reset()
	e.source.conv = conv
	e.source.framesIn = nil
	e.source.framesOut = nil
	e.source.lastRatio = 1.0
	e.source.lastOffset = 0

	e.latencyCalls = 0
	e.storeState(stateSetupSource)

	requested := e.opts.PeriodSize
	if requested < 1 {
		requested = 1
	}
	maxPeriod, startFrames, err := e.dev.PlaybackSetup(e.opts.Sink, channels, sampleRate, requested)
	if err != nil {
		log.Printf("Device setup failed: %v", err)
		e.playbackStop()
		return
	}
	e.deviceMaxPeriodFrames = maxPeriod
	e.deviceStartFrames = startFrames

	// Restore any volume and mute state received before the stream opened
	if e.volumeChannels > 0 {
		e.dev.PlaybackVolume(e.volume[:e.volumeChannels])
	}
	e.dev.PlaybackMute(e.mute)
}

// Stop ends playback. A running stream drops to keep-alive so a quick
// restart skips the device reopen; a stream still in setup is torn down.
func (e *Engine) Stop() {
	switch e.loadState() {
	case stateRun:
		e.storeState(stateKeepAlive)
		// Make the resampler safe to reuse for the next playback
		e.source.conv.Reset()

	case stateSetupSource, stateSetupDevice:
		e.playbackStop()

	case stateKeepAlive, stateStop:
	}
}

// Volume caches the guest's per-channel volume and applies it when a stream
// is active; the cache is replayed on the next Start otherwise.
func (e *Engine) Volume(channels int, volume []uint16) {
	if channels > len(e.volume) {
		channels = len(e.volume)
	}
	if channels > len(volume) {
		channels = len(volume)
	}
	copy(e.volume[:channels], volume[:channels])
	e.volumeChannels = channels

	if !e.loadState().active() {
		return
	}
	e.dev.PlaybackVolume(e.volume[:channels])
}

// Mute caches and, when active, applies the guest's mute state.
func (e *Engine) Mute(mute bool) {
	e.mute = mute
	if !e.loadState().active() {
		return
	}
	e.dev.PlaybackMute(mute)
}

// Pull fills dst with the requested number of interleaved frames for the
// device and returns that count, or 0 when no stream exists. It runs on the audio
// server's realtime thread: no allocation, no locks beyond the ring's copy
// mutex, no syscalls.
func (e *Engine) Pull(dst []float32, frames int) int {
	if frames <= 0 {
		return 0
	}

	buffer := e.buffer
	timing := e.deviceTiming
	data := &e.device
	now := e.now()

	if buffer == nil || timing == nil {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}

	if e.loadState() == stateSetupDevice {
		// If the device started pulling before the target startup latency
		// accumulated, slew backwards so the gap plays as silence instead
		// of underrunning the ring.
		offset := buffer.Count() - e.targetStartFrames
		if offset < 0 {
			data.clock.nextPosition += int64(offset)
			buffer.Consume(nil, offset)
		}
		e.storeState(stateRun)
	}

	// Measure the device clock and post it to the guest thread
	t := &data.clock
	if frames != t.periodFrames {
		newPeriodSec := float64(frames) / float64(e.sampleRate)
		if t.periodFrames == 0 {
			t.nextTime = now + llrint(newPeriodSec*1e9)
		} else {
			// The device fills the next buffer while the previous one is
			// still playing, so on a period-size change the wall-clock
			// interval to the next wakeup reflects the old period, not the
			// new one.
			t.nextTime += llrint(t.periodSec * 1e9)
		}
		t.setPeriod(frames, e.sampleRate)
		t.nextPosition += int64(frames)
	} else {
		errSec := t.errorSec(now)
		if math.Abs(errSec) >= desyncThresholdSec {
			// Clock error is too high; slew the read pointer and restart
			// the timing estimate rather than chase it
			slew := int(math.Round(errSec * float64(e.sampleRate)))
			buffer.Consume(nil, slew)

			t.periodSec = float64(frames) / float64(e.sampleRate)
			t.nextTime = now + llrint(t.periodSec*1e9)
			t.nextPosition += int64(slew + frames)
		} else {
			t.step(errSec)
			t.nextPosition += int64(frames)
		}
	}

	timing.Push(ring.Tick{
		PeriodFrames: t.periodFrames,
		NextTime:     t.nextTime,
		NextPosition: t.nextPosition,
	})

	buffer.Consume(dst[:frames*e.channels], frames)

	// Close the stream once nothing has played for a while
	if e.loadState() == stateKeepAlive {
		if buffer.Count() <= -keepAliveSec*e.sampleRate {
			e.playbackStop()
		}
	}

	return frames
}

// devicePositionAt interpolates the device position at time t from the
// snapshot assembled out of drained ticks.
func (e *Engine) devicePositionAt(t int64) float64 {
	sd := &e.source
	return float64(sd.devLastPosition) +
		float64(sd.devNextPosition-sd.devLastPosition)*
			(float64(t-sd.devLastTime)/float64(sd.devNextTime-sd.devLastTime))
}

// Data ingests one guest audio packet: S16 interleaved frames, converted to
// float32, resampled at the controller's ratio, and appended to the ring.
func (e *Engine) Data(data []byte) {
	if e.loadState() == stateStop || len(data) == 0 {
		return
	}

	sd := &e.source
	buffer := e.buffer
	timing := e.deviceTiming
	if buffer == nil || timing == nil {
		return
	}
	now := e.now()

	frames := len(data) / (e.channels * 2)
	if frames == 0 {
		return
	}
	periodChanged := frames != sd.clock.periodFrames
	init := sd.clock.periodFrames == 0

	if periodChanged {
		sd.clock.periodFrames = frames
		sd.framesIn = make([]float32, frames*e.channels)
		sd.framesOut = make([]float32, int(math.Round(float64(frames)*1.1))*e.channels)
	}

	audio.S16LEToF32(data[:frames*e.channels*2], sd.framesIn)

	// Receive timing information from the device thread
	for {
		tick, ok := timing.Pop()
		if !ok {
			break
		}
		sd.devPeriodFrames = tick.PeriodFrames
		sd.devLastTime = sd.devNextTime
		sd.devLastPosition = sd.devNextPosition
		sd.devNextTime = tick.NextTime
		sd.devNextPosition = tick.NextPosition
	}

	configLatencyMs := e.opts.BufferLatency
	if configLatencyMs < 0 {
		configLatencyMs = 0
	}
	target := targetLatencyFrames(e.deviceMaxPeriodFrames, sd.devPeriodFrames,
		e.sampleRate, configLatencyMs)

	// Measure the guest audio clock
	var curTime, curPosition int64
	devPosition := 0.0
	havePosition := false
	if periodChanged {
		if init {
			sd.clock.nextTime = now
		}
		curTime = sd.clock.nextTime
		curPosition = sd.clock.nextPosition

		sd.clock.setPeriod(frames, e.sampleRate)
		sd.clock.nextTime += llrint(sd.clock.periodSec * 1e9)
	} else {
		errSec := sd.clock.errorSec(now)
		if math.Abs(errSec) >= desyncThresholdSec || e.loadState() == stateKeepAlive {
			// Clock error is too high or playback is restarting; slew the
			// write position and restart the timing estimate. With a valid
			// device snapshot we can slew straight to the target latency,
			// otherwise slew by the error amount
			var slew int
			if sd.devLastTime != math.MinInt64 {
				devPosition = e.devicePositionAt(now)
				havePosition = true
				targetPosition := devPosition + target
				if e.loadState() == stateKeepAlive {
					targetPosition += resamplerStartupFrames
				}
				slew = int(math.Round(targetPosition - float64(sd.clock.nextPosition)))
			} else {
				slew = int(math.Round(errSec * float64(e.sampleRate)))
			}

			buffer.Append(nil, slew)

			curTime = now
			curPosition = sd.clock.nextPosition + int64(slew)

			sd.clock.periodSec = float64(frames) / float64(e.sampleRate)
			sd.clock.nextTime = now + llrint(sd.clock.periodSec*1e9)
			sd.clock.nextPosition = curPosition

			sd.controller.reset()

			e.storeState(stateRun)
		} else {
			curTime = sd.clock.nextTime
			curPosition = sd.clock.nextPosition

			sd.clock.step(errSec)
		}
	}

	// Measure how far the guest position is from the target latency over
	// the device position. The raw value moves fast at startup, so it runs
	// through the controller's filter before reaching the PI stage.
	actualOffset := 0.0
	offsetError := sd.controller.offsetError
	if sd.devLastTime != math.MinInt64 {
		if !havePosition {
			devPosition = e.devicePositionAt(curTime)
		}
		actualOffset = float64(curPosition) - devPosition
		actualOffsetError := -(actualOffset - target)
		sd.controller.filter(actualOffsetError, sd.clock.b, sd.clock.c)
	}

	ratio := sd.controller.ratio(offsetError, sd.clock.periodSec)
	sd.lastRatio = ratio
	sd.lastOffset = actualOffset

	consumed := 0
	for consumed < frames {
		used, gen := sd.conv.Process(sd.framesIn[consumed*e.channels:frames*e.channels],
			sd.framesOut, ratio)
		if used == 0 && gen == 0 {
			log.Printf("Resampler made no progress, stopping stream")
			e.playbackStop()
			return
		}
		buffer.Append(sd.framesOut, gen)
		consumed += used
		sd.clock.nextPosition += int64(gen)
	}

	if e.loadState() == stateSetupSource {
		// Packet pacing from the guest is poor at startup, so require two
		// full source periods on top of the device's requested start
		// frames before opening the gate. The device is started right
		// away; if it pulls early the gap plays as slewed silence, if it
		// starts late the adaptive loop absorbs the extra latency.
		e.targetStartFrames = sd.clock.periodFrames*2 + e.deviceStartFrames
		e.storeState(stateSetupDevice)
		e.dev.PlaybackStart()
	}

	deviceLatency := e.dev.PlaybackLatency()
	latencyMs := (actualOffset + float64(deviceLatency)) * 1000 / float64(e.sampleRate)
	e.timings.Push(float32(latencyMs))

	if e.opts.LatencyFunc != nil {
		e.latencyCalls++
		if e.latencyCalls >= latencyReportInterval {
			e.latencyCalls = 0
			offsetMs := actualOffset * 1000 / float64(e.sampleRate)
			deviceMs := float64(deviceLatency) * 1000 / float64(e.sampleRate)
			e.opts.LatencyFunc(latencyMs, offsetMs, deviceMs)
		}
	}
}

// Latency reports the device-side playback latency in milliseconds.
func (e *Engine) Latency() uint64 {
	if e.sampleRate == 0 {
		return 0
	}
	return uint64(e.dev.PlaybackLatency() * 1000 / e.sampleRate)
}

// RecordStart opens the capture side, restarting it on a format change.
func (e *Engine) RecordStart(channels, sampleRate int, format audio.SampleFormat) {
	if e.record.started {
		if channels != e.record.lastChannels || sampleRate != e.record.lastSampleRate {
			e.dev.RecordStop()
		} else {
			return
		}
	}

	e.record.requested = true
	e.record.lastChannels = channels
	e.record.lastSampleRate = sampleRate
	e.record.lastFormat = format

	e.record.started = true
	e.record.stride = channels * 2
	e.dev.RecordStart(e.opts.Source, channels, sampleRate)

	if e.record.volumeChannels > 0 {
		e.dev.RecordVolume(e.record.volume[:e.record.volumeChannels])
	}
	e.dev.RecordMute(e.record.mute)
}

// RecordStop closes the capture side.
func (e *Engine) RecordStop() {
	e.record.requested = false
	if !e.record.started {
		return
	}
	e.dev.RecordStop()
	e.record.started = false
}

// RecordVolume caches and applies the capture volume.
func (e *Engine) RecordVolume(channels int, volume []uint16) {
	if channels > len(e.record.volume) {
		channels = len(e.record.volume)
	}
	if channels > len(volume) {
		channels = len(volume)
	}
	copy(e.record.volume[:channels], volume[:channels])
	e.record.volumeChannels = channels

	if !e.record.started {
		return
	}
	e.dev.RecordVolume(e.record.volume[:channels])
}

// RecordMute caches and applies the capture mute state.
func (e *Engine) RecordMute(mute bool) {
	e.record.mute = mute
	if !e.record.started {
		return
	}
	e.dev.RecordMute(mute)
}

// RecordPush forwards captured frames to the guest.
func (e *Engine) RecordPush(data []byte) {
	if !e.record.started || e.opts.RecordFunc == nil {
		return
	}
	e.opts.RecordFunc(data)
}

// Free stops both directions immediately without waiting for a drain. The
// audio server must have been shut down first.
func (e *Engine) Free() {
	e.playbackStop()
	e.RecordStop()
}

// Stats is a point-in-time snapshot for the status UI.
type Stats struct {
	State      string
	Channels   int
	SampleRate int
	OffsetMs   float64
	Ratio      float64
	BufferLen  int // frames
}

// Stats reads the current pipeline state. Display only; values from the
// two threads are sampled without coordination.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:      e.loadState().String(),
		Channels:   e.channels,
		SampleRate: e.sampleRate,
		Ratio:      e.source.lastRatio,
	}
	if e.sampleRate > 0 {
		s.OffsetMs = e.source.lastOffset * 1000 / float64(e.sampleRate)
	}
	if b := e.buffer; b != nil {
		s.BufferLen = b.Count()
	}
	return s
}

// LatencyHistory returns the rolling latency window for the UI graph.
func (e *Engine) LatencyHistory() []float32 {
	return e.timings.Snapshot()
}
