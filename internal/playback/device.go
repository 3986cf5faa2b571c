// ABOUTME: Audio device interface consumed by the playback engine
// ABOUTME: Implemented by the malgo/oto/portaudio backends and by test mocks
package playback

// Device is the host audio server the engine plays through. The engine owns
// the adaptive pipeline; the device owns the OS-facing stream and calls
// Engine.Pull from its realtime context once started.
//
// PlaybackSetup opens (or reuses) a sink stream and reports the largest
// period the device may request and how many frames it wants buffered
// before starting. PlaybackLatency reports the device-side latency in
// frames. PlaybackStop may be called from the pull callback itself and must
// not block on the stream teardown.
type Device interface {
	PlaybackSetup(sink string, channels, sampleRate, requestedPeriodFrames int) (maxPeriodFrames, startFrames int, err error)
	PlaybackStart()
	PlaybackStop()
	PlaybackVolume(volume []uint16)
	PlaybackMute(mute bool)
	PlaybackLatency() int

	RecordStart(source string, channels, sampleRate int)
	RecordStop()
	RecordVolume(volume []uint16)
	RecordMute(mute bool)
}
