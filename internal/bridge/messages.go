// ABOUTME: Wire message definitions for the guest audio bridge
// ABOUTME: JSON control messages plus the binary audio frame layout
package bridge

import "encoding/json"

// Message is the top-level wrapper for all JSON control messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientHello is sent by the host on connect.
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the bridge's response to client/hello.
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// StreamStart announces a playback stream and its format.
type StreamStart struct {
	Codec      string `json:"codec"` // "pcm" or "opus"
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	Timestamp  uint32 `json:"timestamp"`
}

// StreamStop ends the playback stream.
type StreamStop struct{}

// PlaybackVolume carries per-channel u16 volume words.
type PlaybackVolume struct {
	Volume []uint16 `json:"volume"`
}

// PlaybackMute toggles playback mute.
type PlaybackMute struct {
	Mute bool `json:"mute"`
}

// RecordStart asks the host to begin capturing.
type RecordStart struct {
	Channels   int `json:"channels"`
	SampleRate int `json:"sample_rate"`
}

// RecordStop ends capture.
type RecordStop struct{}

const (
	// binaryHeaderSize is one type byte plus an 8-byte big-endian
	// timestamp in guest microseconds.
	binaryHeaderSize = 1 + 8

	// audioFrameType marks a binary playback payload: S16LE PCM or one
	// Opus packet, per the codec announced in stream/start.
	audioFrameType = 4

	// recordFrameType marks a binary capture payload sent host → guest.
	recordFrameType = 5
)
