//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package device

import (
	"fmt"

	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
)

// NewPortAudio reports that the backend was not compiled in.
func NewPortAudio(src Source) (playback.Device, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
