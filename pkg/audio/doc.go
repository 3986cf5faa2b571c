// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines stream formats, sample conversion, and the guest volume curve
// Package audio provides fundamental audio types and utilities for the
// playback pipeline.
//
// This package defines core types used throughout the library:
//   - Format: Describes a playback stream format (channels, sample rate)
//   - SampleFormat: Wire sample encoding delivered by the guest
//
// It also provides utilities shared by the bridge and device layers:
//   - S16 little-endian → float32 sample conversion
//   - The guest volume curve mapping u16 volume words to linear gain
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 48000,
//	    Channels:   2,
//	}
//
//	dst := make([]float32, format.Channels*frames)
//	audio.S16LEToF32(payload, dst)
package audio
