// ABOUTME: Sample rate conversion package with run-time variable ratio
// ABOUTME: Windowed-sinc interpolation over interleaved float32 frames
// Package resample provides sample rate conversion for interleaved float32
// audio with a ratio that may change on every call.
//
// The playback pipeline uses the ratio as a control input: a PI controller
// nudges it a fraction of a percent either side of 1.0 to keep the guest
// and device clocks in step. The converter therefore accepts the ratio per
// Process call rather than at construction.
//
// Example:
//
//	conv, err := resample.NewSinc(2)
//	if err != nil { ... }
//	used, gen := conv.Process(in, out, 1.0005)
package resample
