// ABOUTME: Ring buffer package for the playback pipeline
// ABOUTME: Provides the signed-count sample ring and the SPSC timing ring
// Package ring provides the two ring buffers at the heart of the playback
// pipeline.
//
// SampleRing holds interleaved float32 frames and keeps a signed frame
// count: consuming more than is buffered records the shortfall as owed
// silence rather than failing, which lets the device start pulling before
// the guest has delivered data.
//
// TimingRing is a fixed-size single-producer/single-consumer queue of
// device clock ticks, the only channel between the device callback thread
// and the guest data thread.
package ring
