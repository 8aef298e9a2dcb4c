// Package rtc holds the wire-level audio types shared by the capture,
// recognition, and dispatch layers.
package rtc

import (
	"fmt"
	"time"
)

// AudioFrame is an immutable buffer of mono, 16-bit little-endian signed PCM
// samples captured at a fixed sample rate and frame size. Unlike a fixed
// 10ms-of-48kHz RTP frame, the sample count here is configurable (the
// captioning pipeline defaults to 1024 samples at 16kHz) so AudioSource can
// be tuned for recognizer latency rather than network packetization.
//
// A frame is produced once by AudioSource and consumed exactly once by
// DispatchLoop; nothing mutates Data after construction.
type AudioFrame struct {
	Data       []byte        // 16-bit PCM, little-endian, mono
	SampleRate int           // samples/sec, e.g. 16000
	Samples    int           // samples per frame, e.g. 1024
	Timestamp  time.Duration // monotonic offset since capture start
}

// NewAudioFrame validates that data matches Samples*2 bytes (16-bit mono)
// and returns a new AudioFrame.
func NewAudioFrame(data []byte, sampleRate, samples int, timestamp time.Duration) (*AudioFrame, error) {
	expectedLen := samples * 2
	if len(data) != expectedLen {
		return nil, fmt.Errorf("rtc: audio frame data length mismatch: got %d bytes, expected %d bytes for %d samples",
			len(data), expectedLen, samples)
	}
	return &AudioFrame{
		Data:       data,
		SampleRate: sampleRate,
		Samples:    samples,
		Timestamp:  timestamp,
	}, nil
}

// Clone returns a deep copy of the frame, safe to retain past the caller's
// own buffer lifetime.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &AudioFrame{
		Data:       data,
		SampleRate: f.SampleRate,
		Samples:    f.Samples,
		Timestamp:  f.Timestamp,
	}
}

// Duration returns the wall-clock duration represented by this frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.Samples) * time.Second / time.Duration(f.SampleRate)
}
