package rtc

import (
	"testing"
	"time"
)

func TestNewAudioFrame(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		samples    int
		dataLen    int
		wantErr    bool
	}{
		{
			name:       "valid 16kHz 1024 samples (default frame)",
			sampleRate: 16000,
			samples:    1024,
			dataLen:    2048,
			wantErr:    false,
		},
		{
			name:       "valid 48kHz 480 samples",
			sampleRate: 48000,
			samples:    480,
			dataLen:    960,
			wantErr:    false,
		},
		{
			name:       "invalid data length",
			sampleRate: 16000,
			samples:    1024,
			dataLen:    500,
			wantErr:    true,
		},
		{
			name:       "zero samples, zero data",
			sampleRate: 16000,
			samples:    0,
			dataLen:    0,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.dataLen)
			timestamp := 100 * time.Millisecond

			frame, err := NewAudioFrame(data, tt.sampleRate, tt.samples, timestamp)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewAudioFrame() should have returned an error but didn't")
				}
				return
			}

			if err != nil {
				t.Fatalf("NewAudioFrame() unexpected error: %v", err)
			}

			if frame.SampleRate != tt.sampleRate {
				t.Errorf("SampleRate = %d, want %d", frame.SampleRate, tt.sampleRate)
			}
			if frame.Samples != tt.samples {
				t.Errorf("Samples = %d, want %d", frame.Samples, tt.samples)
			}
			if frame.Timestamp != timestamp {
				t.Errorf("Timestamp = %v, want %v", frame.Timestamp, timestamp)
			}
			if len(frame.Data) != tt.dataLen {
				t.Errorf("Data length = %d, want %d", len(frame.Data), tt.dataLen)
			}
		})
	}
}

func TestAudioFrameClone(t *testing.T) {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i % 256)
	}

	original, err := NewAudioFrame(data, 16000, 1024, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewAudioFrame() error = %v", err)
	}
	clone := original.Clone()

	if clone.SampleRate != original.SampleRate {
		t.Errorf("Clone SampleRate = %d, want %d", clone.SampleRate, original.SampleRate)
	}
	if clone.Samples != original.Samples {
		t.Errorf("Clone Samples = %d, want %d", clone.Samples, original.Samples)
	}
	if clone.Timestamp != original.Timestamp {
		t.Errorf("Clone Timestamp = %v, want %v", clone.Timestamp, original.Timestamp)
	}

	if &clone.Data[0] == &original.Data[0] {
		t.Error("Clone data points to same memory as original")
	}

	for i, b := range clone.Data {
		if b != original.Data[i] {
			t.Errorf("Clone data[%d] = %d, want %d", i, b, original.Data[i])
		}
	}

	clone.Data[0] = 255
	if original.Data[0] == 255 {
		t.Error("Modifying clone data affected original")
	}
}

func TestAudioFrameDuration(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		samples    int
		want       time.Duration
	}{
		{"16kHz 1024 samples", 16000, 1024, 64 * time.Millisecond},
		{"16kHz 160 samples", 16000, 160, 10 * time.Millisecond},
		{"zero sample rate", 0, 1024, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := &AudioFrame{SampleRate: tt.sampleRate, Samples: tt.samples}
			if got := frame.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}
