// Package audio wraps PortAudio microphone capture behind a bounded,
// drop-oldest frame channel so the dispatch loop never has to reason about
// the driver thread directly.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/rtc"
)

var (
	initOnce sync.Once
	initErr  error
)

func ensureInit() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

const (
	// DefaultSampleRate is the mono capture rate the rest of the pipeline
	// assumes (recognizer backends are built against 16kHz PCM).
	DefaultSampleRate = 16000
	// DefaultFrameSamples is the number of samples per captured frame.
	DefaultFrameSamples = 1024
	// DefaultChannelCapacity is the default bounded-channel depth. New
	// raises any smaller requested capacity to 8 frames, the minimum
	// headroom the concurrency model (§5) calls for.
	DefaultChannelCapacity = 16
)

// DeviceInfo describes one enumerable input device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// Source captures mono 16-bit PCM from a selectable input device and
// exposes it as a bounded, drop-oldest channel of rtc.AudioFrame. Only
// ControlPlane and Source's own internals mutate the device handle; the
// dispatch loop only ever reads from Frames().
type Source struct {
	sampleRate   int
	frameSamples int
	capacity     int
	log          *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	device  *portaudio.DeviceInfo
	running bool

	frameCh chan *rtc.AudioFrame
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Source at construction time.
type Option func(*Source)

// WithSampleRate overrides the default 16kHz capture rate.
func WithSampleRate(rate int) Option {
	return func(s *Source) { s.sampleRate = rate }
}

// WithFrameSamples overrides the default 1024-sample frame size.
func WithFrameSamples(samples int) Option {
	return func(s *Source) { s.frameSamples = samples }
}

// WithChannelCapacity overrides the default bounded-channel depth.
func WithChannelCapacity(n int) Option {
	return func(s *Source) { s.capacity = n }
}

// WithLogger sets the logger used for driver-status anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.log = l }
}

// New constructs a Source. It does not open any device; call Select then
// Start to begin capturing.
func New(opts ...Option) (*Source, error) {
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}

	s := &Source{
		sampleRate:   DefaultSampleRate,
		frameSamples: DefaultFrameSamples,
		capacity:     DefaultChannelCapacity,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capacity < 8 {
		s.capacity = 8
	}
	s.frameCh = make(chan *rtc.AudioFrame, s.capacity)
	return s, nil
}

// ListDevices is a pure read of the devices PortAudio currently reports.
func ListDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()

	out := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         defaultIn != nil && d.Name == defaultIn.Name,
		})
	}
	return out, nil
}

// Select atomically stops any current stream and opens the device at
// index. If opening fails, the previous stream is not resurrected: the
// Source's state becomes stopped and a *captionerr.DeviceError is
// returned.
func (s *Source) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.running
	s.stopLocked()

	devices, err := portaudio.Devices()
	if err != nil {
		return &captionerr.DeviceError{Kind: captionerr.DeviceUnavailable, Err: err}
	}
	if index < 0 || index >= len(devices) {
		return &captionerr.DeviceError{Kind: captionerr.DeviceUnavailable, Device: fmt.Sprintf("index %d", index)}
	}
	dev := devices[index]
	if dev.MaxInputChannels < 1 {
		return &captionerr.DeviceError{Kind: captionerr.DeviceInvalidFormat, Device: dev.Name, Err: fmt.Errorf("no input channels")}
	}

	s.device = dev
	if wasRunning {
		return s.startLocked()
	}
	return nil
}

// Start begins capturing from the currently selected device. Idempotent:
// calling Start while already running is a no-op returning nil.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.device == nil {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return &captionerr.DeviceError{Kind: captionerr.DeviceUnavailable, Err: err}
		}
		s.device = dev
	}
	return s.startLocked()
}

func (s *Source) startLocked() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   s.device,
			Channels: 1,
			Latency:  s.device.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: s.frameSamples,
	}

	s.buffer = make([]int16, s.frameSamples)
	stream, err := portaudio.OpenStream(params, s.buffer)
	if err != nil {
		return &captionerr.DeviceError{Kind: captionerr.DeviceUnavailable, Device: s.device.Name, Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &captionerr.DeviceError{Kind: captionerr.DeviceBusy, Device: s.device.Name, Err: err}
	}

	s.stream = stream
	s.running = true
	s.stopCh = make(chan struct{})
	if s.frameCh == nil {
		s.frameCh = make(chan *rtc.AudioFrame, s.capacity)
	}

	s.wg.Add(1)
	go s.capture(s.stream, s.buffer, s.stopCh)
	return nil
}

// Stop halts capture. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *Source) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	s.wg.Wait()
}

// Frames returns the consumer side of the bounded, drop-oldest frame
// channel. Only the dispatch loop should read from it.
func (s *Source) Frames() <-chan *rtc.AudioFrame {
	return s.frameCh
}

// IsRunning reports whether the capture stream is currently active.
func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentDevice returns the name of the currently selected capture device,
// or "" if none has been selected yet.
func (s *Source) CurrentDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return ""
	}
	return s.device.Name
}

// capture runs on its own goroutine for the lifetime of one stream. It
// never blocks the PortAudio driver: Read errors are logged and retried,
// and a full channel is handled by evicting the oldest queued frame
// (drop-oldest), never by blocking the enqueue.
func (s *Source) capture(stream *portaudio.Stream, buffer []int16, stop <-chan struct{}) {
	defer s.wg.Done()

	var offset time.Duration
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			s.log.Warn("audio: stream read error", "error", err)
			continue
		}

		data := make([]byte, len(buffer)*2)
		for i, sample := range buffer {
			data[i*2] = byte(sample)
			data[i*2+1] = byte(sample >> 8)
		}

		frame, err := rtc.NewAudioFrame(data, s.sampleRate, len(buffer), offset)
		if err != nil {
			s.log.Warn("audio: dropped malformed frame", "error", err)
			continue
		}
		offset += frame.Duration()

		s.enqueue(frame)
	}
}

// enqueue implements drop-oldest overflow: if the channel is full, the
// oldest queued frame is evicted to make room for the newest one.
func (s *Source) enqueue(frame *rtc.AudioFrame) {
	for {
		select {
		case s.frameCh <- frame:
			return
		default:
		}
		select {
		case <-s.frameCh:
		default:
		}
	}
}
