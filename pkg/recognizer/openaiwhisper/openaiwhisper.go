// Package openaiwhisper implements recognizer.Recognizer against the
// OpenAI Whisper REST API via github.com/sashabaranov/go-openai.
//
// Whisper's API is a batch transcription endpoint: there is no incremental
// partial. This backend accumulates PCM and flushes it on a fixed interval
// (mirroring the teacher's whisperStream.processLoop ticker), returning
// recognizer.Final with the transcribed text once a flush succeeds.
package openaiwhisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"livecaption-go/pkg/plugin"
	"livecaption-go/pkg/recognizer"
)

func init() {
	plugin.Register("openaiwhisper", func(cfg map[string]string) (recognizer.Factory, error) {
		apiKey := cfg["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("openaiwhisper: api_key is required")
		}
		return NewFactory(apiKey), nil
	})
}

const (
	bitsPerSample      = 16
	defaultFlushPeriod = 3 * time.Second
	minDuration        = 100 * time.Millisecond
)

// Option configures a Backend.
type Option func(*Backend)

// WithModel overrides the Whisper model name (default openai.Whisper1).
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// WithFlushPeriod overrides the 3-second batching interval.
func WithFlushPeriod(d time.Duration) Option {
	return func(b *Backend) { b.flushPeriod = d }
}

// WithBaseURL points the Whisper client at an alternate API base URL instead
// of OpenAI's default endpoint — used to redirect requests to a test server.
func WithBaseURL(url string) Option {
	return func(b *Backend) { b.baseURL = url }
}

// Backend is a recognizer.Recognizer backed by the OpenAI Whisper API for
// one language.
type Backend struct {
	client      *openai.Client
	model       string
	language    string
	sampleRate  int
	flushPeriod time.Duration
	baseURL     string

	buffer      []byte
	bufferStart time.Time
	lastFlush   time.Time
	lastResult  recognizer.RecognitionResult
}

// NewFactory returns a recognizer.Factory that authenticates with apiKey
// and constructs one Backend per language.
func NewFactory(apiKey string, opts ...Option) recognizer.Factory {
	return func(language string, sampleRate int, wordsEnabled bool) (recognizer.Recognizer, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("openaiwhisper: API key is required")
		}
		b := &Backend{
			model:       openai.Whisper1,
			language:    language,
			sampleRate:  sampleRate,
			flushPeriod: defaultFlushPeriod,
			lastFlush:   time.Now(),
		}
		for _, o := range opts {
			o(b)
		}
		if b.baseURL != "" {
			cfg := openai.DefaultConfig(apiKey)
			cfg.BaseURL = b.baseURL
			b.client = openai.NewClientWithConfig(cfg)
		} else {
			b.client = openai.NewClient(apiKey)
		}
		return b, nil
	}
}

// Accept buffers pcm and, once flushPeriod has elapsed since the last
// flush, submits the buffered audio to the Whisper API synchronously.
func (b *Backend) Accept(pcm []byte) (recognizer.AcceptStatus, recognizer.RecognitionResult, error) {
	if len(b.buffer) == 0 {
		b.bufferStart = time.Now()
	}
	b.buffer = append(b.buffer, pcm...)

	if time.Since(b.lastFlush) < b.flushPeriod {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}
	return b.flush()
}

// flush submits the buffered audio and empties the buffer; no audio is
// carried over into the next batch. Buffers shorter than minDuration are
// discarded without a request.
func (b *Backend) flush() (recognizer.AcceptStatus, recognizer.RecognitionResult, error) {
	b.lastFlush = time.Now()
	if len(b.buffer) == 0 {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}

	duration := pcmDuration(len(b.buffer), b.sampleRate)
	pcm := b.buffer
	b.buffer = nil

	if duration < minDuration {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}

	wav := encodeWAV(pcm, b.sampleRate)
	text, lang, err := b.transcribe(wav)
	if err != nil {
		slog.Warn("openaiwhisper: transcription failed", "language", b.language, "error", err)
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, fmt.Errorf("openaiwhisper: %w", err)
	}
	if text == "" {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}
	if lang == "" {
		lang = b.language
	}

	result := recognizer.RecognitionResult{
		Text:      text,
		IsFinal:   true,
		Language:  lang,
		Words:     wordsFromText(text),
		Timestamp: time.Now(),
	}
	b.lastResult = result
	return recognizer.Final, result, nil
}

// Partial replays the most recently finalized transcription; the Whisper
// API has no interim-hypothesis concept.
func (b *Backend) Partial() (recognizer.RecognitionResult, error) {
	r := b.lastResult
	r.IsFinal = false
	return r, nil
}

// Reset discards buffered, not-yet-flushed audio.
func (b *Backend) Reset() error {
	b.buffer = nil
	b.lastResult = recognizer.RecognitionResult{}
	b.lastFlush = time.Now()
	return nil
}

// Close is a no-op: go-openai's client holds no session state to release.
func (b *Backend) Close() error { return nil }

func (b *Backend) transcribe(wav []byte) (text, language string, err error) {
	req := openai.AudioRequest{
		Model:    b.model,
		Language: b.language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
	}
	resp, err := b.client.CreateTranscription(context.Background(), req)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, resp.Language, nil
}

func wordsFromText(text string) []recognizer.WordScore {
	var words []recognizer.WordScore
	var current []byte
	flush := func() {
		if len(current) > 0 {
			words = append(words, recognizer.WordScore{Text: string(current), Confidence: 1.0})
			current = current[:0]
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' {
			flush()
			continue
		}
		current = append(current, c)
	}
	flush()
	return words
}

func pcmDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / (bitsPerSample / 8)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

func encodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := uint32(sampleRate * bitsPerSample / 8)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
