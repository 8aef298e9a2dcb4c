// Package whisperhttp implements recognizer.Recognizer against a local
// whisper.cpp inference server (POST /inference, multipart WAV upload).
//
// whisper.cpp is a batch engine: it has no notion of incremental partial
// results. This backend buffers PCM, applies an energy-based silence
// detector to segment utterances, and flushes a completed utterance as one
// HTTP request. Accept returns recognizer.Final as soon as a flush
// completes; Partial replays the most recently flushed text until the next
// utterance finalizes, giving the UI an activity signal even though no true
// low-latency partial exists.
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"livecaption-go/pkg/plugin"
	"livecaption-go/pkg/recognizer"
)

func init() {
	plugin.Register("whisperhttp", func(cfg map[string]string) (recognizer.Factory, error) {
		url := cfg["server_url"]
		if url == "" {
			return nil, fmt.Errorf("whisperhttp: server_url is required")
		}
		return NewFactory(url), nil
	})
}

const (
	bitsPerSample       = 16
	defaultRMSThreshold = 300.0
	defaultSilenceMs    = 500
	defaultMaxBufferMs  = 10_000
)

// Option configures a Backend.
type Option func(*Backend)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// WithSilenceThresholdMs sets the consecutive-silence duration that
// triggers an utterance flush. Defaults to 500ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(b *Backend) { b.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs bounds how much audio may accumulate before a
// flush is forced regardless of silence. Defaults to 10s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(b *Backend) { b.maxBufferMs = ms }
}

// WithHTTPClient overrides the default HTTP client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// Backend is a recognizer.Recognizer backed by one whisper.cpp server
// connection for one language.
type Backend struct {
	serverURL          string
	language           string
	sampleRate         int
	model              string
	silenceThresholdMs int
	maxBufferMs        int
	httpClient         *http.Client

	buffer      []byte
	hadSpeech   bool
	silenceMs   int
	lastPartial recognizer.RecognitionResult
}

// NewFactory returns a recognizer.Factory that dials serverURL for every
// language. wordsEnabled is accepted for interface symmetry but unused:
// whisper.cpp has no per-word timestamp toggle in this minimal client.
func NewFactory(serverURL string, opts ...Option) recognizer.Factory {
	return func(language string, sampleRate int, wordsEnabled bool) (recognizer.Recognizer, error) {
		if serverURL == "" {
			return nil, fmt.Errorf("whisperhttp: serverURL must not be empty")
		}
		b := &Backend{
			serverURL:          serverURL,
			language:           language,
			sampleRate:         sampleRate,
			silenceThresholdMs: defaultSilenceMs,
			maxBufferMs:        defaultMaxBufferMs,
			httpClient:         &http.Client{Timeout: 30 * time.Second},
		}
		for _, o := range opts {
			o(b)
		}
		return b, nil
	}
}

// Accept buffers pcm, applies silence detection, and — once enough
// trailing silence (or the max buffer duration) is observed — flushes the
// buffered utterance to the whisper.cpp server synchronously, returning
// recognizer.Final with the transcribed text.
func (b *Backend) Accept(pcm []byte) (recognizer.AcceptStatus, recognizer.RecognitionResult, error) {
	rms := computeRMS(pcm)
	chunkMs := chunkDurationMs(pcm, b.sampleRate)

	shouldFlush := false
	if rms < defaultRMSThreshold {
		if b.hadSpeech {
			b.silenceMs += chunkMs
			b.buffer = append(b.buffer, pcm...)
			if b.silenceMs >= b.silenceThresholdMs {
				shouldFlush = true
			}
		}
	} else {
		b.hadSpeech = true
		b.silenceMs = 0
		b.buffer = append(b.buffer, pcm...)
		bytesPerMs := b.sampleRate * (bitsPerSample / 8) / 1000
		if bytesPerMs > 0 && len(b.buffer) >= b.maxBufferMs*bytesPerMs {
			shouldFlush = true
		}
	}

	if !shouldFlush {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}

	pcmToSend := b.buffer
	b.buffer = nil
	b.hadSpeech = false
	b.silenceMs = 0

	if len(pcmToSend) == 0 {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}

	text, err := b.infer(context.Background(), pcmToSend)
	if err != nil {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, fmt.Errorf("whisperhttp: infer: %w", err)
	}
	if text == "" {
		return recognizer.NeedsMore, recognizer.RecognitionResult{}, nil
	}

	result := recognizer.RecognitionResult{
		Text:      text,
		IsFinal:   true,
		Language:  b.language,
		Words:     wordsFromText(text),
		Timestamp: time.Now(),
	}
	b.lastPartial = result
	return recognizer.Final, result, nil
}

// Partial replays the most recently finalized utterance; whisper.cpp has
// no true interim hypothesis.
func (b *Backend) Partial() (recognizer.RecognitionResult, error) {
	r := b.lastPartial
	r.IsFinal = false
	return r, nil
}

// Reset discards any buffered, not-yet-flushed audio.
func (b *Backend) Reset() error {
	b.buffer = nil
	b.hadSpeech = false
	b.silenceMs = 0
	b.lastPartial = recognizer.RecognitionResult{}
	return nil
}

// Close is a no-op: the HTTP client holds no persistent connection state
// that must be released.
func (b *Backend) Close() error { return nil }

// infer encodes pcm as WAV and POSTs it to the whisper.cpp /inference
// endpoint as multipart/form-data.
func (b *Backend) infer(ctx context.Context, pcm []byte) (string, error) {
	wav := encodeWAV(pcm, b.sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}
	if b.language != "" {
		if err := mw.WriteField("language", b.language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if b.model != "" {
		if err := mw.WriteField("model", b.model); err != nil {
			return "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
		// Result is decoded when present but not used: Accept always
		// builds Words from Text via wordsFromText.
		Result []struct {
			Word  string  `json:"word"`
			Conf  float64 `json:"conf"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse JSON response: %w", err)
	}
	return result.Text, nil
}

// wordsFromText splits text on whitespace into WordScores, each with full
// confidence (1.0), so downstream confidence filtering has a value to
// compare against the threshold. Per-word detail in the server response is
// not consulted.
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

func encodeWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func chunkDurationMs(chunk []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}
