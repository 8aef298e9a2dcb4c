package openaiwhisper

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"livecaption-go/pkg/recognizer"
)

// newMockServer responds to every POST /audio/transcriptions with
// responseText as JSON, counting matched requests in callCount.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func newTestBackend(t *testing.T, serverURL string, opts ...Option) recognizer.Recognizer {
	t.Helper()
	allOpts := append([]Option{WithBaseURL(serverURL)}, opts...)
	factory := NewFactory("test-api-key", allOpts...)
	b, err := factory("en", 16000, true)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return b
}

func makeSpeechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

// Segmentation: Accept must buffer silently until flushPeriod elapses, then
// flush exactly one utterance to the Whisper API.
func TestBackend_AccumulatesUntilFlushPeriodElapses(t *testing.T) {
	is := is.New(t)
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls)
	defer srv.Close()

	b := newTestBackend(t, srv.URL, WithFlushPeriod(50*time.Millisecond))

	status, _, err := b.Accept(makeSpeechPCM(16000)) // 1s of audio, well above minDuration; only the flush period holds it back
	is.NoErr(err)
	is.Equal(status, recognizer.NeedsMore)
	is.Equal(calls.Load(), int32(0))
}

func TestBackend_FlushesOnceFlushPeriodElapses(t *testing.T) {
	is := is.New(t)
	const wantText = "a wizard did it"
	var calls atomic.Int32
	srv := newMockServer(t, wantText, &calls)
	defer srv.Close()

	b := newTestBackend(t, srv.URL, WithFlushPeriod(20*time.Millisecond))

	status, _, err := b.Accept(makeSpeechPCM(16000))
	is.NoErr(err)
	is.Equal(status, recognizer.NeedsMore)

	time.Sleep(30 * time.Millisecond)

	status, result, err := b.Accept(makeSpeechPCM(16000))
	is.NoErr(err)
	is.Equal(status, recognizer.Final)
	is.Equal(result.Text, wantText)
	is.True(result.IsFinal)
	is.Equal(calls.Load(), int32(1))
}

// Partial must replay the most recently finalized transcription, not a true
// interim hypothesis — the Whisper API has none.
func TestBackend_PartialReplaysLastFinal(t *testing.T) {
	is := is.New(t)
	const wantText = "a wizard did it"
	srv := newMockServer(t, wantText, nil)
	defer srv.Close()

	b := newTestBackend(t, srv.URL, WithFlushPeriod(20*time.Millisecond))

	_, _, err := b.Accept(makeSpeechPCM(16000))
	is.NoErr(err)
	time.Sleep(30 * time.Millisecond)
	status, _, err := b.Accept(makeSpeechPCM(16000))
	is.NoErr(err)
	is.Equal(status, recognizer.Final)

	partial, err := b.Partial()
	is.NoErr(err)
	is.Equal(partial.Text, wantText)
	is.True(!partial.IsFinal)
}

func TestBackend_ShortBufferBelowMinDurationIsDropped(t *testing.T) {
	is := is.New(t)
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls)
	defer srv.Close()

	b := newTestBackend(t, srv.URL, WithFlushPeriod(20*time.Millisecond))

	// A handful of bytes is far below minDuration (100ms at 16kHz).
	_, _, err := b.Accept(makeSpeechPCM(4))
	is.NoErr(err)
	time.Sleep(30 * time.Millisecond)

	status, _, err := b.Accept(nil)
	is.NoErr(err)
	is.Equal(status, recognizer.NeedsMore)
	is.Equal(calls.Load(), int32(0))
}

func TestBackend_ResetDiscardsBufferedAudio(t *testing.T) {
	is := is.New(t)
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls)
	defer srv.Close()

	b := newTestBackend(t, srv.URL, WithFlushPeriod(20*time.Millisecond))

	_, _, err := b.Accept(makeSpeechPCM(16000))
	is.NoErr(err)
	is.NoErr(b.Reset())

	time.Sleep(30 * time.Millisecond)
	status, _, err := b.Accept(nil)
	is.NoErr(err)
	is.Equal(status, recognizer.NeedsMore)
	is.Equal(calls.Load(), int32(0))
}

func TestNewFactory_EmptyAPIKeyReturnsError(t *testing.T) {
	factory := NewFactory("")
	_, err := factory("en", 16000, true)
	if err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}
