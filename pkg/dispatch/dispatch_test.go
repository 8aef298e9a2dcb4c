package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"livecaption-go/pkg/caption"
	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/detector"
	"livecaption-go/pkg/recognizer"
	"livecaption-go/pkg/rtc"
)

// fakeRecognizer returns a scripted sequence of (status, result) pairs, one
// per Accept call, cycling on the last entry once exhausted.
type fakeRecognizer struct {
	script []scriptStep
	calls  int
}

type scriptStep struct {
	status recognizer.AcceptStatus
	result recognizer.RecognitionResult
}

func (f *fakeRecognizer) Accept(pcm []byte) (recognizer.AcceptStatus, recognizer.RecognitionResult, error) {
	step := f.script[min(f.calls, len(f.script)-1)]
	f.calls++
	return step.status, step.result, nil
}

func (f *fakeRecognizer) Partial() (recognizer.RecognitionResult, error) {
	step := f.script[min(f.calls-1, len(f.script)-1)]
	if step.status == recognizer.NeedsMore {
		return step.result, nil
	}
	return recognizer.RecognitionResult{}, nil
}

func (f *fakeRecognizer) Reset() error { return nil }
func (f *fakeRecognizer) Close() error { return nil }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func newTestLoop(t *testing.T, script []scriptStep) (*Loop, *caption.Processor, *detector.Detector) {
	t.Helper()
	factory := func(language string, sampleRate int, wordsEnabled bool) (recognizer.Recognizer, error) {
		return &fakeRecognizer{script: script}, nil
	}
	bank, errs := recognizer.New([]string{"en"}, 16000, true, factory, nil)
	if len(errs) > 0 {
		t.Fatalf("unexpected load errors: %v", errs)
	}
	det := detector.New([]string{"en"}, 0.6)
	proc := caption.New([]string{"en"})
	loop := New(bank, det, proc)
	return loop, proc, det
}

func testFrame() *rtc.AudioFrame {
	return &rtc.AudioFrame{Data: make([]byte, 2048), SampleRate: 16000, Samples: 1024, Timestamp: 0}
}

func TestLoop_FinalEmitsToCaptionAndDetector(t *testing.T) {
	is := is.New(t)

	script := []scriptStep{
		{status: recognizer.Final, result: recognizer.RecognitionResult{
			Text: "hello world", Language: "en",
			Words: []recognizer.WordScore{{Text: "hello", Confidence: 0.9}, {Text: "world", Confidence: 0.8}},
		}},
	}
	loop, proc, det := newTestLoop(t, script)

	loop.dispatchFrame(testFrame())

	snap := proc.Snapshot("en")
	is.Equal(len(snap.History), 1)
	is.Equal(snap.History[0].FilteredText, "hello world")

	// detector needs 3 samples before it reports detected; one AddResult
	// call is not enough, but it should not panic and should record it.
	stats := det.Statistics()
	is.Equal(stats.LanguageBreakdown["en"], 1)
}

func TestLoop_ShortPartialEmitsEllipsis(t *testing.T) {
	is := is.New(t)

	script := []scriptStep{
		{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{
			Text: "hi", Language: "en",
			Words: []recognizer.WordScore{{Text: "hi", Confidence: 0.9}},
		}},
	}
	loop, proc, _ := newTestLoop(t, script)

	loop.dispatchFrame(testFrame())

	snap := proc.Snapshot("en")
	is.True(snap.Preview != nil)
	is.Equal(snap.Preview.Text, "...")
}

func TestLoop_LongPartialEmitsText(t *testing.T) {
	is := is.New(t)

	script := []scriptStep{
		{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{
			Text: "this is a longer partial phrase", Language: "en",
		}},
	}
	loop, proc, _ := newTestLoop(t, script)

	loop.dispatchFrame(testFrame())

	snap := proc.Snapshot("en")
	is.True(snap.Preview != nil)
	is.Equal(snap.Preview.Text, "this is a longer partial phrase")
}

func TestLoop_RoutingSetFallsBackToActiveWhenUnknown(t *testing.T) {
	is := is.New(t)

	loop, _, _ := newTestLoop(t, []scriptStep{{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{}}})
	set := loop.routingSet()
	is.Equal(len(set), 1)
	is.Equal(set[0], "en")
}

func TestLoop_SetActiveLanguagesEmptyFallsBackToAll(t *testing.T) {
	is := is.New(t)

	loop, _, _ := newTestLoop(t, []scriptStep{{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{}}})
	is.NoErr(loop.SetActiveLanguages([]string{"en"}))
	is.NoErr(loop.SetActiveLanguages(nil))
	is.Equal(len(loop.ActiveLanguages()), 1)
}

// S5: set_active_languages(set) with no loaded language in set must return
// Err(UnknownLanguage) and leave the previous active set untouched — it
// must NOT silently fall back to "all loaded" the way an empty set does.
func TestLoop_SetActiveLanguagesUnknownOnlyReturnsErrorAndLeavesSetUnchanged(t *testing.T) {
	is := is.New(t)

	loop, _, _ := newTestLoop(t, []scriptStep{{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{}}})
	before := loop.ActiveLanguages()

	err := loop.SetActiveLanguages([]string{"fr", "de"})
	is.True(err != nil)

	var cmdErr *captionerr.CommandError
	is.True(errors.As(err, &cmdErr))
	is.Equal(cmdErr.Kind, captionerr.UnknownLanguage)
	is.Equal(loop.ActiveLanguages(), before)
}

func TestLoop_RunRespectsCancellation(t *testing.T) {
	is := is.New(t)

	loop, _, _ := newTestLoop(t, []scriptStep{{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{}}})
	frames := make(chan *rtc.AudioFrame)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx, frames)
	is.True(err != nil)
}

func TestLoop_RunReturnsOnClosedChannel(t *testing.T) {
	is := is.New(t)

	loop, _, _ := newTestLoop(t, []scriptStep{{status: recognizer.NeedsMore, result: recognizer.RecognitionResult{}}})
	frames := make(chan *rtc.AudioFrame)
	close(frames)

	err := loop.Run(context.Background(), frames)
	is.NoErr(err)
}
