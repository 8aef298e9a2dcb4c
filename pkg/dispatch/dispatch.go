// Package dispatch implements the central per-frame routing state machine:
// it pulls audio frames from the AudioSource channel, decides which
// languages to feed them to, parses recognizer output into CaptionEvents,
// and drives the LanguageDetector and caption.Processor.
//
// A Loop owns every Recognizer handle exclusively: it is the only mutator
// of per-language recognizer state and per-language utterance-tracking
// state, and it runs on exactly one goroutine for its entire lifetime.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"livecaption-go/pkg/caption"
	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/detector"
	"livecaption-go/pkg/recognizer"
	"livecaption-go/pkg/rtc"
)

const (
	// receiveTimeout bounds how long the loop blocks on the frame channel
	// before checking for shutdown — the concurrency model requires this
	// to be no more than 100ms.
	receiveTimeout = 100 * time.Millisecond

	// defaultDetectionThreshold is the minimum detector confidence at
	// which the routing set is allowed to narrow below "all languages".
	defaultDetectionThreshold = 0.6

	// narrowThreshold is the confidence above which the routing set drops
	// the secondary monitoring language and routes only the detected one.
	narrowThreshold = 0.8

	// defaultInitialFinalizationThreshold is the word count at or below
	// which a partial is shown as "..." instead of its text.
	defaultInitialFinalizationThreshold = 4
)

// langState is the per-language Idle/Accumulating sub-state machine,
// persistent across frames.
type langState int

const (
	stateIdle langState = iota
	stateAccumulating
)

// ActiveSet is the set of languages currently being routed audio.
// Non-empty while the system runs; if commanded empty, callers should
// fall back to "all loaded" (see Loop.SetActiveLanguages).
type ActiveSet map[string]struct{}

// Loop is the dispatch thread: it owns the recognizer bank and the
// per-language sub-state machines, and feeds events to caption.Processor
// and detector.Detector.
type Loop struct {
	bank      *recognizer.Bank
	detector  *detector.Detector
	processor *caption.Processor
	log       *slog.Logger

	detectionThreshold           float64
	initialFinalizationThreshold int

	active ActiveSet
	states map[string]*perLangState
}

type perLangState struct {
	state             langState
	lastPartialText   string
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithDetectionThreshold overrides the default 0.6 detection threshold.
func WithDetectionThreshold(t float64) Option {
	return func(l *Loop) { l.detectionThreshold = t }
}

// WithInitialFinalizationThreshold overrides the default word-count cutoff
// (4) for the "..." preview placeholder.
func WithInitialFinalizationThreshold(n int) Option {
	return func(l *Loop) { l.initialFinalizationThreshold = n }
}

// WithLogger sets the logger used for recovered recognizer errors.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// New constructs a Loop over bank's loaded languages, all active by
// default.
func New(bank *recognizer.Bank, det *detector.Detector, proc *caption.Processor, opts ...Option) *Loop {
	l := &Loop{
		bank:                          bank,
		detector:                      det,
		processor:                     proc,
		log:                           slog.Default(),
		detectionThreshold:            defaultDetectionThreshold,
		initialFinalizationThreshold:  defaultInitialFinalizationThreshold,
		active:                        make(ActiveSet),
		states:                        make(map[string]*perLangState),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, lang := range bank.Languages() {
		l.active[lang] = struct{}{}
		l.states[lang] = &perLangState{state: stateIdle}
	}
	return l
}

// SetActiveLanguages replaces the active set. An empty set falls back to
// "all loaded" per the ActiveLanguageSet invariant. If langs is non-empty
// but none of them are loaded languages, the active set is left unchanged
// and a *captionerr.CommandError{Kind: UnknownLanguage} is returned — this
// is the set_active_languages(set) -> Err(UnknownLanguage) case, distinct
// from the empty-set fallback.
func (l *Loop) SetActiveLanguages(langs []string) error {
	if len(langs) == 0 {
		l.active = make(ActiveSet)
		for lang := range l.states {
			l.active[lang] = struct{}{}
		}
		return nil
	}
	next := make(ActiveSet, len(langs))
	for _, lang := range langs {
		if _, ok := l.states[lang]; ok {
			next[lang] = struct{}{}
		}
	}
	if len(next) == 0 {
		return &captionerr.CommandError{Kind: captionerr.UnknownLanguage, Detail: firstOf(langs)}
	}
	l.active = next
	return nil
}

func firstOf(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// ActiveLanguages returns the current active set, sorted is not
// guaranteed; callers that need deterministic order should sort.
func (l *Loop) ActiveLanguages() []string {
	out := make([]string, 0, len(l.active))
	for lang := range l.active {
		out = append(out, lang)
	}
	return out
}

// routingSet computes R per the detector's current state, intersected
// with the active set, falling back to the active set if the
// intersection would be empty.
func (l *Loop) routingSet() []string {
	state := l.detector.State()

	var candidates []string
	if state.Detected == detector.Unknown || state.Confidence < l.detectionThreshold {
		candidates = allLanguages(l.states)
	} else {
		candidates = []string{state.Detected}
		if state.Confidence < narrowThreshold {
			for lang := range l.states {
				if lang != state.Detected {
					candidates = append(candidates, lang)
					break
				}
			}
		}
	}

	var routed []string
	for _, lang := range candidates {
		if _, active := l.active[lang]; active {
			routed = append(routed, lang)
		}
	}
	if len(routed) == 0 {
		return l.ActiveLanguages()
	}
	return routed
}

func allLanguages(states map[string]*perLangState) []string {
	out := make([]string, 0, len(states))
	for lang := range states {
		out = append(out, lang)
	}
	return out
}

// Event describes one caption event: language, finality, text and words.
// Loop does not construct Events; it submits each event to
// caption.Processor as a recognizer.RecognitionResult.
type Event struct {
	Language string
	IsFinal  bool
	Text     string
	Words    []recognizer.WordScore
}

// Run blocks pulling frames from frames until ctx is cancelled or frames
// closes. It observes cancellation within one receiveTimeout interval.
// Pending previews are discarded on shutdown; no synthetic finals are
// emitted.
func (l *Loop) Run(ctx context.Context, frames <-chan *rtc.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			l.dispatchFrame(frame)
		case <-time.After(receiveTimeout):
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
}

func (l *Loop) dispatchFrame(frame *rtc.AudioFrame) {
	for _, lang := range l.routingSet() {
		r, ok := l.bank.Get(lang)
		if !ok {
			continue
		}
		l.processLanguage(lang, r, frame)
	}
}

func (l *Loop) processLanguage(lang string, r recognizer.Recognizer, frame *rtc.AudioFrame) {
	st := l.states[lang]

	status, result, err := r.Accept(frame.Data)
	if err != nil {
		l.log.Warn("dispatch: recognizer error, skipping frame", "language", lang, "error", err)
		return
	}

	if status == recognizer.Final && result.Text != "" {
		l.emit(lang, true, result.Text, result.Words)
		st.state = stateIdle
		st.lastPartialText = ""
		l.feedDetector(lang, result.Words)
		return
	}

	partial, err := r.Partial()
	if err != nil {
		l.log.Warn("dispatch: partial error, skipping frame", "language", lang, "error", err)
		return
	}
	if partial.Text == "" {
		return
	}

	words := countWords(partial.Text)
	if words <= l.initialFinalizationThreshold {
		l.emit(lang, false, "...", nil)
	} else {
		if partial.Text != st.lastPartialText {
			st.lastPartialText = partial.Text
			l.emit(lang, false, partial.Text, partial.Words)
		}
	}
	st.state = stateAccumulating
}

func (l *Loop) emit(lang string, isFinal bool, text string, words []recognizer.WordScore) {
	l.processor.Submit(recognizer.RecognitionResult{
		Text:      text,
		IsFinal:   isFinal,
		Language:  lang,
		Words:     words,
		Timestamp: time.Now(),
	})
}

func (l *Loop) feedDetector(lang string, words []recognizer.WordScore) {
	confidences := make([]float64, len(words))
	for i, w := range words {
		confidences[i] = w.Confidence
	}
	l.detector.AddResult(lang, confidences)
}

func countWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
