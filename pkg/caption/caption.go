// Package caption maintains per-language bounded caption history and the
// current in-progress preview, filtering low-confidence words out of
// finalized entries before they are retained or displayed.
//
// No caption entry is ever written to a filesystem path by this package;
// Snapshot and Statistics return values held only in memory.
package caption

import (
	"log/slog"
	"sync"
	"time"

	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/recognizer"
)

const (
	// DefaultHistoryLimit is the default bounded-FIFO capacity per
	// language.
	DefaultHistoryLimit = 100

	// DefaultConfidenceThreshold is the default per-word cutoff below
	// which a word is excluded from a finalized caption.
	DefaultConfidenceThreshold = 0.5
)

// Color is a confidence-derived display color for one word.
type Color int

const (
	ColorNeutral Color = iota
	ColorRed
	ColorYellow
	ColorGreen
)

// ColorForConfidence maps a word confidence to a display color using the
// fixed thresholds 0.85/0.65/0.5.
func ColorForConfidence(confidence float64) Color {
	switch {
	case confidence >= 0.85:
		return ColorGreen
	case confidence >= 0.65:
		return ColorYellow
	case confidence >= 0.5:
		return ColorRed
	default:
		return ColorNeutral
	}
}

// Entry is a processed recognition result: the original result plus the
// subset of words whose confidence met the threshold in effect when the
// entry was submitted.
type Entry struct {
	Text           string
	Language       string
	IsFinal        bool
	Words          []recognizer.WordScore
	FilteredWords  []recognizer.WordScore
	FilteredText   string
	Timestamp      time.Time
}

// Processor maintains, per language, a bounded FIFO of finalized entries
// and at most one in-progress preview entry.
type Processor struct {
	mu                  sync.Mutex
	log                 *slog.Logger
	historyLimit        int
	confidenceThreshold float64

	history map[string][]Entry
	preview map[string]*Entry
	changed chan struct{}
}

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithHistoryLimit overrides the default 100-entry per-language history
// capacity.
func WithHistoryLimit(n int) Option {
	return func(p *Processor) { p.historyLimit = n }
}

// WithConfidenceThreshold overrides the default 0.5 word-confidence
// cutoff.
func WithConfidenceThreshold(t float64) Option {
	return func(p *Processor) { p.confidenceThreshold = t }
}

// WithLogger sets the logger used for mismatch warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// New constructs a Processor for languages.
func New(languages []string, opts ...Option) *Processor {
	p := &Processor{
		log:                 slog.Default(),
		historyLimit:        DefaultHistoryLimit,
		confidenceThreshold: DefaultConfidenceThreshold,
		history:             make(map[string][]Entry, len(languages)),
		preview:             make(map[string]*Entry, len(languages)),
		changed:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, lang := range languages {
		p.history[lang] = nil
		p.preview[lang] = nil
	}
	return p
}

// Changed returns a channel that receives a signal whenever any language's
// history or preview is updated by Submit or ClearHistory. The channel is
// buffered by one and coalesces bursts of updates into a single pending
// signal, so a consumer that re-reads Snapshot after waking never falls
// behind regardless of how many updates occurred between wakeups.
func (p *Processor) Changed() <-chan struct{} {
	return p.changed
}

func (p *Processor) notifyChanged() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// SetConfidenceThreshold live-updates the word-confidence cutoff used by
// future Submit calls. Returns a *captionerr.CommandError if t is outside
// [0,1].
func (p *Processor) SetConfidenceThreshold(t float64) error {
	if t < 0 || t > 1 {
		return &captionerr.CommandError{Kind: captionerr.InvalidThreshold, Detail: "must be in [0,1]"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confidenceThreshold = t
	return nil
}

// Submit processes one RecognitionResult. Final results are filtered and
// appended to language's history (if non-empty after filtering); any
// result clears or replaces the language's preview slot per the state
// machine below. Submit is a no-op for languages not passed to New.
func (p *Processor) Submit(result recognizer.RecognitionResult) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.history[result.Language]; !known {
		p.log.Warn("caption: unknown language", "language", result.Language)
		return nil
	}

	entry := Entry{
		Text:      result.Text,
		Language:  result.Language,
		IsFinal:   result.IsFinal,
		Words:     result.Words,
		Timestamp: result.Timestamp,
	}

	if result.IsFinal {
		entry.FilteredWords, entry.FilteredText = p.filterLowConfidence(result.Words)
		p.preview[result.Language] = nil
		if entry.FilteredText != "" {
			h := append(p.history[result.Language], entry)
			if len(h) > p.historyLimit {
				h = h[len(h)-p.historyLimit:]
			}
			p.history[result.Language] = h
		}
	} else {
		entry.FilteredWords = result.Words
		entry.FilteredText = result.Text
		p.preview[result.Language] = &entry
	}

	p.notifyChanged()
	return &entry
}

// filterLowConfidence drops words below the current confidence threshold
// and joins the remaining words with single spaces. Each WordScore already
// pairs a word with its confidence, so no count alignment happens here;
// PadConfidences handles that for raw word/confidence arrays.
func (p *Processor) filterLowConfidence(words []recognizer.WordScore) ([]recognizer.WordScore, string) {
	if len(words) == 0 {
		return nil, ""
	}

	var filtered []recognizer.WordScore
	var text string
	for _, w := range words {
		if w.Confidence >= p.confidenceThreshold {
			filtered = append(filtered, w)
			if text != "" {
				text += " "
			}
			text += w.Text
		}
	}
	return filtered, text
}

// PadConfidences aligns a raw confidence slice with a raw word count,
// padding missing entries with full confidence (1.0) or truncating excess
// entries, and logs a warning when a mismatch occurred. Recognizer
// backends that parse JSON with separate word and confidence arrays
// should call this before constructing WordScores.
func PadConfidences(log *slog.Logger, wordCount int, confidences []float64) []float64 {
	if len(confidences) == wordCount {
		return confidences
	}
	if log == nil {
		log = slog.Default()
	}
	log.Warn("caption: word/confidence count mismatch", "words", wordCount, "confidences", len(confidences))

	if len(confidences) < wordCount {
		padded := make([]float64, wordCount)
		copy(padded, confidences)
		for i := len(confidences); i < wordCount; i++ {
			padded[i] = 1.0
		}
		return padded
	}
	return confidences[:wordCount]
}

// Snapshot is a consistent (history, preview) pair for one language: it
// never reflects a Final whose preview has not yet cleared, nor vice
// versa, because both are read under the same critical section as Submit.
type Snapshot struct {
	History []Entry
	Preview *Entry
}

// Snapshot returns a pull-based read of language's current history and
// preview.
func (p *Processor) Snapshot(language string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.history[language]
	out := make([]Entry, len(h))
	copy(out, h)

	var preview *Entry
	if pv := p.preview[language]; pv != nil {
		cp := *pv
		preview = &cp
	}

	return Snapshot{History: out, Preview: preview}
}

// ClearHistory clears language's history and preview, or every language's
// if language is empty.
func (p *Processor) ClearHistory(language string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if language == "" {
		for lang := range p.history {
			p.history[lang] = nil
			p.preview[lang] = nil
		}
		p.notifyChanged()
		return nil
	}
	if _, ok := p.history[language]; !ok {
		return &captionerr.CommandError{Kind: captionerr.UnknownLanguage, Detail: language}
	}
	defer p.notifyChanged()
	p.history[language] = nil
	p.preview[language] = nil
	return nil
}

// ConfidenceStats summarizes the confidence distribution of one
// language's retained history.
type ConfidenceStats struct {
	TotalCaptions  int
	TotalWords     int
	AverageConf    float64
	HighConfCount  int
	MediumConfCount int
	LowConfCount   int
}

// ConfidenceStatistics computes ConfidenceStats over language's retained
// (filtered) history.
func (p *Processor) ConfidenceStatistics(language string) ConfidenceStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	history := p.history[language]
	stats := ConfidenceStats{TotalCaptions: len(history)}

	var sum float64
	for _, entry := range history {
		for _, w := range entry.FilteredWords {
			sum += w.Confidence
			stats.TotalWords++
			switch ColorForConfidence(w.Confidence) {
			case ColorGreen:
				stats.HighConfCount++
			case ColorYellow:
				stats.MediumConfCount++
			default:
				stats.LowConfCount++
			}
		}
	}
	if stats.TotalWords > 0 {
		stats.AverageConf = sum / float64(stats.TotalWords)
	}
	return stats
}

// ProcessingStats is an overall, all-languages summary for status().
type ProcessingStats struct {
	TotalCaptions       int
	ActiveLanguages     []string
	ConfidenceThreshold float64
	HistoryLimit        int
}

// ProcessingStatistics returns an overall summary across every configured
// language.
func (p *Processor) ProcessingStatistics() ProcessingStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := ProcessingStats{
		ConfidenceThreshold: p.confidenceThreshold,
		HistoryLimit:        p.historyLimit,
	}
	for lang, h := range p.history {
		stats.TotalCaptions += len(h)
		if len(h) > 0 {
			stats.ActiveLanguages = append(stats.ActiveLanguages, lang)
		}
	}
	return stats
}
