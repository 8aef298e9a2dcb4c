package recognizer

import (
	"errors"
	"fmt"
	"log/slog"

	"livecaption-go/pkg/captionerr"
)

// Bank holds one Recognizer per loaded language, keyed by language code.
// Model loading failure for one language is non-fatal for the others,
// provided at least one loads; if none load, New returns an error.
//
// Bank methods are documented single-goroutine-only: only the dispatch
// loop may call Get/Reset once a Bank is constructed.
type Bank struct {
	recognizers map[string]Recognizer
	log         *slog.Logger
}

// New loads one recognizer per language in languages using factory, keyed
// by language code. Per-language failures are collected and logged; New
// only fails if every language fails to load.
func New(languages []string, sampleRate int, wordsEnabled bool, factory Factory, log *slog.Logger) (*Bank, []error) {
	if log == nil {
		log = slog.Default()
	}
	b := &Bank{
		recognizers: make(map[string]Recognizer, len(languages)),
		log:         log,
	}

	var loadErrs []error
	for _, lang := range languages {
		r, err := factory(lang, sampleRate, wordsEnabled)
		if err != nil {
			loadErr := &captionerr.ModelLoadError{Language: lang, Err: err}
			log.Warn("recognizer: model load failed", "language", lang, "error", err)
			loadErrs = append(loadErrs, loadErr)
			continue
		}
		b.recognizers[lang] = r
	}

	if len(b.recognizers) == 0 {
		return nil, append(loadErrs, errors.New("recognizer: no language models loaded"))
	}
	return b, loadErrs
}

// Get returns the recognizer handle for lang, or false if lang was never
// loaded.
func (b *Bank) Get(lang string) (Recognizer, bool) {
	r, ok := b.recognizers[lang]
	return r, ok
}

// Languages returns the set of successfully loaded language codes.
func (b *Bank) Languages() []string {
	out := make([]string, 0, len(b.recognizers))
	for lang := range b.recognizers {
		out = append(out, lang)
	}
	return out
}

// Reset clears the named language's recognizer accumulation, or every
// loaded language if lang is empty.
func (b *Bank) Reset(lang string) error {
	if lang == "" {
		for l, r := range b.recognizers {
			if err := r.Reset(); err != nil {
				return fmt.Errorf("recognizer: reset %q: %w", l, err)
			}
		}
		return nil
	}
	r, ok := b.recognizers[lang]
	if !ok {
		return &captionerr.CommandError{Kind: captionerr.UnknownLanguage, Detail: lang}
	}
	return r.Reset()
}

// Close releases every loaded recognizer's resources.
func (b *Bank) Close() error {
	var errs []error
	for lang, r := range b.recognizers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recognizer: close %q: %w", lang, err))
		}
	}
	return errors.Join(errs...)
}
