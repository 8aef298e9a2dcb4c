// Package control implements the ControlPlane: the single mutex-guarded
// command surface through which the host thread (CLI, IPC bridge, or
// embedding application) mutates dispatch/detector/caption state without
// taking on the dispatch loop's own concurrency concerns.
//
// Every exported method here is safe to call from any goroutine; none of
// them block on recognizer I/O. SelectDevice waits while the capture
// stream is stopped and the new device is opened.
package control

import (
	"log/slog"
	"sync"

	"livecaption-go/pkg/audio"
	"livecaption-go/pkg/caption"
	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/detector"
	"livecaption-go/pkg/dispatch"
	"livecaption-go/pkg/recognizer"
)

// Plane is the command surface. It holds no recognizer/audio ownership
// itself — it only forwards validated commands to the subsystems that do.
type Plane struct {
	mu sync.Mutex

	loop      *dispatch.Loop
	detector  *detector.Detector
	processor *caption.Processor
	source    *audio.Source
	bank      *recognizer.Bank
	log       *slog.Logger
}

// New constructs a Plane over the given subsystems. Any may be nil in
// tests that only exercise a subset of commands.
func New(loop *dispatch.Loop, det *detector.Detector, proc *caption.Processor, src *audio.Source, bank *recognizer.Bank, log *slog.Logger) *Plane {
	if log == nil {
		log = slog.Default()
	}
	return &Plane{loop: loop, detector: det, processor: proc, source: src, bank: bank, log: log}
}

// SetActiveLanguages changes which languages the dispatch loop routes
// audio to. An empty slice restores "all loaded languages". If langs is
// non-empty but none name a loaded language, the active set is left
// unchanged and a *captionerr.CommandError{Kind: UnknownLanguage} is
// returned.
func (p *Plane) SetActiveLanguages(langs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loop.SetActiveLanguages(langs); err != nil {
		return err
	}
	p.log.Info("control: active languages changed", "languages", langs)
	return nil
}

// ForceLanguage pins detection to lang until ResetLanguageDetection is
// called. Returns a *captionerr.CommandError{UnknownLanguage} if lang is
// not a candidate language.
func (p *Plane) ForceLanguage(lang string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok := p.detector.Force(lang); !ok {
		return &captionerr.CommandError{Kind: captionerr.UnknownLanguage, Detail: lang}
	}
	p.log.Info("control: language forced", "language", lang)
	return nil
}

// ResetLanguageDetection clears any override and the detector's sliding
// windows, returning it to the unknown state.
func (p *Plane) ResetLanguageDetection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detector.Reset()
	p.log.Info("control: language detection reset")
}

// SelectDevice switches the active capture device. The audio stream is
// stopped and restarted against the new device; on failure the previous
// stream is not resurrected, mirroring audio.Source.Select's contract.
func (p *Plane) SelectDevice(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.source.Select(index); err != nil {
		return err
	}
	p.log.Info("control: device selected", "index", index)
	return nil
}

// ListDevices returns the available capture devices.
func (p *Plane) ListDevices() ([]audio.DeviceInfo, error) {
	return audio.ListDevices()
}

// ClearHistory clears one language's caption history, or every language's
// if lang is empty.
func (p *Plane) ClearHistory(lang string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processor.ClearHistory(lang)
}

// SetConfidenceThreshold live-updates the caption processor's per-word
// confidence cutoff.
func (p *Plane) SetConfidenceThreshold(t float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processor.SetConfidenceThreshold(t)
}

// Status is a point-in-time snapshot of every subsystem's state, matching
// spec.md's status() -> {running, current_device, loaded_languages,
// active_languages, detection_state, per_language_stats}.
type Status struct {
	Running         bool
	CurrentDevice   string
	LoadedLanguages []string
	ActiveLanguages []string
	Detector        detector.Stats
	PerLanguageStats map[string]caption.ConfidenceStats
}

// Status returns a consistent snapshot across the audio source, recognizer
// bank, dispatch loop, detector and caption processor. source/bank may be
// nil in tests that only exercise a subset of commands; Running/
// CurrentDevice/LoadedLanguages report their zero values in that case.
func (p *Plane) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var running bool
	var device string
	if p.source != nil {
		running = p.source.IsRunning()
		device = p.source.CurrentDevice()
	}

	var loaded []string
	if p.bank != nil {
		loaded = p.bank.Languages()
	}
	perLang := make(map[string]caption.ConfidenceStats, len(loaded))
	for _, lang := range loaded {
		perLang[lang] = p.processor.ConfidenceStatistics(lang)
	}

	return Status{
		Running:          running,
		CurrentDevice:    device,
		LoadedLanguages:  loaded,
		ActiveLanguages:  p.loop.ActiveLanguages(),
		Detector:         p.detector.Statistics(),
		PerLanguageStats: perLang,
	}
}

// Snapshot returns the current caption history/preview for one language.
func (p *Plane) Snapshot(lang string) caption.Snapshot {
	return p.processor.Snapshot(lang)
}

// Changed returns a channel that signals whenever any language's caption
// state changes, for a bridge loop to wait on instead of polling on a
// timer.
func (p *Plane) Changed() <-chan struct{} {
	return p.processor.Changed()
}
