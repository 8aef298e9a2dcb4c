// Package captioner wires together AudioSource, RecognizerBank,
// LanguageDetector, CaptionProcessor, ControlPlane, and DispatchLoop into
// one runnable unit, the way live_captioner_modular.py's LiveCaptioner
// orchestrates its own subsystems. There is exactly one Coordinator per
// running process; nothing here is a package-level global.
package captioner

import (
	"context"
	"fmt"
	"log/slog"

	"livecaption-go/internal/config"
	"livecaption-go/pkg/audio"
	"livecaption-go/pkg/caption"
	"livecaption-go/pkg/captionerr"
	"livecaption-go/pkg/control"
	"livecaption-go/pkg/detector"
	"livecaption-go/pkg/dispatch"
	"livecaption-go/pkg/recognizer"
)

// Coordinator owns every subsystem for one captioning session.
type Coordinator struct {
	cfg *config.Config
	log *slog.Logger

	Source    *audio.Source
	Bank      *recognizer.Bank
	Detector  *detector.Detector
	Processor *caption.Processor
	Loop      *dispatch.Loop
	Control   *control.Plane

	cancel context.CancelFunc
	done   chan error
}

// New constructs every subsystem from cfg, loading one recognizer per
// configured language via factory. It does not start capture; call Run
// for that.
func New(cfg *config.Config, factory recognizer.Factory, log *slog.Logger) (*Coordinator, error) {
	if log == nil {
		log = slog.Default()
	}

	bank, loadErrs := recognizer.New(cfg.LanguageCodes(), cfg.Audio.SampleRate, cfg.Processing.EnableWordTimestamps, factory, log)
	if bank == nil {
		return nil, fmt.Errorf("captioner: %w", combine(loadErrs))
	}
	for _, e := range loadErrs {
		log.Warn("captioner: language model failed to load", "error", e)
	}

	src, err := audio.New(
		audio.WithSampleRate(cfg.Audio.SampleRate),
		audio.WithFrameSamples(cfg.Audio.ChunkSize),
		audio.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("captioner: %w", err)
	}

	det := detector.New(bank.Languages(), cfg.Processing.LanguageDetectionThreshold)
	proc := caption.New(bank.Languages(),
		caption.WithHistoryLimit(cfg.UI.HistoryLimit),
		caption.WithConfidenceThreshold(cfg.Audio.ConfidenceThreshold),
		caption.WithLogger(log),
	)
	loop := dispatch.New(bank, det, proc,
		dispatch.WithDetectionThreshold(cfg.Processing.LanguageDetectionThreshold),
		dispatch.WithInitialFinalizationThreshold(cfg.Processing.InitialFinalizationThreshold),
		dispatch.WithLogger(log),
	)
	plane := control.New(loop, det, proc, src, bank, log)

	return &Coordinator{
		cfg:       cfg,
		log:       log,
		Source:    src,
		Bank:      bank,
		Detector:  det,
		Processor: proc,
		Loop:      loop,
		Control:   plane,
	}, nil
}

func combine(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("no languages loaded")
	}
	return errs[len(errs)-1]
}

// Run starts audio capture and the dispatch loop, and blocks until ctx is
// cancelled or the dispatch loop exits. Call Shutdown from another
// goroutine (or cancel ctx directly) to stop it cooperatively.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Source.Start(); err != nil {
		return fmt.Errorf("captioner: start audio: %w", err)
	}
	defer c.Source.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	err := c.Loop.Run(runCtx, c.Source.Frames())
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Shutdown requests a cooperative stop of the running dispatch loop.
// Safe to call before Run, in which case it is a no-op.
func (c *Coordinator) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Close releases every subsystem's resources. Call after Run returns.
func (c *Coordinator) Close() error {
	var errs []error
	if err := c.Source.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Bank.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("captioner: close: %v", errs)
}

// IsFatal reports whether err should terminate the process per the
// taxonomy in captionerr.
func IsFatal(err error) bool {
	return captionerr.IsFatal(err)
}
