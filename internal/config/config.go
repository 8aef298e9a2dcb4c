// Package config provides the YAML configuration schema, loader, and
// validator for the live-captioning pipeline.
package config

import "strings"

// Config is the root configuration structure, loaded from a YAML file
// using [Load] or [LoadFromReader].
type Config struct {
	Audio      AudioConfig          `yaml:"audio"`
	Processing ProcessingConfig     `yaml:"processing"`
	Languages  map[string]string    `yaml:"languages"`
	UI         UIConfig             `yaml:"ui"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// AudioConfig holds capture-device and mixed audio/display settings.
type AudioConfig struct {
	// SampleRate is the mono capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the number of capture channels. Only 1 (mono) is
	// supported by AudioSource.
	Channels int `yaml:"channels"`

	// ChunkSize is the number of samples per captured frame.
	ChunkSize int `yaml:"chunk_size"`

	// ConfidenceThreshold is the initial per-word confidence cutoff below
	// which a word is excluded from a finalized caption. Live-mutable at
	// runtime via ControlPlane; this value only seeds the initial state.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ProcessingConfig holds dispatch-loop and detector tuning values.
type ProcessingConfig struct {
	// InitialFinalizationThreshold is the word count at or below which an
	// in-progress partial is shown as "..." instead of its text.
	InitialFinalizationThreshold int `yaml:"initial_finalization_threshold"`

	// LongSentenceThreshold is part of the configuration surface only: no
	// component reads it, and Validate does not check it.
	LongSentenceThreshold int `yaml:"long_sentence_threshold"`

	// EnableWordTimestamps asks recognizer backends to report per-word
	// start/end times where the backend is capable of it.
	EnableWordTimestamps bool `yaml:"enable_word_timestamps"`

	// LanguageDetectionThreshold is the minimum detector confidence at
	// which the dispatch loop's routing set narrows below "all
	// languages".
	LanguageDetectionThreshold float64 `yaml:"language_detection_threshold"`
}

// UIConfig holds presentation-layer settings consumed by caption.Processor.
type UIConfig struct {
	// HistoryLimit is the bounded-FIFO capacity per language.
	HistoryLimit int `yaml:"history_limit"`
}

// LoggingConfig holds the logging settings. They are decoded and
// validated only: captiond's logger writes to stderr at info level
// regardless of these values, and no log file is written.
type LoggingConfig struct {
	// Level names a verbosity. Valid values: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// ToFile requests file logging; Validate warns when it is set without
	// FilePath.
	ToFile bool `yaml:"to_file"`

	// FilePath is the log file path paired with ToFile.
	FilePath string `yaml:"file_path"`
}

// LanguageCodes returns the language codes configured under languages,
// derived by stripping the "_model" suffix from each key (e.g. "en_model"
// -> "en"). ModelPath looks up the filesystem path for a given code.
func (c *Config) LanguageCodes() []string {
	codes := make([]string, 0, len(c.Languages))
	for key := range c.Languages {
		codes = append(codes, strings.TrimSuffix(key, "_model"))
	}
	return codes
}

// ModelPath returns the configured model path for language code lang
// (e.g. "en" looks up the "en_model" key), and whether it was found.
func (c *Config) ModelPath(lang string) (string, bool) {
	path, ok := c.Languages[lang+"_model"]
	return path, ok
}

// Default values applied where the YAML document leaves a field at its
// zero value.
const (
	DefaultSampleRate                  = 16000
	DefaultChannels                    = 1
	DefaultChunkSize                   = 1024
	DefaultConfidenceThreshold         = 0.5
	DefaultInitialFinalizationThreshold = 4
	DefaultLongSentenceThreshold       = 10
	DefaultLanguageDetectionThreshold  = 0.6
	DefaultHistoryLimit                = 100
)

// applyDefaults fills zero-valued fields with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.ChunkSize == 0 {
		cfg.Audio.ChunkSize = DefaultChunkSize
	}
	if cfg.Audio.ConfidenceThreshold == 0 {
		cfg.Audio.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.Processing.InitialFinalizationThreshold == 0 {
		cfg.Processing.InitialFinalizationThreshold = DefaultInitialFinalizationThreshold
	}
	if cfg.Processing.LongSentenceThreshold == 0 {
		cfg.Processing.LongSentenceThreshold = DefaultLongSentenceThreshold
	}
	if cfg.Processing.LanguageDetectionThreshold == 0 {
		cfg.Processing.LanguageDetectionThreshold = DefaultLanguageDetectionThreshold
	}
	if cfg.UI.HistoryLimit == 0 {
		cfg.UI.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
