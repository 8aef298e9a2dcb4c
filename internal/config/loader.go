package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// validLogLevels lists the log levels accepted by logging.level.
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for any
// zero-valued field, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 (mono); got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive; got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size must be positive; got %d", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.ConfidenceThreshold < 0 || cfg.Audio.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.confidence_threshold %.2f is out of range [0,1]", cfg.Audio.ConfidenceThreshold))
	}

	if cfg.Processing.InitialFinalizationThreshold < 0 {
		errs = append(errs, fmt.Errorf("processing.initial_finalization_threshold must be >= 0; got %d", cfg.Processing.InitialFinalizationThreshold))
	}
	if cfg.Processing.LanguageDetectionThreshold < 0 || cfg.Processing.LanguageDetectionThreshold > 1 {
		errs = append(errs, fmt.Errorf("processing.language_detection_threshold %.2f is out of range [0,1]", cfg.Processing.LanguageDetectionThreshold))
	}

	if len(cfg.Languages) == 0 {
		errs = append(errs, errors.New("languages: at least one <name>_model entry is required"))
	}
	for lang, path := range cfg.Languages {
		if path == "" {
			errs = append(errs, fmt.Errorf("languages.%s is empty", lang))
		}
	}

	if cfg.UI.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("ui.history_limit must be positive; got %d", cfg.UI.HistoryLimit))
	}

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if cfg.Logging.ToFile && cfg.Logging.FilePath == "" {
		slog.Warn("logging.to_file is set but logging.file_path is empty; file logging will not start")
	}

	return errors.Join(errs...)
}
