package config_test

import (
	"strings"
	"testing"

	"livecaption-go/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
languages:
  en_model: /models/en
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("expected default sample rate %d, got %d", config.DefaultSampleRate, cfg.Audio.SampleRate)
	}
	if cfg.UI.HistoryLimit != config.DefaultHistoryLimit {
		t.Errorf("expected default history limit %d, got %d", config.DefaultHistoryLimit, cfg.UI.HistoryLimit)
	}
	if cfg.Processing.InitialFinalizationThreshold != config.DefaultInitialFinalizationThreshold {
		t.Errorf("expected default initial finalization threshold %d, got %d",
			config.DefaultInitialFinalizationThreshold, cfg.Processing.InitialFinalizationThreshold)
	}
}

func TestLoadFromReader_RequiresAtLeastOneLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  sample_rate: 16000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing languages, got nil")
	}
	if !strings.Contains(err.Error(), "languages") {
		t.Errorf("error should mention languages, got: %v", err)
	}
}

func TestLoadFromReader_RejectsMultiChannelAudio(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  channels: 2
languages:
  en_model: /models/en
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-mono channels, got nil")
	}
	if !strings.Contains(err.Error(), "channels") {
		t.Errorf("error should mention channels, got: %v", err)
	}
}

func TestLoadFromReader_RejectsOutOfRangeConfidenceThreshold(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  confidence_threshold: 1.5
languages:
  en_model: /models/en
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range confidence_threshold, got nil")
	}
}

func TestLoadFromReader_RejectsEmptyModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
languages:
  en_model: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestLoadFromReader_RejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
languages:
  en_model: /models/en
logging:
  level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid logging.level, got nil")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error should mention logging.level, got: %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
languages:
  en_model: /models/en
unknown_top_level_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  sample_rate: 16000
  channels: 1
  chunk_size: 1024
  confidence_threshold: 0.5
processing:
  initial_finalization_threshold: 4
  language_detection_threshold: 0.6
languages:
  en_model: /models/en
  es_model: /models/es
ui:
  history_limit: 100
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Languages) != 2 {
		t.Errorf("expected 2 languages, got %d", len(cfg.Languages))
	}
}
