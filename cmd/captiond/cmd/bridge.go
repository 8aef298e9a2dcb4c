package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"livecaption-go/pkg/captioner"
)

// bridgeMessage is one JSON line emitted to stdout for a host UI to
// consume, mirroring the original Electron bridge's {"type": ...} shape.
type bridgeMessage struct {
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	IsFinal    bool      `json:"is_final,omitempty"`
	Language   string    `json:"language,omitempty"`
	Confidence []float64 `json:"confidence,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// bridgeCommand is one JSON line read from stdin, mirroring the original
// Electron bridge's {"command": ...} shape.
type bridgeCommand struct {
	Command    string   `json:"command"`
	Languages  []string `json:"languages,omitempty"`
	Language   string   `json:"language,omitempty"`
	Index      int      `json:"index,omitempty"`
	Threshold  float64  `json:"threshold,omitempty"`
}

// runHostBridge reads commands from stdin and writes caption/status events
// to stdout as JSON lines, so a host UI can drive captiond as a
// subprocess instead of (or alongside) the CLI. It wakes only when
// caption.Processor.Changed signals an update, never polling on a fixed
// timer.
func runHostBridge(ctx context.Context, coord *captioner.Coordinator, log *slog.Logger) {
	go bridgeStdinListener(ctx, coord, log)

	emitJSON(bridgeMessage{Type: "status", Message: "ready"})

	seen := make(map[string]int)
	changed := coord.Control.Changed()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			pollCaptions(coord, seen)
		}
	}
}

func pollCaptions(coord *captioner.Coordinator, seen map[string]int) {
	for _, lang := range coord.Loop.ActiveLanguages() {
		snap := coord.Control.Snapshot(lang)

		for i := seen[lang]; i < len(snap.History); i++ {
			entry := snap.History[i]
			confidences := make([]float64, len(entry.FilteredWords))
			for j, w := range entry.FilteredWords {
				confidences[j] = w.Confidence
			}
			emitJSON(bridgeMessage{
				Type: "transcription", Text: entry.FilteredText, IsFinal: true,
				Language: lang, Confidence: confidences,
			})
		}
		seen[lang] = len(snap.History)

		if snap.Preview != nil {
			emitJSON(bridgeMessage{
				Type: "transcription", Text: snap.Preview.FilteredText, IsFinal: false,
				Language: lang,
			})
		}
	}
}

func emitJSON(msg bridgeMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

// bridgeStdinListener processes host-issued commands line by line until
// ctx is cancelled or stdin closes.
func bridgeStdinListener(ctx context.Context, coord *captioner.Coordinator, log *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var cmd bridgeCommand
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			log.Warn("bridge: failed to decode stdin command", "error", err)
			continue
		}

		if err := dispatchBridgeCommand(coord, cmd); err != nil {
			log.Warn("bridge: command failed", "command", cmd.Command, "error", err)
		}
	}
}

func dispatchBridgeCommand(coord *captioner.Coordinator, cmd bridgeCommand) error {
	switch cmd.Command {
	case "set_languages":
		return coord.Control.SetActiveLanguages(cmd.Languages)
	case "force_language":
		return coord.Control.ForceLanguage(cmd.Language)
	case "reset_language_detection":
		coord.Control.ResetLanguageDetection()
		return nil
	case "select_device":
		return coord.Control.SelectDevice(cmd.Index)
	case "clear_history":
		return coord.Control.ClearHistory(cmd.Language)
	case "set_confidence_threshold":
		return coord.Control.SetConfidenceThreshold(cmd.Threshold)
	case "shutdown":
		coord.Shutdown()
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}
