package cmd

import (
	"fmt"
	"os"

	"livecaption-go/pkg/plugin"
	"livecaption-go/pkg/recognizer"

	// Imported for their init()-time plugin.Register side effects only.
	_ "livecaption-go/pkg/recognizer/openaiwhisper"
	_ "livecaption-go/pkg/recognizer/whisperhttp"
)

// resolveFactory picks a recognizer backend from the environment, the way
// the teacher's test CLI auto-detects an available STT provider from API
// key environment variables, then builds it through the pkg/plugin
// registry rather than importing a concrete backend package directly.
func resolveFactory() (recognizer.Factory, error) {
	if url := os.Getenv("WHISPER_SERVER_URL"); url != "" {
		return buildBackend("whisperhttp", map[string]string{"server_url": url})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return buildBackend("openaiwhisper", map[string]string{"api_key": key})
	}
	return nil, fmt.Errorf("no recognizer backend configured: set WHISPER_SERVER_URL or OPENAI_API_KEY")
}

func buildBackend(name string, cfg map[string]string) (recognizer.Factory, error) {
	b, ok := plugin.Get(name)
	if !ok {
		return nil, fmt.Errorf("recognizer backend %q is not registered", name)
	}
	return b(cfg)
}
