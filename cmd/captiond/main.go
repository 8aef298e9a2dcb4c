// Command captiond runs the live-captioning pipeline: it loads a YAML
// config, wires up audio capture, recognizer backends, language
// detection, and caption processing, and exposes them over a CLI and an
// optional stdin/stdout JSON bridge for a host UI.
package main

import (
	"os"

	"livecaption-go/cmd/captiond/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
