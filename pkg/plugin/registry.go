// Package plugin is a registry of recognizer backends, adapted from the
// teacher's pkg/plugin/registry.go: generalized from the teacher's
// {stt,tts,llm,vad} kinds down to a single "recognizer" kind keyed by
// backend name, since this spec has exactly one pluggable concern.
//
// Backend packages (whisperhttp, openaiwhisper) register themselves from
// an init() function; callers resolve a backend by name and a small
// string-keyed config instead of importing the backend package directly.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"livecaption-go/pkg/recognizer"
)

// Builder constructs a recognizer.Factory from a resolved configuration
// (e.g. a server URL or API key read from the environment or config file).
type Builder func(cfg map[string]string) (recognizer.Factory, error)

type registry struct {
	mu       sync.RWMutex
	backends map[string]Builder
}

var global = &registry{backends: make(map[string]Builder)}

// Register adds a backend to the global registry under name. Panics if
// name is already registered — this is only ever called from package
// init(), so a collision is a build-time programming error, not a runtime
// condition to recover from.
func Register(name string, b Builder) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if _, exists := global.backends[name]; exists {
		panic(fmt.Sprintf("plugin: recognizer backend %q already registered", name))
	}
	global.backends[name] = b
}

// Get returns the named backend's Builder, or false if no backend was
// registered under that name.
func Get(name string) (Builder, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	b, ok := global.backends[name]
	return b, ok
}

// Names returns every registered backend name, sorted.
func Names() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	names := make([]string, 0, len(global.backends))
	for name := range global.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
