// Package pluginloader instantiates a plugin from a (class-path,
// parameters) descriptor, against a compile-time registry populated by
// each plugin package's init().
package pluginloader

import (
	"fmt"
	"strings"
	"sync"
)

// Descriptor is the configuration-level description of a plugin instance.
type Descriptor struct {
	Class  string                 `yaml:"plugin"`
	Params map[string]interface{} `yaml:"params"`
}

// PluginError reports a misconfiguration in a plugin descriptor, as
// opposed to an error raised by the plugin's own constructor.
type PluginError struct {
	Class  string
	Reason string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %q: %s", e.Class, e.Reason)
}

// Constructor builds a plugin instance from its descriptor's parameters.
// Parameters are passed verbatim; a Constructor performs no coercion
// beyond what it chooses to do for its own recognized options.
type Constructor func(params map[string]interface{}) (interface{}, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register associates a "package.Class"-shaped class path with a
// constructor. Plugin packages call this from an init() function. It
// panics on a duplicate registration, which is a programming error caught
// at process startup, not a runtime condition.
func Register(class string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[class]; exists {
		panic(fmt.Sprintf("pluginloader: class %q already registered", class))
	}
	registry[class] = ctor
}

// New instantiates the plugin named by desc.Class with desc.Params.
func New(desc Descriptor) (interface{}, error) {
	if !strings.Contains(desc.Class, ".") {
		return nil, &PluginError{Class: desc.Class, Reason: "class path missing a package/module separator"}
	}

	mu.RLock()
	ctor, ok := registry[desc.Class]
	mu.RUnlock()
	if !ok {
		return nil, &PluginError{Class: desc.Class, Reason: "class not registered"}
	}

	instance, err := ctor(desc.Params)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: constructor failed: %w", desc.Class, err)
	}
	return instance, nil
}

// Registered reports whether class has a registered constructor, for
// tests and for config validation at startup.
func Registered(class string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[class]
	return ok
}
