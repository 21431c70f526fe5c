// Package encoder defines the frame serializers and the registry that builds
// them by name.
package encoder

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/nfcsniff/internal/core"
)

// Flags are the session output flags every encoder honours.
type Flags struct {
	StartTimestamp bool
	EndTimestamp   bool
	Parity         bool
}

// Target is where an encoder writes: the session buffer, the relay link or
// the console.
type Target struct {
	W     io.Writer
	Flags Flags
}

// Encoder serializes frames. HandleFrame is called from the capture loop and
// must not block beyond a synchronous write to the target.
type Encoder interface {
	Name() string
	Open(t Target) error
	HandleFrame(f *core.Frame) error
	Close() error
}

// Factory builds an encoder from its option map.
type Factory func(options map[string]interface{}) (Encoder, error)

// Registry maps encoder names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("encoder '%s' already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Create builds a new encoder instance.
func (r *Registry) Create(name string, options map[string]interface{}) (Encoder, error) {
	r.mu.RLock()
	f, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrEncoderNotFound, name)
	}
	e, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("encoder '%s': %w", name, err)
	}
	return e, nil
}

// Names lists registered encoders in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the registry the built-in encoders register with.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the default registry.
func Register(name string, f Factory) error {
	return defaultRegistry.Register(name, f)
}

// Create builds an encoder from the default registry.
func Create(name string, options map[string]interface{}) (Encoder, error) {
	return defaultRegistry.Create(name, options)
}

// Names lists the encoders of the default registry.
func Names() []string {
	return defaultRegistry.Names()
}

// DecodeOptions decodes an option map into a mapstructure-tagged struct.
// Unknown keys are rejected.
func DecodeOptions(options map[string]interface{}, out interface{}) error {
	if len(options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: encoder options: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
