package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/susurrus/pkg/audio"
	"github.com/MrWong99/susurrus/pkg/synth"
)

// ErrAdapterNotRegistered is returned by Create* methods when no factory has
// been registered under the requested adapter name.
var ErrAdapterNotRegistered = errors.New("config: adapter not registered")

// Registry maps adapter names to their constructor functions for each
// adapter type. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]func(DeviceEntry) (audio.Source, error)
	sinks   map[string]func(DeviceEntry) (audio.Sink, error)
	synths  map[string]func(ProviderEntry) (synth.Synthesizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]func(DeviceEntry) (audio.Source, error)),
		sinks:   make(map[string]func(DeviceEntry) (audio.Sink, error)),
		synths:  make(map[string]func(ProviderEntry) (synth.Synthesizer, error)),
	}
}

// RegisterSource registers a capture adapter factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(DeviceEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterSink registers a playback adapter factory under name.
func (r *Registry) RegisterSink(name string, factory func(DeviceEntry) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// RegisterSynth registers a synthesis backend factory under name.
func (r *Registry) RegisterSynth(name string, factory func(ProviderEntry) (synth.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synths[name] = factory
}

// CreateSource instantiates a capture adapter using the factory registered under entry.Name.
// Returns [ErrAdapterNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSource(entry DeviceEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrAdapterNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSink instantiates a playback adapter using the factory registered under entry.Name.
func (r *Registry) CreateSink(entry DeviceEntry) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrAdapterNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynth instantiates a synthesis backend using the factory registered under entry.Name.
func (r *Registry) CreateSynth(entry ProviderEntry) (synth.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synths[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synth/%q", ErrAdapterNotRegistered, entry.Name)
	}
	return factory(entry)
}
