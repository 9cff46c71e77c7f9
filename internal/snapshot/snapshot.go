// Package snapshot publishes the current configuration registry to concurrent
// readers. Registries are never mutated; a reload builds a fresh one and swaps
// the pointer, so readers never take a lock.
package snapshot

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aode/aode/internal/config"
)

// ErrNoRegistry is returned when a Holder is created without a registry.
var ErrNoRegistry = errors.New("snapshot: registry is required")

// Builder constructs a fully validated registry.
type Builder func() (*config.Registry, error)

// Holder keeps the most recently published registry.
type Holder struct {
	current atomic.Pointer[config.Registry]
	reload  sync.Mutex
}

// New publishes reg as the initial registry.
func New(reg *config.Registry) (*Holder, error) {
	if reg == nil {
		return nil, ErrNoRegistry
	}
	h := &Holder{}
	h.current.Store(reg)
	return h, nil
}

// Current returns the published registry.
func (h *Holder) Current() *config.Registry {
	return h.current.Load()
}

// Reload builds a replacement registry and publishes it only if construction
// succeeds; on failure the previous registry stays in place and the build
// error is returned. Concurrent reloads are serialised.
func (h *Holder) Reload(build Builder) error {
	h.reload.Lock()
	defer h.reload.Unlock()

	reg, err := build()
	if err != nil {
		return err
	}
	if reg == nil {
		return ErrNoRegistry
	}
	h.current.Store(reg)
	return nil
}
