package loader

import (
	"sync"

	"github.com/connectorhost/connectorhost/internal/spi"
)

// Registrar is the compile-time substitute for the dynamic module loading
// the manifest format was designed around: a manifest's "entry" and
// "config" fields name entries in this map instead of file paths to load
// at runtime. A connector package registers into it from an init() func,
// reached through a blank import of that package, the compile-time
// connector composition pattern this host prefers over a plugin ABI.
// cmd/connectorhost blank-imports no connector package, so DefaultRegistrar
// starts empty there.
type Registrar struct {
	mu        sync.RWMutex
	factories map[string]spi.Factory
	builders  map[string]spi.ConfigBuilder
}

// DefaultRegistrar is the process-wide registrar connector packages
// register against.
var DefaultRegistrar = NewRegistrar()

// NewRegistrar creates an empty Registrar.
func NewRegistrar() *Registrar {
	return &Registrar{
		factories: make(map[string]spi.Factory),
		builders:  make(map[string]spi.ConfigBuilder),
	}
}

// RegisterEntry associates a factory with the entry name a manifest
// references.
func (r *Registrar) RegisterEntry(name string, factory spi.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// RegisterConfig associates a config builder with the config name a
// manifest references.
func (r *Registrar) RegisterConfig(name string, builder spi.ConfigBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// Entry looks up a factory by entry name.
func (r *Registrar) Entry(name string) (spi.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Config looks up a config builder by config name.
func (r *Registrar) Config(name string) (spi.ConfigBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

// RegisterEntry registers factory in the default registrar.
func RegisterEntry(name string, factory spi.Factory) {
	DefaultRegistrar.RegisterEntry(name, factory)
}

// RegisterConfig registers builder in the default registrar.
func RegisterConfig(name string, builder spi.ConfigBuilder) {
	DefaultRegistrar.RegisterConfig(name, builder)
}
