// Package registry implements the connector registry: factories and
// config builders keyed by (type, version), and the id -> instance map
// that backs every Facade lookup.
package registry

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

// Registry owns every ConnectorInstance for the process lifetime and the
// versioned factories/config builders used to build them.
type Registry struct {
	mu             sync.RWMutex
	factories      map[string]spi.Factory
	configBuilders map[string]spi.ConfigBuilder
	instances      map[string]*spi.ConnectorInstance
	versions       map[string][]*semver.Version
	log            *zap.Logger
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories:      make(map[string]spi.Factory),
		configBuilders: make(map[string]spi.ConfigBuilder),
		instances:      make(map[string]*spi.ConnectorInstance),
		versions:       make(map[string][]*semver.Version),
		log:            logger.With(zap.String("component", "registry")),
	}
}

// RegisterFactory registers a connector factory under (type, version). A
// (type, version) pair may have at most one factory.
func (r *Registry) RegisterFactory(connType, version string, factory spi.Factory) error {
	key := spi.ConnectorKey{Type: connType, Version: version}.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return cherrors.Newf(cherrors.ErrorTypeConfigInvalid, "factory already registered for %s", key)
	}

	sv, err := semver.NewVersion(version)
	if err != nil {
		return cherrors.Wrapf(err, cherrors.ErrorTypeConfigInvalid, "invalid semver %q for type %q", version, connType)
	}

	r.factories[key] = factory
	r.versions[connType] = append(r.versions[connType], sv)
	sort.Sort(semver.Collection(r.versions[connType]))

	r.log.Info("factory registered", zap.String("type", connType), zap.String("version", version))
	return nil
}

// RegisterConfigBuilder registers the config builder for (type, version).
func (r *Registry) RegisterConfigBuilder(connType, version string, builder spi.ConfigBuilder) {
	key := spi.ConnectorKey{Type: connType, Version: version}.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configBuilders[key] = builder
}

// InitInstance builds and stores a ConnectorInstance: it locates the
// factory, runs the config builder (if any) against rawConfig, validates
// the effective config (if it implements spi.Validator), invokes the
// factory, and stores the result under id.
func (r *Registry) InitInstance(id, connType, version string, rawConfig map[string]interface{}) (*spi.ConnectorInstance, error) {
	key := spi.ConnectorKey{Type: connType, Version: version}.String()

	r.mu.RLock()
	factory, hasFactory := r.factories[key]
	builder, hasBuilder := r.configBuilders[key]
	r.mu.RUnlock()

	if !hasFactory {
		return nil, cherrors.Newf(cherrors.ErrorTypeUnknownConnectorType, "no factory registered for %s", key)
	}

	var effective spi.Config = rawConfig
	if hasBuilder {
		built, err := builder(rawConfig)
		if err != nil {
			return nil, cherrors.Wrapf(err, cherrors.ErrorTypeConfigInvalid, "config builder failed for instance %q", id)
		}
		effective = built
	}

	if validator, ok := effective.(spi.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, cherrors.Wrapf(err, cherrors.ErrorTypeConfigInvalid, "config validation failed for instance %q", id)
		}
	}

	impl, err := factory(spi.FactoryArgs{
		InstanceID:       id,
		ConnectorID:      connType,
		ConnectorVersion: version,
		Config:           effective,
	})
	if err != nil {
		return nil, cherrors.Wrapf(err, cherrors.ErrorTypeBackendError, "factory failed for instance %q", id)
	}

	instance := &spi.ConnectorInstance{
		ID:     id,
		Key:    spi.ConnectorKey{Type: connType, Version: version},
		Config: effective,
		Impl:   impl,
	}

	r.mu.Lock()
	r.instances[id] = instance
	r.mu.Unlock()

	r.log.Info("instance initialized", zap.String("id", id), zap.String("type", connType), zap.String("version", version))
	return instance, nil
}

// Register stores an already-built ConnectorInstance directly, bypassing
// factory invocation. Used for explicit/hot registration.
func (r *Registry) Register(instance *spi.ConnectorInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[instance.ID] = instance
}

// Get returns the instance for id, or ConnectorNotFound.
func (r *Registry) Get(id string) (*spi.ConnectorInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.instances[id]
	if !ok {
		return nil, cherrors.Newf(cherrors.ErrorTypeConnectorNotFound, "connector instance %q not found", id)
	}
	return instance, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[id]
	return ok
}

// Keys returns every registered (type, version) factory key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IDs returns every registered instance id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns every registered instance.
func (r *Registry) List() []*spi.ConnectorInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*spi.ConnectorInstance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// GetVersions returns every registered version for connType, ascending.
func (r *Registry) GetVersions(connType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[connType]
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Original())
	}
	return out
}

// GetLatestVersion returns the maximum registered version for connType, or
// "" if none is registered.
func (r *Registry) GetLatestVersion(connType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[connType]
	if len(versions) == 0 {
		return ""
	}
	return versions[len(versions)-1].Original()
}
