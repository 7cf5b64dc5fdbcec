// Package loader walks a directory of per-connector manifests, resolves
// each manifest's factory and config builder through the compile-time
// Registrar, and materializes declared instances against a registry.Registry.
package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/connector/registry"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

var envVarPattern = regexp.MustCompile(`^\$\{([A-Z0-9_]+)\}$`)

// ManifestInstance is one declared instance entry within a manifest.
type ManifestInstance struct {
	ID               string                 `json:"id"`
	Config           map[string]interface{} `json:"config,omitempty"`
	ConnectorVersion string                 `json:"connectorVersion,omitempty"`
}

// Manifest is the decoded shape of a connector's manifest.json. Config
// names an entry in the Registrar's config builders, standing in for the
// relative path to a dynamically-loaded config module in the source
// design; when it resolves to nothing, instance configs pass through
// unbuilt.
type Manifest struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Version   string             `json:"version"`
	Entry     string             `json:"entry"`
	Config    string             `json:"config,omitempty"`
	Instances []ManifestInstance `json:"instances,omitempty"`
}

// Result summarizes a Load call for callers and tests.
type Result struct {
	ManifestsLoaded    int
	ManifestsSkipped   int
	InstancesInit      int
	InstancesFailed    int
}

// Load walks dir, treating each subdirectory containing a manifest.json as
// one connector. Invalid manifests are skipped with a warning; one
// manifest's or instance's failure never aborts the loading of others.
func Load(dir string, reg *registry.Registry, registrar *Registrar) (*Result, error) {
	log := logger.With(zap.String("component", "loader"))
	result := &Result{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		subdir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(subdir, "manifest.json")

		manifest, err := readManifest(manifestPath)
		if err != nil {
			log.Warn("skipping invalid manifest", zap.String("path", manifestPath), zap.Error(err))
			result.ManifestsSkipped++
			continue
		}

		if err := loadManifest(subdir, manifest, reg, registrar, log); err != nil {
			log.Warn("skipping manifest after load error", zap.String("path", manifestPath), zap.Error(err))
			result.ManifestsSkipped++
			continue
		}

		result.ManifestsLoaded++
		initialized, failed := materializeInstances(manifest, reg, log)
		result.InstancesInit += initialized
		result.InstancesFailed += failed
	}

	return result, nil
}

func readManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	if m.ID == "" || m.Type == "" || m.Version == "" || m.Entry == "" {
		return nil, errMissingField
	}

	return &m, nil
}

func loadManifest(subdir string, manifest *Manifest, reg *registry.Registry, registrar *Registrar, log *zap.Logger) error {
	factory, ok := registrar.Entry(manifest.Entry)
	if !ok {
		return errUnknownEntry
	}

	if err := reg.RegisterFactory(manifest.Type, manifest.Version, factory); err != nil {
		return err
	}

	if manifest.Config != "" {
		if builder, ok := registrar.Config(manifest.Config); ok {
			reg.RegisterConfigBuilder(manifest.Type, manifest.Version, builder)
		}
	}

	if len(manifest.Instances) == 0 {
		log.Warn("manifest declares no instances", zap.String("type", manifest.Type), zap.String("dir", subdir))
	}

	return nil
}

func materializeInstances(manifest *Manifest, reg *registry.Registry, log *zap.Logger) (initialized, failed int) {
	for _, inst := range manifest.Instances {
		version := manifest.Version
		if inst.ConnectorVersion != "" {
			version = inst.ConnectorVersion
		}

		resolved, err := substituteEnv(inst.Config)
		if err != nil {
			log.Warn("instance env substitution failed", zap.String("id", inst.ID), zap.Error(err))
			failed++
			continue
		}

		if _, err := reg.InitInstance(inst.ID, manifest.Type, version, resolved); err != nil {
			log.Warn("instance initialization failed", zap.String("id", inst.ID), zap.Error(err))
			failed++
			continue
		}

		initialized++
	}
	return initialized, failed
}

// substituteEnv recursively replaces any string value of the form
// ${ENV_NAME} with the corresponding environment variable, failing if the
// variable is unset.
func substituteEnv(value map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(value))
	for k, v := range value {
		resolved, err := substituteEnvValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func substituteEnvValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if m := envVarPattern.FindStringSubmatch(val); m != nil {
			envValue, ok := os.LookupEnv(m[1])
			if !ok {
				return nil, errUnsetEnvVar(m[1])
			}
			return envValue, nil
		}
		return val, nil
	case map[string]interface{}:
		return substituteEnv(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := substituteEnvValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return val, nil
	}
}
