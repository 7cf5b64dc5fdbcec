// Package config loads the connector host's process-level settings: the
// remote session's OAuth and WebSocket endpoints, the connectors
// directory to load manifests from, and logger options.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

// HostConfig is the effective process configuration, read from the
// environment (and optionally a local .env file) via viper.
type HostConfig struct {
	ConnectorsDir string

	RemoteConnectorWSURL string
	OAuthTokenURL        string
	OAuthClientID        string
	OAuthClientSecret    string
	OAuthScope           string
	OAuthAudience        string
	OAuthResource        string

	LogLevel    string
	LogEncoding string

	MetricsAddr string
}

// Load reads HostConfig from the environment. A local .env file is loaded
// first if present, so values set there are visible to viper's
// AutomaticEnv lookups. connectorsFlag, when non-empty, overrides
// CONNECTORS_DIR (the --connectors CLI flag takes precedence).
func Load(connectorsFlag string) (*HostConfig, error) {
	_ = godotenv.Load() // ignore error if .env doesn't exist

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("CONNECTORS_DIR", "./connectors")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")
	v.SetDefault("METRICS_ADDR", ":9090")

	cfg := &HostConfig{
		ConnectorsDir: v.GetString("CONNECTORS_DIR"),

		RemoteConnectorWSURL: v.GetString("REMOTE_CONNECTOR_WS_URL"),
		OAuthTokenURL:        v.GetString("OAUTH_TOKEN_URL"),
		OAuthClientID:        v.GetString("OAUTH_CLIENT_ID"),
		OAuthClientSecret:    v.GetString("OAUTH_CLIENT_SECRET"),
		OAuthScope:           v.GetString("OAUTH_SCOPE"),
		OAuthAudience:        v.GetString("OAUTH_AUDIENCE"),
		OAuthResource:        v.GetString("OAUTH_RESOURCE"),

		LogLevel:    v.GetString("LOG_LEVEL"),
		LogEncoding: v.GetString("LOG_ENCODING"),

		MetricsAddr: v.GetString("METRICS_ADDR"),
	}

	if connectorsFlag != "" {
		cfg.ConnectorsDir = connectorsFlag
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *HostConfig) validate() error {
	missing := []string{}
	if c.RemoteConnectorWSURL == "" {
		missing = append(missing, "REMOTE_CONNECTOR_WS_URL")
	}
	if c.OAuthTokenURL == "" {
		missing = append(missing, "OAUTH_TOKEN_URL")
	}
	if c.OAuthClientID == "" {
		missing = append(missing, "OAUTH_CLIENT_ID")
	}
	if c.OAuthClientSecret == "" {
		missing = append(missing, "OAUTH_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return cherrors.Newf(cherrors.ErrorTypeConfigInvalid, "missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
