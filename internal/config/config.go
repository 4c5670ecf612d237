// Package config loads the control-node and backend-node configuration
// from defaults, an optional YAML file, and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// EnvPrefix is the environment variable prefix both node kinds load
// configuration overrides from, e.g. DDBS_LOG_LEVEL.
const EnvPrefix = "DDBS_"

// ControlConfig is the root configuration for the control node. Shard
// topology is not configurable here: it is compile-time per the static
// sharding policy.
type ControlConfig struct {
	Listen  ListenSection  `koanf:"listen"`
	Backend BackendSection `koanf:"backend"`
	Log     LogSection     `koanf:"log"`
	Metric  MetricSection  `koanf:"metric"`
}

// ListenSection configures the control node's RPC listener.
type ListenSection struct {
	Addr string `koanf:"addr"`
}

// BackendSection lists the backend URIs the control node registers at
// startup for bootstrap convenience; a listed backend is dialed only
// when ClusterInit selects it.
type BackendSection struct {
	Uris []string `koanf:"uris"`
}

// LogSection configures structured logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricSection configures the /metrics HTTP listener.
type MetricSection struct {
	Addr string `koanf:"addr"`
}

// BackendConfig is the root configuration for a backend node.
type BackendConfig struct {
	Listen ListenSection   `koanf:"listen"`
	Dsn    string          `koanf:"dsn"`
	Load   BulkLoadSection `koanf:"bulk_load"`
	Log    LogSection      `koanf:"log"`
	Pool   ConnPoolSection `koanf:"pool"`
}

// BulkLoadSection maps base table name to the CSV file path loaded by
// BulkLoad via LOAD DATA LOCAL INFILE.
type BulkLoadSection struct {
	UserFile     string `koanf:"user_file"`
	ArticleFile  string `koanf:"article_file"`
	UserReadFile string `koanf:"user_read_file"`
}

// ConnPoolSection configures the *sql.DB connection pool.
type ConnPoolSection struct {
	MaxOpenConns int `koanf:"max_open_conns"`
	MaxIdleConns int `koanf:"max_idle_conns"`
}

// DefaultControlConfig returns the zero-value control configuration
// with sensible defaults applied before file/env overlays.
func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		Listen:  ListenSection{Addr: "0.0.0.0:7700"},
		Backend: BackendSection{Uris: nil},
		Log:     LogSection{Level: "info", Format: "json"},
		Metric:  MetricSection{Addr: "0.0.0.0:9700"},
	}
}

// DefaultBackendConfig returns the zero-value backend configuration
// with sensible defaults applied before file/env overlays.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Listen: ListenSection{Addr: "0.0.0.0:7800"},
		Log:    LogSection{Level: "info", Format: "json"},
		Pool:   ConnPoolSection{MaxOpenConns: 16, MaxIdleConns: 4},
	}
}

// Loader assembles configuration from, in increasing priority:
// defaults embedded in the target struct, an optional YAML file, and
// environment variables prefixed with EnvPrefix.
type Loader struct {
	k        *koanf.Koanf
	filePath string
}

// NewLoader creates a Loader that will read filePath if non-empty.
func NewLoader(filePath string) *Loader {
	return &Loader{
		k:        koanf.New("."),
		filePath: filePath,
	}
}

// Load overlays the file and environment sources onto target, which
// must already carry its default values (see DefaultControlConfig /
// DefaultBackendConfig).
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return ddbserrors.Wrap(ddbserrors.ConfigParse, fmt.Sprintf("load config file %s", l.filePath), err)
		}
	}

	envTransform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := l.k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return ddbserrors.Wrap(ddbserrors.EnvVar, "load environment overrides", err)
	}

	if err := l.k.Unmarshal("", target); err != nil {
		return ddbserrors.Wrap(ddbserrors.ConfigParse, "unmarshal configuration", err)
	}

	return nil
}

// LoadControl builds a ControlConfig from defaults overlaid with the
// optional YAML file at filePath and environment variables.
func LoadControl(filePath string) (*ControlConfig, error) {
	cfg := DefaultControlConfig()
	if err := NewLoader(filePath).Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBackend builds a BackendConfig from defaults overlaid with the
// optional YAML file at filePath and environment variables.
func LoadBackend(filePath string) (*BackendConfig, error) {
	cfg := DefaultBackendConfig()
	if err := NewLoader(filePath).Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
