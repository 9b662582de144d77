package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SPATIALQUERY_QUERY_TIMEOUT.
const EnvPrefix = "SPATIALQUERY"

var searchPaths = []string{".", "./config", "/etc/spatialquery"}

var defaults = map[string]any{
	"server.host":                 "0.0.0.0",
	"server.port":                 8080,
	"server.read_timeout":         30 * time.Second,
	"server.write_timeout":        30 * time.Second,
	"server.shutdown_timeout":     10 * time.Second,
	"server.rate_limit.enabled":   false,
	"server.rate_limit.rate":      100.0,
	"server.rate_limit.burst":     200,
	"server.cors.allowed_origins": []string{},

	"storage.type":            "local",
	"storage.local_path":      "./data",
	"storage.sync_interval":   time.Duration(0),
	"storage.watch":           true,
	"storage.http.index_file": "index.txt",
	"storage.http.timeout":    5 * time.Minute,

	"query.timeout":            5 * time.Minute,
	"query.strict_relations":   false,
	"query.layer_cache_size":   16,
	"query.progress_log_every": 10000,
	"query.reprojection":       true,

	"tls.enabled":   false,
	"tls.cache_dir": "./.certmagic",
	"tls.staging":   false,

	"metrics.enabled":   true,
	"metrics.path":      "/metrics",
	"metrics.namespace": "spatialquery",

	"logging.level":  "info",
	"logging.format": "json",
}

// Defaults registers the default values with viper.
func Defaults() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

// Load reads the configuration from defaults, an optional file and the
// environment, in increasing order of precedence. Without configPath a
// config.yaml is looked up in the search paths and may be absent.
func Load(configPath string) (*Config, error) {
	Defaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, p := range searchPaths {
			viper.AddConfigPath(p)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
