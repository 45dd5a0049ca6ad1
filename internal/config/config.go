// Package config provides configuration management for the tool runner.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the runner service.
type Config struct {
	Engine  EngineConfig      `mapstructure:"engine"`
	DataDir string            `mapstructure:"data_dir"`
	Images  ImagesConfig      `mapstructure:"images"`
	Environ map[string]string `mapstructure:"environ"`
	Server  ServerConfig      `mapstructure:"server"`
	Journal JournalConfig     `mapstructure:"journal"`
	Events  EventsConfig      `mapstructure:"events"`
}

// EngineConfig holds container engine configuration.
type EngineConfig struct {
	Runtime       string   `mapstructure:"runtime"`        // "podman" or "apptainer"
	PodmanPath    string   `mapstructure:"podman_path"`    // Path to podman binary
	ApptainerPath string   `mapstructure:"apptainer_path"` // Path to apptainer/singularity binary
	ExtraArgs     []string `mapstructure:"extra_args"`     // Extra flags passed to every run
}

// Path returns the executable path for the configured runtime.
func (e EngineConfig) Path() string {
	if e.Runtime == "apptainer" {
		return e.ApptainerPath
	}
	return e.PodmanPath
}

// ImagesConfig holds image resolution configuration.
type ImagesConfig struct {
	Overrides map[string]string `mapstructure:"overrides"` // Logical image -> replacement
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// JournalConfig holds invocation journal configuration. An empty backend
// disables the journal.
type JournalConfig struct {
	Backend       string `mapstructure:"backend"` // "", "mongo", "postgres"
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
}

// EventsConfig holds Redis event publishing configuration.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("engine.runtime", "podman")
	v.SetDefault("engine.podman_path", "podman")
	v.SetDefault("engine.apptainer_path", "apptainer")
	v.SetDefault("engine.extra_args", []string{})

	v.SetDefault("data_dir", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)

	v.SetDefault("journal.backend", "")
	v.SetDefault("journal.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("journal.mongo_database", "tool_runner")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.addr", "localhost:6379")
	v.SetDefault("events.password", "")
	v.SetDefault("events.db", 0)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tool-runner")
	}

	// Read environment variables
	v.SetEnvPrefix("TOOLRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
