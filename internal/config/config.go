package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	TokenConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetPort() string
	GetAPIURL() string
	GetAdminAPIURL() string
	GetStateFile() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars `yaml:",inline"`
	Cors    `yaml:",inline"`
	Session `yaml:",inline"`
	Tokens  `yaml:",inline"`
}

var _ Config = (*mainConfig)(nil)

// New loads the configuration from CONFIG_PATH when set, otherwise from the
// environment only. Unparseable values panic.
func New() Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional YAML file and overlays environment variables on top.
// An empty path reads the environment only.
func Load(path string) (Config, error) {
	var cfg mainConfig

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return &cfg, nil
}
