package config

import (
	"fmt"
	"strings"
	"time"
)

const productionEnv = "production"

type EnvVars struct {
	Env          string        `yaml:"env" env:"ENV" env-default:"DEV"`
	AppName      string        `yaml:"app_name" env:"APP_NAME" env-default:"Happily Mart"`
	Port         string        `yaml:"port" env:"PORT" env-default:"5000"`
	APIURL       string        `yaml:"api_url" env:"API_URL" env-default:"http://localhost:5000/api"`
	AdminAPIURL  string        `yaml:"admin_api_url" env:"ADMIN_API_URL" env-default:"http://localhost:5000/api/admin"`
	StateFile    string        `yaml:"state_file" env:"STATE_FILE" env-default:"./.martctl/state.yaml"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"0"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetPort returns the listen address of the development backend (":5000").
func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "5000"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

// GetAPIURL returns the base URL of the user-facing API, without a trailing slash.
func (e EnvVars) GetAPIURL() string {
	return strings.TrimRight(e.APIURL, "/")
}

// GetAdminAPIURL returns the base URL of the admin API, without a trailing slash.
func (e EnvVars) GetAdminAPIURL() string {
	return strings.TrimRight(e.AdminAPIURL, "/")
}

func (e EnvVars) GetStateFile() string {
	return e.StateFile
}

func (e EnvVars) GetHTTPTimeout() time.Duration {
	return e.HTTPTimeout
}

func (e EnvVars) GetRateLimitRPS() float64 {
	return e.RateLimitRPS
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (e EnvVars) IsProduction() bool {
	return strings.EqualFold(e.Env, productionEnv)
}
