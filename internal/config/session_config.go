package config

import "time"

type SessionConfig interface {
	GetRevalidateWindow() time.Duration
	GetRememberedTokenExpiry() time.Duration
	GetSessionTokenExpiry() time.Duration
	GetHTTPTimeout() time.Duration
	GetRateLimitRPS() float64
}

type Session struct {
	RevalidateWindow time.Duration `yaml:"revalidate_window" env:"REVALIDATE_WINDOW" env-default:"60s"`
}

func (s Session) GetRevalidateWindow() time.Duration {
	if s.RevalidateWindow <= 0 {
		return 60 * time.Second
	}
	return s.RevalidateWindow
}

func (Session) GetRememberedTokenExpiry() time.Duration {
	return 30 * 24 * time.Hour // 30 days
}

func (Session) GetSessionTokenExpiry() time.Duration {
	return 24 * time.Hour
}
