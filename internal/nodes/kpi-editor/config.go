// internal/nodes/kpi-editor/config.go
package kpieditor

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		Temperature: 0.0,
	}
}
