// internal/nodes/kpi-retrieval/config.go
package kpiretrieval

import "time"

type Config struct {
	Index      string
	TopK       int
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Index:      "kpi-definitions",
		TopK:       3,
		Timeout:    15 * time.Second,
		MaxRetries: 3,
	}
}
