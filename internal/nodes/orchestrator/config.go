// internal/nodes/orchestrator/config.go
package orchestrator

import "time"

type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Temperature: 0.4,
	}
}
