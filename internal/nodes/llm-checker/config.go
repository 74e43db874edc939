// internal/nodes/llm-checker/config.go
package llmchecker

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		Temperature: 0.0,
	}
}
