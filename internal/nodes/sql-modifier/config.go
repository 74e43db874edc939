// internal/nodes/sql-modifier/config.go
package sqlmodifier

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
