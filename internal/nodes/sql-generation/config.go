// internal/nodes/sql-generation/config.go
package sqlgeneration

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		Temperature: 0.1,
	}
}
