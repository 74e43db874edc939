// internal/nodes/database-retrieval/config.go
package databaseretrieval

import "time"

type Config struct {
	Timeout time.Duration
	MaxRows int
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		MaxRows: 1000,
	}
}
