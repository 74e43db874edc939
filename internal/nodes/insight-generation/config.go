// internal/nodes/insight-generation/config.go
package insightgeneration

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float64
	SampleRows  int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     45 * time.Second,
		Temperature: 0.3,
		SampleRows:  10,
	}
}
