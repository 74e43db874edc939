// internal/nodes/metadata-retrieval/config.go
package metadataretrieval

import "time"

type Config struct {
	Index        string
	TopK         int
	FallbackTopK int
	Timeout      time.Duration
	MaxRetries   int
	Temperature  float64
}

func LoadConfig() *Config {
	return &Config{
		Index:        "schema-metadata",
		TopK:         4,
		FallbackTopK: 10,
		Timeout:      45 * time.Second,
		MaxRetries:   3,
		Temperature:  0.0,
	}
}
