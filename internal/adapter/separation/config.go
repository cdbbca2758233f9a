package separation

import (
	"time"

	"mediajobs/internal/config"
)

// Config for the separation service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoadConfigFromEnv reads the separation client configuration.
func LoadConfigFromEnv() Config {
	return Config{
		BaseURL: config.GetEnv("SEPARATION_API_URL", "http://localhost:9801"),
		APIKey:  config.GetEnv("SEPARATION_API_KEY", ""),
		Timeout: config.GetDurationEnv("SEPARATION_HTTP_TIMEOUT", 30*time.Second),
	}
}
