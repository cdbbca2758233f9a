package download

import (
	"time"

	"mediajobs/internal/config"
)

// Config for the media-fetch service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoadConfigFromEnv reads the fetch client configuration.
func LoadConfigFromEnv() Config {
	return Config{
		BaseURL: config.GetEnv("FETCH_API_URL", "http://localhost:9802"),
		APIKey:  config.GetEnv("FETCH_API_KEY", ""),
		Timeout: config.GetDurationEnv("FETCH_HTTP_TIMEOUT", 30*time.Second),
	}
}
