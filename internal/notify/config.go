package notify

import (
	"time"

	"mediajobs/internal/config"
)

// Delivery defaults. These rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// Config holds notifier configuration. An empty WebhookURL disables the
// notifier entirely.
type Config struct {
	WebhookURL  string        // destination for lifecycle events
	SigningKey  string        // HMAC key, empty = unsigned
	BufferSize  int           // pending events buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 4)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
}

// Enabled reports whether a destination is configured.
func (c Config) Enabled() bool {
	return c.WebhookURL != ""
}

// LoadConfigFromEnv loads notifier configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		WebhookURL:  config.GetEnv("NOTIFY_WEBHOOK_URL", ""),
		SigningKey:  config.GetEnv("NOTIFY_SIGNING_KEY", ""),
		BufferSize:  config.GetIntEnv("NOTIFY_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("NOTIFY_WORKERS", 4),
		HTTPTimeout: config.GetDurationEnv("NOTIFY_HTTP_TIMEOUT", 10*time.Second),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}
