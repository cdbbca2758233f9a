package storage

import (
	"time"

	"mediajobs/internal/config"
)

// LoadConfigFromEnv reads the blob store configuration.
func LoadConfigFromEnv() Config {
	return Config{
		UploadBaseURL: config.GetEnv("BLOB_UPLOAD_URL", "http://localhost:9803/blobs"),
		PublicBaseURL: config.GetEnv("BLOB_PUBLIC_URL", ""),
		MaxRetries:    config.GetIntEnv("BLOB_MAX_RETRIES", 3),
		Timeout:       config.GetDurationEnv("BLOB_HTTP_TIMEOUT", 2*time.Minute),
	}
}
