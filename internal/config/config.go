// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"time"
)

// ServiceConfig holds configuration for the jobs service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string        // Bearer token for job endpoints (empty disables auth)
	TriggerToken      string        // Bearer token for tick/cleanup triggers
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	RetentionWindow   time.Duration // Age before abandoned failed jobs are swept
	SeparationCap     int           // Concurrent separation submissions allowed upstream
	DownloadCap       int           // Concurrent download submissions allowed upstream
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetEnv("API_KEY", GetSecretFile(GetEnv("API_KEY_FILE", ""))),
		TriggerToken:      GetEnv("TRIGGER_TOKEN", GetSecretFile(GetEnv("TRIGGER_TOKEN_FILE", ""))),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		RetentionWindow:   GetDurationEnv("RETENTION_WINDOW", 24*time.Hour),
		SeparationCap:     GetIntEnv("SEPARATION_CAP", 1),
		DownloadCap:       GetIntEnv("DOWNLOAD_CAP", 1),
	}
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LoadDBConfig loads database configuration from environment variables.
func LoadDBConfig() *DBConfig {
	return &DBConfig{
		Host:     GetEnv("DB_HOST", "localhost"),
		Port:     GetEnv("DB_PORT", "5432"),
		User:     GetEnv("DB_USER", "mediajobs"),
		Password: GetEnv("DB_PASSWORD", ""),
		Name:     GetEnv("DB_NAME", "mediajobs"),
		SSLMode:  GetEnv("DB_SSLMODE", "disable"),
	}
}

// ConnString returns the keyword/value connection string for the pgx driver.
func (c *DBConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}
