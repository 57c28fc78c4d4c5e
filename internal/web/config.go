package web

import (
	"github.com/ocd-calaccess/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// APIKey is compared with the X-API-Key header; empty disables the check.
	APIKey string
}

// ConfigFrom takes the web settings out of the process configuration.
func ConfigFrom(cfg config.Config) *Config {
	return &Config{
		Server: ServerConfig{Port: cfg.WebPort, Host: cfg.WebHost},
		Auth:   AuthConfig{APIKey: cfg.WebAPIKey},
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
	}
}
