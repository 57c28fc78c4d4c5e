// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"time"
)

// Config holds everything the commands need to start.
type Config struct {
	// DBDriver is "postgres" or "sqlite".
	DBDriver string
	// DBDSN overrides the DSN built from the PG* variables.
	DBDSN string

	LogMode string

	ReferencePath string

	ExportDir string
	GCSBucket string
	GCSPrefix string

	ScrapeBaseURL string
	ScrapeTimeout time.Duration

	TelemetryStdout bool

	WebHost   string
	WebPort   int
	WebAPIKey string
}

// Load builds a Config from the environment after loading any .env file.
func Load() (Config, error) {
	if err := LoadEnv(); err != nil {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := Config{
		DBDriver:        GetEnv("DB_DRIVER", "postgres"),
		DBDSN:           GetEnv("DB_DSN", ""),
		LogMode:         GetEnv("LOG_MODE", "dev"),
		ReferencePath:   GetEnv("REFERENCE_PATH", ""),
		ExportDir:       GetEnv("EXPORT_DIR", "export"),
		GCSBucket:       GetEnv("GCS_BUCKET", ""),
		GCSPrefix:       GetEnv("GCS_PREFIX", "ocd-calaccess"),
		ScrapeBaseURL:   GetEnv("SCRAPE_BASE_URL", "http://cal-access.sos.ca.gov"),
		ScrapeTimeout:   GetEnvDuration("SCRAPE_TIMEOUT", 30*time.Second),
		TelemetryStdout: GetEnvBool("OTEL_STDOUT", false),
		WebHost:         GetEnv("WEB_HOST", "localhost"),
		WebPort:         GetEnvInt("WEB_PORT", 8080),
		WebAPIKey:       GetEnv("WEB_API_KEY", ""),
	}
	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}

// PostgresDSN builds a lib/pq connection string from the PG* variables.
func PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		GetEnv("PGHOST", "localhost"),
		GetEnv("PGPORT", "5432"),
		GetEnv("PGUSER", "calaccess"),
		GetEnv("PGPASSWORD", ""),
		GetEnv("PGDATABASE", "calaccess_processed"),
		GetEnv("PGSSLMODE", "disable"),
	)
}

// DSN returns DBDSN, or the driver's default: the PG* variables for
// postgres, a file in the working directory for sqlite.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == "sqlite" {
		return "ocd-calaccess.db"
	}
	return PostgresDSN()
}
