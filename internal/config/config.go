package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Candidate .env locations, checked in order
var envPaths = []string{".env", "../.env", "../../.env"}

// Config holds all pipeline configuration
type Config struct {
	Service   ServiceConfig
	Riot      RiotConfig
	Pipeline  PipelineConfig
	Storage   StorageConfig
	Warehouse WarehouseConfig
	Alerts    AlertConfig
	Metrics   MetricsConfig
}

// ServiceConfig holds process-level settings
type ServiceConfig struct {
	Port      int
	LogLevel  string
	LogFormat string
}

// RiotConfig holds match source API settings
type RiotConfig struct {
	APIKey            string
	MatchBaseURL      string
	AccountBaseURL    string
	MatchCount        int
	RequestTimeout    time.Duration
	RequestsPerSecond int
	RequestsPer2Min   int
}

// PipelineConfig holds the default destination identifiers for a deployment.
// Trigger requests may override bucket, folder and table per invocation.
type PipelineConfig struct {
	ProjectID  string
	Bucket     string
	Folder     string
	Table      string
	Topic      string
	RosterPath string
	Workers    int
}

// StorageConfig selects the raw match blob store
type StorageConfig struct {
	Backend   string // "gcs" or "file"
	LocalPath string
}

// WarehouseConfig selects the flat row sink
type WarehouseConfig struct {
	Backend        string // "bigquery" or "postgres"
	DatabaseURL    string
	TransformQuery string
}

// AlertConfig holds operator alert settings
type AlertConfig struct {
	DiscordWebhookURL string
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
}

// LoadEnvFile loads the first .env file found. Returns the path loaded, or ""
// when none was found (plain environment variables are used then).
func LoadEnvFile() string {
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Port:      getEnvInt("PORT", 8080),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "console"),
		},
		Riot: RiotConfig{
			APIKey:            getEnv("RIOT_API_KEY", ""),
			MatchBaseURL:      getEnv("RIOT_MATCH_BASE_URL", "https://sea.api.riotgames.com"),
			AccountBaseURL:    getEnv("RIOT_ACCOUNT_BASE_URL", "https://asia.api.riotgames.com"),
			MatchCount:        getEnvInt("RIOT_MATCH_COUNT", 20),
			RequestTimeout:    getEnvDuration("RIOT_REQUEST_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvInt("RIOT_REQUESTS_PER_SECOND", 15),
			RequestsPer2Min:   getEnvInt("RIOT_REQUESTS_PER_2MIN", 90),
		},
		Pipeline: PipelineConfig{
			ProjectID:  getEnv("GCP_PROJECT_ID", ""),
			Bucket:     getEnv("GCS_BUCKET", ""),
			Folder:     getEnv("DESTINATION_FOLDER", "TFT"),
			Table:      getEnv("BQ_TABLE", ""),
			Topic:      getEnv("PUBSUB_TOPIC", "match-data-ready"),
			RosterPath: getEnv("ROSTER_PATH", "config/roster.yaml"),
			Workers:    getEnvInt("INGEST_WORKERS", 1),
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", "gcs"),
			LocalPath: getEnv("BLOB_STORAGE_PATH", ""),
		},
		Warehouse: WarehouseConfig{
			Backend:        getEnv("WAREHOUSE_BACKEND", "bigquery"),
			DatabaseURL:    getEnv("DATABASE_URL", ""),
			TransformQuery: getEnv("TRANSFORM_QUERY", ""),
		},
		Alerts: AlertConfig{
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Riot.MatchCount < 1 {
		return fmt.Errorf("RIOT_MATCH_COUNT must be positive, got %d", c.Riot.MatchCount)
	}
	if c.Riot.RequestsPerSecond < 1 || c.Riot.RequestsPer2Min < 1 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.Riot.RequestTimeout <= 0 {
		return fmt.Errorf("RIOT_REQUEST_TIMEOUT must be positive")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.Folder == "" {
		return fmt.Errorf("DESTINATION_FOLDER cannot be empty")
	}
	if c.Pipeline.ProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID is required")
	}

	switch c.Storage.Backend {
	case "gcs":
	case "file":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("BLOB_STORAGE_PATH is required for the file storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Warehouse.Backend {
	case "bigquery":
	case "postgres":
		if c.Warehouse.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown WAREHOUSE_BACKEND %q", c.Warehouse.Backend)
	}

	return nil
}

// MaskedAPIKey returns the API key with everything but its ends hidden
func (c *Config) MaskedAPIKey() string {
	key := c.Riot.APIKey
	if len(key) <= 12 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		// .env values sometimes keep their quotes
		return strings.Trim(value, "\"")
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
