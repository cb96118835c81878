package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModelBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModelName    = "gemini-2.0-flash"
)

// Config holds the application configuration.
type Config struct {
	Port     int    `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	AppKey        string `yaml:"app_key"`
	AdminPassword string `yaml:"admin_password"`

	ModelAPIKey  string `yaml:"model_api_key"`
	ModelBaseURL string `yaml:"model_base_url"`
	ModelName    string `yaml:"model_name"`

	RequestTimeoutMinutes int    `yaml:"request_timeout_minutes"`
	MaxUploadMB           int    `yaml:"max_upload_mb"`
	Timezone              string `yaml:"timezone"`

	StoreDriver string `yaml:"store_driver"`
	ProjectID   string `yaml:"project_id"`
	MongoURI    string `yaml:"mongo_uri"`
	PostgresURL string `yaml:"postgres_url"`
	RedisURL    string `yaml:"redis_url"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	ArchiveBucket    string `yaml:"archive_bucket"`
	ArchiveRegion    string `yaml:"archive_region"`
	ArchiveEndpoint  string `yaml:"archive_endpoint"`
	ArchiveAccessKey string `yaml:"archive_access_key"`
	ArchiveSecretKey string `yaml:"archive_secret_key"`

	SpoolRetentionHours int `yaml:"spool_retention_hours"`
}

func defaults() *Config {
	return &Config{
		Port:                  8080,
		Env:                   "production",
		LogLevel:              "info",
		DataDir:               "data",
		ModelBaseURL:          DefaultModelBaseURL,
		ModelName:             DefaultModelName,
		RequestTimeoutMinutes: 5,
		MaxUploadMB:           50,
		Timezone:              "Local",
		StoreDriver:           "sqlite",
		ProjectID:             "countcam",
		ArchiveRegion:         "us-east-1",
		SpoolRetentionHours:   168,
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by CONFIG_FILE, and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.AppKey = getEnv("APP_KEY", c.AppKey)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)
	c.ModelAPIKey = getEnv("MODEL_API_KEY", c.ModelAPIKey)
	c.ModelBaseURL = getEnv("MODEL_BASE_URL", c.ModelBaseURL)
	c.ModelName = getEnv("MODEL_NAME", c.ModelName)
	c.RequestTimeoutMinutes = getEnvAsInt("REQUEST_TIMEOUT_MINUTES", c.RequestTimeoutMinutes)
	c.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", c.MaxUploadMB)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))
	c.ProjectID = getEnv("PROJECT_ID", c.ProjectID)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	c.ArchiveBucket = getEnv("ARCHIVE_BUCKET", c.ArchiveBucket)
	c.ArchiveRegion = getEnv("ARCHIVE_REGION", c.ArchiveRegion)
	c.ArchiveEndpoint = getEnv("ARCHIVE_ENDPOINT", c.ArchiveEndpoint)
	c.ArchiveAccessKey = getEnv("ARCHIVE_ACCESS_KEY", c.ArchiveAccessKey)
	c.ArchiveSecretKey = getEnv("ARCHIVE_SECRET_KEY", c.ArchiveSecretKey)
	c.SpoolRetentionHours = getEnvAsInt("SPOOL_RETENTION_HOURS", c.SpoolRetentionHours)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.AppKey == "" {
		return errors.New("APP_KEY must be set")
	}
	if _, err := base64.StdEncoding.DecodeString(c.AppKey); err != nil {
		return fmt.Errorf("APP_KEY is not a valid base64 encoded string: %w", err)
	}
	switch c.StoreDriver {
	case "sqlite":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI must be set when STORE_DRIVER=mongo")
		}
	case "postgres":
		if c.PostgresURL == "" {
			return errors.New("POSTGRES_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Env, "development")
}

// Location resolves the timezone used for legacy date/time fields and hourly reports.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// MaxUploadBytes is the size cap for a single uploaded clip.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// RequestTimeout is the coarse ceiling for a single upload request.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.RequestTimeoutMinutes) * time.Minute
}

// ArchiveEnabled reports whether accepted clips are copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

// DatabasePath is the local SQLite file holding users, jobs and (by default) history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "countcam.db")
}

// SpoolDir holds clips waiting to be archived.
func (c *Config) SpoolDir() string {
	return filepath.Join(c.DataDir, "spool")
}

// SpoolRetention is how long a clip that never reached object storage stays
// in the spool. Zero keeps clips forever.
func (c *Config) SpoolRetention() time.Duration {
	if c.SpoolRetentionHours <= 0 {
		return 0
	}
	return time.Duration(c.SpoolRetentionHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
