package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Dataset DatasetConfig `yaml:"dataset"`
	Git     GitConfig     `yaml:"git"`
	Server  ServerConfig  `yaml:"server"`
	Run     RunConfig     `yaml:"run"`
}

// APIConfig describes the upstream APOD endpoint and its retry policy.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// StorageConfig selects and describes the relational backend.
type StorageConfig struct {
	Type string `yaml:"type"` // "postgresql", "mongodb", "dynamodb"

	// PostgreSQL
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	// MongoDB
	MongoDBURI string `yaml:"mongodb_uri"`

	// DynamoDB
	Region    string `yaml:"region"`
	TableName string `yaml:"table_name"`
	Endpoint  string `yaml:"endpoint"` // custom endpoint for local testing
}

// DatasetConfig locates the flat CSV dataset and its version manifest.
type DatasetConfig struct {
	Dir      string `yaml:"dir"`
	FileName string `yaml:"file_name"`
}

// Path returns the absolute-ish path of the dataset file.
func (d DatasetConfig) Path() string {
	return filepath.Join(d.Dir, d.FileName)
}

// GitConfig describes the local working copy and the push target.
type GitConfig struct {
	RemoteURL   string `yaml:"remote_url"`
	Token       string `yaml:"token"`
	Branch      string `yaml:"branch"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RunConfig controls the trigger loop.
type RunConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load builds configuration from an optional YAML file overridden by
// environment variables. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("APOD_API_URL", c.API.BaseURL)
	c.API.APIKey = getEnv("APOD_API_KEY", c.API.APIKey)
	c.API.Timeout = getEnvDuration("APOD_API_TIMEOUT", c.API.Timeout)
	c.API.MaxAttempts = getEnvInt("APOD_MAX_ATTEMPTS", c.API.MaxAttempts)
	c.API.BackoffBase = getEnvDuration("APOD_BACKOFF_BASE", c.API.BackoffBase)

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.Host = getEnv("POSTGRES_HOST", c.Storage.Host)
	c.Storage.Port = getEnvInt("POSTGRES_PORT", c.Storage.Port)
	c.Storage.Database = getEnv("POSTGRES_DB", c.Storage.Database)
	c.Storage.User = getEnv("POSTGRES_USER", c.Storage.User)
	c.Storage.Password = getEnv("POSTGRES_PASSWORD", c.Storage.Password)
	c.Storage.SSLMode = getEnv("POSTGRES_SSLMODE", c.Storage.SSLMode)
	c.Storage.MongoDBURI = getEnv("MONGODB_URI", c.Storage.MongoDBURI)
	c.Storage.Region = getEnv("AWS_REGION", c.Storage.Region)
	c.Storage.TableName = getEnv("TABLE_NAME", c.Storage.TableName)
	c.Storage.Endpoint = getEnv("DYNAMODB_ENDPOINT", c.Storage.Endpoint)

	c.Dataset.Dir = getEnv("DATA_DIR", c.Dataset.Dir)
	c.Dataset.FileName = getEnv("DATASET_FILE", c.Dataset.FileName)

	c.Git.RemoteURL = getEnv("GIT_REMOTE_URL", c.Git.RemoteURL)
	c.Git.Token = getEnv("GIT_TOKEN", c.Git.Token)
	c.Git.Branch = getEnv("GIT_BRANCH", c.Git.Branch)
	c.Git.AuthorName = getEnv("GIT_AUTHOR_NAME", c.Git.AuthorName)
	c.Git.AuthorEmail = getEnv("GIT_AUTHOR_EMAIL", c.Git.AuthorEmail)

	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Run.Interval = getEnvDuration("RUN_INTERVAL", c.Run.Interval)
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.nasa.gov/planetary/apod"
	}
	if c.API.APIKey == "" {
		c.API.APIKey = "DEMO_KEY"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.MaxAttempts == 0 {
		c.API.MaxAttempts = 5
	}
	if c.API.BackoffBase == 0 {
		c.API.BackoffBase = 5 * time.Second
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "postgresql"
	}
	if c.Storage.Host == "" {
		c.Storage.Host = "localhost"
	}
	if c.Storage.Port == 0 {
		c.Storage.Port = 5432
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "apod_db"
	}
	if c.Storage.User == "" {
		c.Storage.User = "postgres"
	}
	if c.Storage.SSLMode == "" {
		c.Storage.SSLMode = "disable"
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-west-2"
	}
	if c.Storage.TableName == "" {
		c.Storage.TableName = "apod_records"
	}
	if c.Dataset.Dir == "" {
		c.Dataset.Dir = "data"
	}
	if c.Dataset.FileName == "" {
		c.Dataset.FileName = "apod_data.csv"
	}
	if c.Git.Branch == "" {
		c.Git.Branch = "main"
	}
	if c.Git.AuthorName == "" {
		c.Git.AuthorName = "APOD Pipeline"
	}
	if c.Git.AuthorEmail == "" {
		c.Git.AuthorEmail = "pipeline@astrodata.local"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Run.Interval == 0 {
		c.Run.Interval = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "postgresql", "mongodb", "dynamodb":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoDBURI == "" {
		return fmt.Errorf("mongodb storage requires MONGODB_URI")
	}
	return nil
}

// PostgresDSN assembles a lib/pq connection string from the discrete fields.
func (s StorageConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.Host, s.Port, s.Database, s.User, s.Password, s.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
