package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "https://api.nasa.gov/planetary/apod", cfg.API.BaseURL)
	assert.Equal(t, "DEMO_KEY", cfg.API.APIKey)
	assert.Equal(t, 5, cfg.API.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.API.BackoffBase)
	assert.Equal(t, "postgresql", cfg.Storage.Type)
	assert.Equal(t, "apod_records", cfg.Storage.TableName)
	assert.Equal(t, filepath.Join("data", "apod_data.csv"), cfg.Dataset.Path())
	assert.Equal(t, "main", cfg.Git.Branch)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Run.Interval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APOD_API_KEY", "real_key")
	t.Setenv("APOD_MAX_ATTEMPTS", "3")
	t.Setenv("APOD_BACKOFF_BASE", "1s")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("DATA_DIR", "/var/lib/apod")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "real_key", cfg.API.APIKey)
	assert.Equal(t, 3, cfg.API.MaxAttempts)
	assert.Equal(t, time.Second, cfg.API.BackoffBase)
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, filepath.Join("/var/lib/apod", "apod_data.csv"), cfg.Dataset.Path())
}

func TestLoad_YAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  api_key: file_key
  max_attempts: 7
storage:
  type: dynamodb
  table_name: apod_test
git:
  branch: release
`), 0o644))
	t.Setenv("APOD_API_KEY", "env_key")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "env_key", cfg.API.APIKey, "environment wins over the file")
	assert.Equal(t, 7, cfg.API.MaxAttempts)
	assert.Equal(t, "dynamodb", cfg.Storage.Type)
	assert.Equal(t, "apod_test", cfg.Storage.TableName)
	assert.Equal(t, "release", cfg.Git.Branch)
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestLoad_UnsupportedStorageType(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestLoad_MongoDBRequiresURI(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "mongodb")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGODB_URI")
}

func TestPostgresDSN(t *testing.T) {
	s := StorageConfig{Host: "h", Port: 5433, Database: "d", User: "u", Password: "p", SSLMode: "require"}

	assert.Equal(t, "host=h port=5433 dbname=d user=u password=p sslmode=require", s.PostgresDSN())
}
