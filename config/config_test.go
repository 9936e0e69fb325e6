package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boat-builder/convo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no inherited keys, so
// neither a stray .env nor the developer's shell leaks into Load.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "CONVO_LLM_API_KEY", "CONVO_LLM_BASE_URL"} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "convo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, uint32(5), cfg.LLM.Breaker.FailureThreshold)
	assert.Equal(t, convo.DefaultRetryPolicy(), cfg.Retry)
	assert.Equal(t, "gpt-4o-mini", cfg.Session.Model)
	assert.Equal(t, "gpt-3.5-turbo-instruct", cfg.Session.CompletionModel)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Storage.Driver)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
llm:
  api_key: sk-file
  base_url: http://localhost:8080/v1/
  timeout: 10s
retry:
  max_attempts: 5
  default_delay: 500ms
session:
  model: gpt-4o
  temperature: 0.1
storage:
  driver: sqlite
  dsn: convo.db
`)
	t.Setenv("CONVO_SESSION_MODEL", "gpt-4.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "http://localhost:8080/v1/", cfg.LLM.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.DefaultDelay)
	assert.Equal(t, "gpt-4.1", cfg.Session.Model)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	opts := cfg.Options()
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, 0.1, *opts.Temperature)
}

func TestLoad_EnvKeyOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "llm:\n  api_key: sk-file\n")
	t.Setenv("CONVO_LLM_API_KEY", "sk-convo")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-convo", cfg.LLM.APIKey)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	isolate(t)

	_, err := Load("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Retry: convo.DefaultRetryPolicy(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.DefaultDelay = -time.Second }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.LLM.Timeout = -time.Second }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage = StorageConfig{Driver: "mongo", DSN: "x"} }, wantErr: true},
		{name: "driver without dsn", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true},
		{name: "postgres", mutate: func(c *Config) { c.Storage = StorageConfig{Driver: "postgres", DSN: "host=localhost"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			cfg.LLM.APIKey = "sk-test"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
