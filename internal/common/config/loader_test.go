// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_DEPLOYMENT_NAME",
		"GEMINI_API_KEY", "MODEL_PATH", "PORT", "FRONTEND_URL", "DB_USER", "DB_PASSWORD",
		"STORAGE_DRIVER", "EXPLAINER_PROVIDER",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// ==========================
// Tests
// ==========================

func TestLoadFromFile_Defaults(t *testing.T) {
	clearProviderEnv(t)
	path := writeConfig(t, "app:\n  name: caseworker-test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "caseworker-test", cfg.App.Name)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, TraceExporterNone, cfg.Observability.TraceExporter)
	assert.Equal(t, ProviderAzureOpenAI, cfg.Explainer.Provider)
	assert.Equal(t, DefaultAzureDeployment, cfg.Explainer.AzureOpenAI.Deployment)
	assert.Equal(t, DefaultAzureAPIVersion, cfg.Explainer.AzureOpenAI.APIVersion)
	assert.Equal(t, 300, cfg.Explainer.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Explainer.Temperature, 1e-9)
	assert.Equal(t, "caseworker:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, "caseworker-approvals", cfg.Audit.Elasticsearch.Index)
	assert.False(t, cfg.Explainer.AzureOpenAI.Configured())
}

func TestLoadFromFile_LegacyEnvironmentVariables(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "secret")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o")
	t.Setenv("MODEL_PATH", "/srv/models/bundle.json")
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_URL", "https://caseworker.example.org")

	cfg, err := LoadFromFile(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Explainer.AzureOpenAI.Configured())
	assert.Equal(t, "gpt-4o", cfg.Explainer.AzureOpenAI.Deployment)
	assert.Equal(t, "/srv/models/bundle.json", cfg.Model.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Contains(t, cfg.Server.AllowedOrigins, "https://caseworker.example.org")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("CASEWORKER_PG_PASSWORD", "hunter2")

	cfg, err := LoadFromFile(writeConfig(t, `
storage:
  driver: postgres
  postgres:
    host: db.internal
    database: cases
    user: caseworker
    password: ${CASEWORKER_PG_PASSWORD}
`))
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "hunter2", cfg.Storage.Postgres.Password)
	assert.Equal(t,
		"host=db.internal port=5432 user=caseworker password=hunter2 dbname=cases sslmode=disable",
		cfg.Storage.Postgres.GetDSN())
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown trace exporter",
			body:    "observability:\n  trace_exporter: jaeger\n",
			wantErr: "observability.trace_exporter",
		},
		{
			name:    "unknown storage driver",
			body:    "storage:\n  driver: mongo\n",
			wantErr: "storage.driver",
		},
		{
			name:    "unknown explainer provider",
			body:    "explainer:\n  provider: llama\n",
			wantErr: "explainer.provider",
		},
		{
			name:    "postgres without user",
			body:    "storage:\n  driver: postgres\n",
			wantErr: "storage.postgres.user",
		},
		{
			name:    "elasticsearch enabled without addresses",
			body:    "audit:\n  elasticsearch:\n    enabled: true\n",
			wantErr: "audit.elasticsearch.addresses",
		},
		{
			name:    "sns enabled without topic",
			body:    "audit:\n  sns:\n    enabled: true\n",
			wantErr: "audit.sns.topic_arn",
		},
		{
			name:    "port out of range",
			body:    "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestGeminiConfigured(t *testing.T) {
	assert.False(t, GeminiConfig{Model: "gemini-1.5-flash"}.Configured())
	assert.True(t, GeminiConfig{APIKey: "k", Model: "gemini-1.5-flash"}.Configured())
}
