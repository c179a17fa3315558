// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"

	ProviderNone        = "none"
	ProviderAzureOpenAI = "azure_openai"
	ProviderGemini      = "gemini"

	DefaultAzureAPIVersion = "2024-02-15-preview"
	DefaultAzureDeployment = "gpt-4"
)

// Load reads configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml when present),
// applies environment overrides and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "welfare-caseworker")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 45000)
	v.SetDefault("server.shutdown_timeout", 10000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.registry_path", "")

	v.SetDefault("model.path", "models/risk_bundle.json")

	v.SetDefault("explainer.provider", ProviderAzureOpenAI)
	v.SetDefault("explainer.timeout", 30000)
	v.SetDefault("explainer.max_tokens", 300)
	v.SetDefault("explainer.temperature", 0.7)
	v.SetDefault("explainer.azure_openai.endpoint", "")
	v.SetDefault("explainer.azure_openai.api_key", "")
	v.SetDefault("explainer.azure_openai.deployment", "")
	v.SetDefault("explainer.azure_openai.api_version", DefaultAzureAPIVersion)
	v.SetDefault("explainer.gemini.api_key", "")
	v.SetDefault("explainer.gemini.model", "gemini-1.5-flash")

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "caseworker")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.max_connections", 25)
	v.SetDefault("storage.postgres.max_idle", 5)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "caseworker:")

	v.SetDefault("audit.elasticsearch.enabled", false)
	v.SetDefault("audit.elasticsearch.addresses", []string{})
	v.SetDefault("audit.elasticsearch.username", "")
	v.SetDefault("audit.elasticsearch.password", "")
	v.SetDefault("audit.elasticsearch.index", "caseworker-approvals")
	v.SetDefault("audit.sns.enabled", false)
	v.SetDefault("audit.sns.region", "ap-south-1")
	v.SetDefault("audit.sns.topic_arn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.trace_exporter", TraceExporterNone)
	v.SetDefault("observability.trace_output", "")
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() string {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the environment variable names the deployment scripts export.
func overrideEmptyConfig(cfg *Config) {
	azure := &cfg.Explainer.AzureOpenAI
	if azure.Endpoint == "" {
		azure.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if azure.APIKey == "" {
		azure.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
	}
	if azure.Deployment == "" {
		azure.Deployment = os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME")
	}

	if cfg.Explainer.Gemini.APIKey == "" {
		cfg.Explainer.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if val := os.Getenv("MODEL_PATH"); val != "" {
		cfg.Model.Path = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("FRONTEND_URL"); val != "" && !contains(cfg.Server.AllowedOrigins, val) {
		cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, val)
	}

	if cfg.Storage.Postgres.User == "" {
		cfg.Storage.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Storage.Postgres.Password == "" {
		cfg.Storage.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults fills values that may have been blanked out by a config file.
func applyDefaults(cfg *Config) {
	if cfg.Explainer.Provider == "" {
		cfg.Explainer.Provider = ProviderNone
	}
	if cfg.Explainer.AzureOpenAI.Deployment == "" {
		cfg.Explainer.AzureOpenAI.Deployment = DefaultAzureDeployment
	}
	if cfg.Explainer.AzureOpenAI.APIVersion == "" {
		cfg.Explainer.AzureOpenAI.APIVersion = DefaultAzureAPIVersion
	}
	if cfg.Explainer.Timeout <= 0 {
		cfg.Explainer.Timeout = 30000
	}
	if cfg.Explainer.MaxTokens <= 0 {
		cfg.Explainer.MaxTokens = 300
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Storage.Postgres.SSLMode == "" {
		cfg.Storage.Postgres.SSLMode = "disable"
	}
	if cfg.Audit.Elasticsearch.Index == "" {
		cfg.Audit.Elasticsearch.Index = "caseworker-approvals"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}

	switch cfg.Explainer.Provider {
	case ProviderNone, ProviderAzureOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("explainer.provider must be one of none, azure_openai, gemini, got %q", cfg.Explainer.Provider)
	}

	switch cfg.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if cfg.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required")
		}
		if cfg.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.database is required")
		}
		if cfg.Storage.Postgres.User == "" {
			return fmt.Errorf("storage.postgres.user is required")
		}
	case StorageRedis:
		if cfg.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address is required")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, postgres, redis, got %q", cfg.Storage.Driver)
	}

	if cfg.Audit.Elasticsearch.Enabled && len(cfg.Audit.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("audit.elasticsearch.addresses is required when enabled")
	}
	if cfg.Audit.SNS.Enabled && cfg.Audit.SNS.TopicARN == "" {
		return fmt.Errorf("audit.sns.topic_arn is required when enabled")
	}

	switch cfg.Observability.TraceExporter {
	case "", TraceExporterNone, TraceExporterStdout:
	default:
		return fmt.Errorf("observability.trace_exporter must be one of none, stdout, got %q", cfg.Observability.TraceExporter)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
