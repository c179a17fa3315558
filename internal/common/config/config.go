// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Model         ModelConfig         `mapstructure:"model"`
	Explainer     ExplainerConfig     `mapstructure:"explainer"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	// RegistryPath optionally replaces the built-in operation catalog served at GET /.
	RegistryPath string `mapstructure:"registry_path"`
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// --- Explanation providers ---

// ExplainerConfig selects the text-generation backend. An empty or "none" provider
// means every explanation comes from the deterministic templates.
type ExplainerConfig struct {
	Provider    string            `mapstructure:"provider"`
	Timeout     int               `mapstructure:"timeout"` // milliseconds
	MaxTokens   int               `mapstructure:"max_tokens"`
	Temperature float64           `mapstructure:"temperature"`
	AzureOpenAI AzureOpenAIConfig `mapstructure:"azure_openai"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
}

type AzureOpenAIConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

// Configured reports whether every credential needed for a call is present.
func (a AzureOpenAIConfig) Configured() bool {
	return a.Endpoint != "" && a.APIKey != "" && a.Deployment != ""
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

func (g GeminiConfig) Configured() bool {
	return g.APIKey != "" && g.Model != ""
}

// --- Storage ---

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// --- Audit sinks ---

type AuditConfig struct {
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	SNS           SNSConfig           `mapstructure:"sns"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type SNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

type ObservabilityConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	// TraceExporter is none or stdout. TraceOutput is a file path; empty means stdout.
	TraceExporter string `mapstructure:"trace_exporter"`
	TraceOutput   string `mapstructure:"trace_output"`
}

// GetDuration converts a millisecond setting into a time.Duration.
func GetDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
