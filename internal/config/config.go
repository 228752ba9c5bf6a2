package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config holds the specdex configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Search     SearchConfig     `yaml:"search"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds document store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, sqlite (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	SQLitePath       string   `yaml:"sqlite_path"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	MaxInputChars       int          `yaml:"max_input_chars"`
	CacheTTLSec         int          `yaml:"cache_ttl_sec"` // 0 = no expiry
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Budget              BudgetConfig `yaml:"budget"`
}

// Budget actions.
const (
	BudgetActionWarn   = "warn"
	BudgetActionReject = "reject"
)

// BudgetConfig caps provider tokens. Zero limits are unlimited.
type BudgetConfig struct {
	DailyTokens   int64  `yaml:"daily_tokens"`
	MonthlyTokens int64  `yaml:"monthly_tokens"`
	Action        string `yaml:"action"` // "warn" (default) or "reject"
}

// GenerationConfig holds chat completion settings.
type GenerationConfig struct {
	Provider         string       `yaml:"provider"`
	APIKey           string       `yaml:"api_key"`
	BaseURL          string       `yaml:"base_url"`
	Model            string       `yaml:"model"`
	ExtractionModel  string       `yaml:"extraction_model"` // default: model
	SystemPromptPath string       `yaml:"system_prompt_path"`
	RequestsPerSec   float64      `yaml:"requests_per_second"` // 0 = unlimited
	Burst            int          `yaml:"burst"`
	TimeoutSec       int          `yaml:"timeout_sec"`
	Budget           BudgetConfig `yaml:"budget"`
}

// SearchConfig tunes the search strategies.
type SearchConfig struct {
	VectorThreshold    float64 `yaml:"vector_threshold"`
	VectorLimit        int     `yaml:"vector_limit"`
	HybridLimit        int     `yaml:"hybrid_limit"`
	VectorWeight       float64 `yaml:"vector_weight"`
	ScanLimit          int     `yaml:"scan_limit"`
	FallbackTimeoutSec int     `yaml:"fallback_timeout_sec"`
	DefaultPageSize    int     `yaml:"default_page_size"`
	MaxPageSize        int     `yaml:"max_page_size"`
}

// PubSubConfig enables asynchronous generation through a Pub/Sub topic.
// An empty topic keeps generation synchronous.
type PubSubConfig struct {
	Project           string `yaml:"project"`
	Topic             string `yaml:"topic"`
	VerificationToken string `yaml:"verification_token"`
}

// Enabled reports whether generation jobs are published.
func (p PubSubConfig) Enabled() bool { return p.Topic != "" }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// generation runs inside the request when Pub/Sub is off
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "specdex.db"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "specdex:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 8000
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "o3-2025-04-16"
	}
	if c.Generation.ExtractionModel == "" {
		c.Generation.ExtractionModel = c.Generation.Model
	}
	if c.Generation.Burst <= 0 {
		c.Generation.Burst = 1
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 240
	}
	if c.Embedding.Budget.Action == "" {
		c.Embedding.Budget.Action = BudgetActionWarn
	}
	if c.Generation.Budget.Action == "" {
		c.Generation.Budget.Action = BudgetActionWarn
	}
	if c.Search.VectorThreshold <= 0 {
		c.Search.VectorThreshold = 0.5
	}
	if c.Search.VectorLimit <= 0 {
		c.Search.VectorLimit = 20
	}
	if c.Search.HybridLimit <= 0 {
		c.Search.HybridLimit = 20
	}
	if c.Search.VectorWeight <= 0 {
		c.Search.VectorWeight = 0.7
	}
	if c.Search.ScanLimit <= 0 {
		c.Search.ScanLimit = 1000
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 20
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 100
	}

	// unset ${VAR:-} entries expand to empty keys
	keys := c.Auth.APIKeys[:0]
	for _, k := range c.Auth.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.Auth.APIKeys = keys
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", DriverRedis)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverSQLite, c.Database.Driver)
	}
	if c.Search.VectorThreshold > 1 {
		return fmt.Errorf("search.vector_threshold must be in (0, 1], got %g", c.Search.VectorThreshold)
	}
	if c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be in (0, 1], got %g", c.Search.VectorWeight)
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size %d exceeds max_page_size %d",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Generation.RequestsPerSec < 0 {
		return fmt.Errorf("generation.requests_per_second must not be negative")
	}
	if err := c.Embedding.Budget.validate("embedding.budget"); err != nil {
		return err
	}
	if err := c.Generation.Budget.validate("generation.budget"); err != nil {
		return err
	}
	if c.PubSub.Enabled() && c.PubSub.Project == "" {
		return fmt.Errorf("pubsub.project is required when pubsub.topic is set")
	}
	return nil
}

func (b BudgetConfig) validate(path string) error {
	if b.DailyTokens < 0 || b.MonthlyTokens < 0 {
		return fmt.Errorf("%s limits must not be negative", path)
	}
	if b.Action != BudgetActionWarn && b.Action != BudgetActionReject {
		return fmt.Errorf("%s.action must be %q or %q, got %q", path, BudgetActionWarn, BudgetActionReject, b.Action)
	}
	return nil
}

// FallbackTimeout returns the degraded search fan-out bound (zero = none).
func (s SearchConfig) FallbackTimeout() time.Duration {
	return time.Duration(s.FallbackTimeoutSec) * time.Second
}

// CacheTTL returns the embedding cache TTL (zero = no expiry).
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSec) * time.Second
}

// Timeout returns the per-call generation timeout.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

// SystemPrompt reads the prompt override; empty when no path is configured.
func (g GenerationConfig) SystemPrompt() (string, error) {
	if g.SystemPromptPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(g.SystemPromptPath))
	if err != nil {
		return "", fmt.Errorf("read system prompt %s: %w", g.SystemPromptPath, err)
	}
	return string(data), nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
