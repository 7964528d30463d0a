package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAnswerThreshold applies when qa.answer_threshold is absent.
const DefaultAnswerThreshold = 0.20

// Generative backends.
const (
	BackendHF     = "hf"
	BackendOpenAI = "openai"
)

// Config holds the qaserve configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Models  ModelsConfig  `yaml:"models"`
	QA      QAConfig      `yaml:"qa"`
	HF      HFConfig      `yaml:"hf"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
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

// ModelsConfig selects the two models and how they are loaded.
type ModelsConfig struct {
	Task              string `yaml:"task"`
	ExtractiveModelID string `yaml:"extractive_model_id"`
	GenerativeModelID string `yaml:"generative_model_id"`
	GenerativeBackend string `yaml:"generative_backend"` // hf, openai (default: hf)
	LoadTimeoutSec    int    `yaml:"load_timeout_sec"`
	Preload           bool   `yaml:"preload"`
}

// QAConfig holds extractive answering settings.
type QAConfig struct {
	MaxSeqLen       int      `yaml:"max_seq_len"`
	DocStride       int      `yaml:"doc_stride"`
	AnswerThreshold *float64 `yaml:"answer_threshold"`
	ReturnNBest     int      `yaml:"return_n_best"`
	MaxBatchSize    int      `yaml:"max_batch_size"`
}

// HFConfig holds Hugging Face inference endpoint settings.
type HFConfig struct {
	Endpoint            string `yaml:"endpoint"`
	Token               string `yaml:"token"`
	HubOffline          string `yaml:"hub_offline"`
	TransformersOffline string `yaml:"transformers_offline"`
	UseCache            bool   `yaml:"use_cache"`
	TimeoutSec          int    `yaml:"timeout_sec"`
}

// Offline reports whether either offline flag is set to a truthy value.
func (h HFConfig) Offline() bool {
	return truthy(h.HubOffline) || truthy(h.TransformersOffline)
}

// OpenAIConfig holds settings of the OpenAI-compatible generative backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	User    string `yaml:"user"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Threshold returns the configured answer threshold. AnswerThreshold is a
// pointer so an explicit 0 (gating off) survives ApplyDefaults.
func (q QAConfig) Threshold() float64 {
	if q.AnswerThreshold == nil {
		return DefaultAnswerThreshold
	}
	return *q.AnswerThreshold
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables in data, decodes it and applies defaults and validation.
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
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 9090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Models.Task == "" {
		c.Models.Task = "question-answering"
	}
	if c.Models.ExtractiveModelID == "" {
		c.Models.ExtractiveModelID = "deepset/minilm-uncased-squad2"
	}
	if c.Models.GenerativeModelID == "" {
		c.Models.GenerativeModelID = "google/flan-t5-small"
	}
	if c.Models.GenerativeBackend == "" {
		c.Models.GenerativeBackend = BackendHF
	}
	if c.Models.LoadTimeoutSec <= 0 {
		c.Models.LoadTimeoutSec = 300
	}
	if c.QA.MaxSeqLen <= 0 {
		c.QA.MaxSeqLen = 384
	}
	if c.QA.DocStride <= 0 {
		c.QA.DocStride = 128
	}
	if c.QA.AnswerThreshold == nil {
		th := DefaultAnswerThreshold
		c.QA.AnswerThreshold = &th
	}
	if c.QA.ReturnNBest <= 0 {
		c.QA.ReturnNBest = 3
	}
	if c.QA.MaxBatchSize <= 0 {
		c.QA.MaxBatchSize = 64
	}
	if c.HF.Endpoint == "" {
		c.HF.Endpoint = "https://api-inference.huggingface.co"
	}
	if c.HF.TimeoutSec <= 0 {
		c.HF.TimeoutSec = 60
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if th := c.QA.Threshold(); th < 0 || th > 1 {
		return fmt.Errorf("qa.answer_threshold must be between 0 and 1, got %v", th)
	}
	if c.QA.DocStride >= c.QA.MaxSeqLen {
		return fmt.Errorf("qa.doc_stride (%d) must be less than qa.max_seq_len (%d)", c.QA.DocStride, c.QA.MaxSeqLen)
	}
	if u, err := url.Parse(c.HF.Endpoint); err != nil || u.Host == "" {
		return fmt.Errorf("hf.endpoint must be an absolute URL, got %q", c.HF.Endpoint)
	}
	switch c.Models.GenerativeBackend {
	case BackendHF:
	case BackendOpenAI:
		if c.OpenAI.BaseURL == "" && c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key or openai.base_url is required for the openai backend")
		}
	default:
		return fmt.Errorf(
			"models.generative_backend must be %q or %q, got %q",
			BackendHF, BackendOpenAI, c.Models.GenerativeBackend,
		)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache is enabled")
	}
	return nil
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

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
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
