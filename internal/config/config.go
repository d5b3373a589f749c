package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"chat-gateway/internal/gate"
	"chat-gateway/internal/integrations/inference"
	"chat-gateway/internal/usecase"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"

	ProviderOllama = "ollama"
)

type Config struct {
	Host         string `yaml:"host" env:"HOST"`
	Port         uint16 `yaml:"port" env:"PORT"`
	APIToken     string `yaml:"apiToken,omitempty" env:"API_TOKEN"`
	APIKeyHeader string `yaml:"apiKeyHeader" env:"API_KEY_HEADER"`

	// ParamPrefix enables secret lookup in SSM Parameter Store for any
	// secret not set directly.
	ParamPrefix string `yaml:"paramPrefix,omitempty" env:"PARAM_PREFIX"`
	// AuditTable enables the DynamoDB completion audit log.
	AuditTable string `yaml:"auditTable,omitempty" env:"AUDIT_TABLE"`

	Inference  InferenceConfig  `yaml:"inference"`
	Prometheus PrometheusConfig `yaml:"prometheus"`

	LogLevel  slog.Level `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string     `yaml:"logFormat" env:"LOG_FORMAT"`
}

type InferenceConfig struct {
	APIKey               string        `yaml:"apiKey,omitempty" env:"HUGGINGFACE_API_KEY"`
	BaseURL              string        `yaml:"baseUrl" env:"INFERENCE_BASE_URL"`
	Model                string        `yaml:"model" env:"INFERENCE_MODEL"`
	Provider             string        `yaml:"provider" env:"INFERENCE_PROVIDER"`
	MaxTokens            int           `yaml:"maxTokens" env:"MAX_TOKENS"`
	Timeout              time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT"`
	DefaultSystemContent string        `yaml:"defaultSystemContent" env:"DEFAULT_SYSTEM_CONTENT"`
	Classification       string        `yaml:"classification" env:"CLASSIFICATION"`
	OllamaURL            string        `yaml:"ollamaUrl" env:"OLLAMA_URL"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Port    uint16 `yaml:"port" env:"METRICS_PORT"`
}

// Default returns the default config.
func Default() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         3000,
		APIKeyHeader: gate.DefaultHeader,

		Inference: InferenceConfig{
			BaseURL:              inference.DefaultBaseURL,
			Model:                "meta-llama/Llama-3.1-8B-Instruct",
			Provider:             "hf-inference",
			MaxTokens:            500,
			Timeout:              60 * time.Second,
			DefaultSystemContent: usecase.DefaultSystemContent,
			Classification:       string(usecase.ClassifyAsBuilt),
			OllamaURL:            "http://localhost:11434",
		},

		Prometheus: PrometheusConfig{
			Enabled: false,
			Port:    9090,
		},

		LogLevel:  slog.LevelInfo,
		LogFormat: LogFormatJSON,
	}
}

// Read reads a YAML config file on top of the defaults. An empty path
// returns the defaults.
func Read(path string) (*Config, error) {
	config := Default()
	if strings.TrimSpace(path) == "" {
		return config, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return config, nil
}

// PopulateFromEnvironment overrides the config with values from environment
// variables. Unset variables leave the current values untouched.
func (c *Config) PopulateFromEnvironment() error {
	return env.Parse(c)
}

// Load reads the optional config file and applies environment overrides.
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := config.PopulateFromEnvironment(); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port == 0 {
		return errors.New("config: port must not be zero")
	}
	if strings.TrimSpace(c.APIKeyHeader) == "" {
		return errors.New("config: api key header must not be empty")
	}
	if strings.TrimSpace(c.Inference.Model) == "" {
		return errors.New("config: inference model must not be empty")
	}
	if c.Inference.MaxTokens <= 0 {
		return errors.New("config: max tokens must be positive")
	}
	if c.Inference.Timeout < 0 {
		return errors.New("config: upstream timeout must not be negative")
	}
	if _, err := usecase.ParseClassification(c.Inference.Classification); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Prometheus.Enabled && c.Prometheus.Port == 0 {
		return errors.New("config: metrics port must not be zero")
	}
	switch c.LogFormat {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// UsesOllama reports whether completions go to an Ollama server.
func (c *Config) UsesOllama() bool {
	return strings.EqualFold(strings.TrimSpace(c.Inference.Provider), ProviderOllama)
}
