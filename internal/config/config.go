package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/granton/logtrace/internal/logger"
)

type Config struct {
	Env            string `env:"APP_ENV"`
	ServiceName    string `env:"SERVICE_NAME"`
	ServiceVersion string `env:"SERVICE_VERSION"`

	LoggerName string `env:"LOGGER_NAME"`
	LogLevel   string `env:"LOG_LEVEL"`
	LogFormat  string `env:"LOG_FORMAT"`
	LogOutput  string `env:"LOG_OUTPUT"`
	LogExport  bool   `env:"LOG_EXPORT"`

	AppInsightConnectionString string `env:"APP_INSIGHT_CONNECTION_STRING"`
	OtelExporterOTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceConsole               bool   `env:"TRACE_CONSOLE"`

	HTTPXTimeout int `env:"HTTPX_TIMEOUT"`
	HTTPRetryMax int `env:"HTTP_RETRY_MAX"`

	SentryDSN string `env:"SENTRY_DSN"`

	Port string `env:"PORT"`
}

// Load builds the configuration from config.yaml (if present) and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{HTTPRetryMax: -1}

	// Load from YAML file if available
	if err := cfg.LoadFromYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type yamlConfig struct {
	Env     string `yaml:"env"`
	Service struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Port    string `yaml:"port"`
	} `yaml:"service"`
	Logging struct {
		Name   string `yaml:"name"`
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		Export bool   `yaml:"export"`
	} `yaml:"logging"`
	Tracing struct {
		ConnectionString string `yaml:"connection_string"`
		OTLPEndpoint     string `yaml:"otlp_endpoint"`
		Console          bool   `yaml:"console"`
	} `yaml:"tracing"`
	HTTPClient struct {
		TimeoutSeconds int  `yaml:"timeout_seconds"`
		RetryMax       *int `yaml:"retry_max"`
	} `yaml:"http_client"`
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&c.Env, y.Env)
	setString(&c.ServiceName, y.Service.Name)
	setString(&c.ServiceVersion, y.Service.Version)
	setString(&c.Port, y.Service.Port)
	setString(&c.LoggerName, y.Logging.Name)
	setString(&c.LogLevel, y.Logging.Level)
	setString(&c.LogFormat, y.Logging.Format)
	setString(&c.LogOutput, y.Logging.Output)
	setString(&c.AppInsightConnectionString, y.Tracing.ConnectionString)
	setString(&c.OtelExporterOTLPEndpoint, y.Tracing.OTLPEndpoint)
	if y.Logging.Export {
		c.LogExport = true
	}
	if y.Tracing.Console {
		c.TraceConsole = true
	}
	if y.HTTPClient.TimeoutSeconds > 0 {
		c.HTTPXTimeout = y.HTTPClient.TimeoutSeconds
	}
	if y.HTTPClient.RetryMax != nil {
		c.HTTPRetryMax = *y.HTTPClient.RetryMax
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) SetDefaults() {
	if c.Env == "" {
		c.Env = "prod"
	}
	if c.ServiceName == "" {
		c.ServiceName = "logtrace"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.LoggerName == "" {
		c.LoggerName = "investment_bot_logger"
	}
	if c.LogLevel == "" {
		c.LogLevel = "DEBUG"
	}
	if c.LogFormat == "" {
		c.LogFormat = string(logger.FormatStandard)
	}
	if c.LogOutput == "" {
		c.LogOutput = "stdout"
	}
	if c.HTTPXTimeout <= 0 {
		c.HTTPXTimeout = 30
	}
	if c.HTTPRetryMax < 0 {
		c.HTTPRetryMax = 3
	}
	if c.Port == "" {
		c.Port = "8080"
	}
}

// HTTPClientTimeout is HTTPX_TIMEOUT as a duration.
func (c *Config) HTTPClientTimeout() time.Duration {
	return time.Duration(c.HTTPXTimeout) * time.Second
}

// Level is LOG_LEVEL parsed into a slog level.
func (c *Config) Level() (slog.Level, error) {
	return logger.ParseLevel(c.LogLevel)
}

func (c *Config) validate() error {
	switch logger.Format(c.LogFormat) {
	case logger.FormatStandard, logger.FormatJSON:
	default:
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", logger.FormatStandard, logger.FormatJSON, c.LogFormat)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}
