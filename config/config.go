// Package config provides configuration loading and management for authprobe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values used when no layer overrides them.
const (
	DefaultBaseURL        = "http://localhost:8080/auth"
	DefaultEmail          = "authprobe@example.com"
	DefaultPassword       = "Test1234!"
	DefaultName           = "Test User"
	DefaultRequestTimeout = 30 * time.Second
	DefaultStageTimeout   = 30 * time.Second
	DefaultGlobalTimeout  = 5 * time.Minute
	DefaultReadyTimeout   = 30 * time.Second
	DefaultLogLevel       = "warn"
	DefaultMetricsJob     = "authprobe"
	DefaultNATSSubject    = "authprobe.results"
)

// Config represents the complete authprobe configuration
type Config struct {
	// BaseURL is the auth API root, e.g. http://localhost:8080/auth
	BaseURL     string      `yaml:"base_url" validate:"required,url"`
	Credentials Credentials `yaml:"credentials"`

	// UniqueEmail replaces the configured email with a uuid-tagged one per run
	UniqueEmail bool `yaml:"unique_email"`

	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	StageTimeout   time.Duration `yaml:"stage_timeout" validate:"gt=0"`
	GlobalTimeout  time.Duration `yaml:"global_timeout" validate:"gt=0"`

	// WaitForReady polls the service before the first scenario starts
	WaitForReady bool          `yaml:"wait_for_ready"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" validate:"gt=0"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Metrics MetricsConfig `yaml:"metrics"`
	NATS    NATSConfig    `yaml:"nats"`

	// switches holds the booleans a file or env layer set explicitly.
	switches switches
}

// switches records which booleans a layer set, so an explicit false
// overrides an earlier true.
type switches struct {
	UniqueEmail  *bool `yaml:"unique_email"`
	WaitForReady *bool `yaml:"wait_for_ready"`
}

// Credentials are the account details used by the scenarios.
type Credentials struct {
	Email    string `yaml:"email" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
}

// MetricsConfig configures optional Prometheus export
type MetricsConfig struct {
	// TextfilePath writes metrics in node-exporter textfile format (empty = disabled)
	TextfilePath string `yaml:"textfile_path"`
	// PushgatewayURL pushes metrics after the run (empty = disabled)
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

// NATSConfig configures optional publication of run reports
type NATSConfig struct {
	// URL is the NATS server URL (empty = disabled)
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Credentials: Credentials{
			Email:    DefaultEmail,
			Password: DefaultPassword,
			Name:     DefaultName,
		},
		RequestTimeout: DefaultRequestTimeout,
		StageTimeout:   DefaultStageTimeout,
		GlobalTimeout:  DefaultGlobalTimeout,
		ReadyTimeout:   DefaultReadyTimeout,
		LogLevel:       DefaultLogLevel,
		Metrics: MetricsConfig{
			Job: DefaultMetricsJob,
		},
		NATS: NATSConfig{
			Subject: DefaultNATSSubject,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldMessage turns a validator failure into a yaml-keyed message.
func fieldMessage(fe validator.FieldError) string {
	field := yamlPath(fe.StructNamespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt":
		return fmt.Sprintf("%s must be positive", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

var yamlKeys = map[string]string{
	"BaseURL":        "base_url",
	"Credentials":    "credentials",
	"Email":          "email",
	"Password":       "password",
	"Name":           "name",
	"RequestTimeout": "request_timeout",
	"StageTimeout":   "stage_timeout",
	"GlobalTimeout":  "global_timeout",
	"ReadyTimeout":   "ready_timeout",
	"LogLevel":       "log_level",
	"Metrics":        "metrics",
	"PushgatewayURL": "pushgateway_url",
}

// yamlPath maps "Config.Credentials.Email" to "credentials.email".
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if key, ok := yamlKeys[p]; ok {
			parts[i] = key
		}
	}
	return strings.Join(parts, ".")
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal onto a zero Config so Merge only sees keys the file sets.
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config.switches); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Credentials may be real, keep the file private.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.BaseURL != "" {
		c.BaseURL = strings.TrimRight(other.BaseURL, "/")
	}

	// Credentials
	if other.Credentials.Email != "" {
		c.Credentials.Email = other.Credentials.Email
	}
	if other.Credentials.Password != "" {
		c.Credentials.Password = other.Credentials.Password
	}
	if other.Credentials.Name != "" {
		c.Credentials.Name = other.Credentials.Name
	}
	c.UniqueEmail = mergeBool(c.UniqueEmail, other.UniqueEmail, other.switches.UniqueEmail)

	// Timeouts
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.StageTimeout != 0 {
		c.StageTimeout = other.StageTimeout
	}
	if other.GlobalTimeout != 0 {
		c.GlobalTimeout = other.GlobalTimeout
	}
	c.WaitForReady = mergeBool(c.WaitForReady, other.WaitForReady, other.switches.WaitForReady)
	if other.ReadyTimeout != 0 {
		c.ReadyTimeout = other.ReadyTimeout
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	// Metrics
	if other.Metrics.TextfilePath != "" {
		c.Metrics.TextfilePath = other.Metrics.TextfilePath
	}
	if other.Metrics.PushgatewayURL != "" {
		c.Metrics.PushgatewayURL = other.Metrics.PushgatewayURL
	}
	if other.Metrics.Job != "" {
		c.Metrics.Job = other.Metrics.Job
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
}

// mergeBool prefers an explicitly set value and otherwise only lets true win.
func mergeBool(current, other bool, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	return current || other
}
