package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "authprobe.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/authprobe"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is loaded from the working directory when present
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "AUTHPROBE_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	homeDir func() (string, error)
	workDir func() (string, error)
	getenv  func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
		getenv:  os.Getenv,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/authprobe/config.yaml)
// 3. Project config (authprobe.yaml in current or parent directories)
// 4. .env file in the working directory
// 5. AUTHPROBE_* environment variables
//
// An explicit path replaces layers 2 and 3. CLI flags are applied by the caller.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	if explicitPath != "" {
		fileConfig, err := LoadFromFile(explicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", explicitPath))
		config.Merge(fileConfig)
	} else {
		l.loadLayer(config, l.userConfigPath(), "user")
		if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
			l.loadLayer(config, projectConfigPath, "project")
		} else {
			l.logger.Debug("No project config found")
		}
	}

	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	envConfig, err := l.fromEnv()
	if err != nil {
		return nil, err
	}
	config.Merge(envConfig)

	return config, nil
}

// loadLayer merges a config file, tolerating a missing or broken file.
func (l *Loader) loadLayer(config *Config, path, layer string) {
	if path == "" {
		return
	}
	fileConfig, err := LoadFromFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("Config layer absent", slog.String("layer", layer), slog.String("path", path))
			return
		}
		l.logger.Warn("Failed to load config", slog.String("layer", layer), slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("Loaded config", slog.String("layer", layer), slog.String("path", path))
	config.Merge(fileConfig)
}

// loadDotEnv copies .env entries into the process environment.
// Variables already set in the environment are left untouched.
func (l *Loader) loadDotEnv() error {
	cwd, err := l.workDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(cwd, EnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	l.logger.Debug("Loaded env file", slog.String("path", path))
	return nil
}

// fromEnv builds a partial config from AUTHPROBE_* variables.
func (l *Loader) fromEnv() (*Config, error) {
	c := &Config{
		BaseURL: l.getenv(EnvPrefix + "BASE_URL"),
		Credentials: Credentials{
			Email:    l.getenv(EnvPrefix + "EMAIL"),
			Password: l.getenv(EnvPrefix + "PASSWORD"),
			Name:     l.getenv(EnvPrefix + "NAME"),
		},
		LogLevel: l.getenv(EnvPrefix + "LOG_LEVEL"),
		Metrics: MetricsConfig{
			TextfilePath:   l.getenv(EnvPrefix + "METRICS_FILE"),
			PushgatewayURL: l.getenv(EnvPrefix + "PUSHGATEWAY_URL"),
			Job:            l.getenv(EnvPrefix + "METRICS_JOB"),
		},
		NATS: NATSConfig{
			URL:     l.getenv(EnvPrefix + "NATS_URL"),
			Subject: l.getenv(EnvPrefix + "NATS_SUBJECT"),
		},
	}

	var err error
	if c.switches.UniqueEmail, err = l.envBool("UNIQUE_EMAIL"); err != nil {
		return nil, err
	}
	if c.switches.WaitForReady, err = l.envBool("WAIT_FOR_READY"); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"STAGE_TIMEOUT", &c.StageTimeout},
		{"GLOBAL_TIMEOUT", &c.GlobalTimeout},
		{"READY_TIMEOUT", &c.ReadyTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = l.envDuration(d.key); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// envBool returns nil when the variable is unset.
func (l *Loader) envBool(key string) (*bool, error) {
	raw := l.getenv(EnvPrefix + key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return &v, nil
}

func (l *Loader) envDuration(key string) (time.Duration, error) {
	raw := l.getenv(EnvPrefix + key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for authprobe.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
