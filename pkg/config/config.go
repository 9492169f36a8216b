package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the bot configuration
type Config struct {
	SessionID   string          `yaml:"session_id"`
	Prefix      string          `yaml:"prefix"`
	Port        int             `yaml:"port"`
	AdminAPIKey string          `yaml:"admin_api_key"`
	OwnerNumber string          `yaml:"owner_number"`
	ExternalURL string          `yaml:"external_url"`
	AuthDir     string          `yaml:"auth_dir"`
	Repo        RepoConfig      `yaml:"repo"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
	Database    DatabaseConfig  `yaml:"database"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// RepoConfig represents the provisioning repository settings
type RepoConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ReconnectConfig represents reconnect behaviour settings
type ReconnectConfig struct {
	DelaySeconds int `yaml:"delay_seconds"`
}

// DatabaseConfig represents analytics database settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Prefix:  ".",
		Port:    3000,
		AuthDir: "./auth_data",
		Reconnect: ReconnectConfig{
			DelaySeconds: 5,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./analytics.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	if sessionID := os.Getenv("SESSION_ID"); sessionID != "" {
		config.SessionID = sessionID
	}

	if prefix := os.Getenv("PREFIX"); prefix != "" {
		config.Prefix = prefix
	}

	if port := os.Getenv("PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			config.Port = val
		}
	}

	if apiKey := os.Getenv("ADMIN_API_KEY"); apiKey != "" {
		config.AdminAPIKey = apiKey
	}

	if owner := os.Getenv("OWNER_NUMBER"); owner != "" {
		config.OwnerNumber = owner
	}

	if url := os.Getenv("REPO_URL"); url != "" {
		config.Repo.URL = url
	}

	if token := os.Getenv("REPO_TOKEN"); token != "" {
		config.Repo.Token = token
	}

	if url := os.Getenv("EXTERNAL_URL"); url != "" {
		config.ExternalURL = url
	}

	if dir := os.Getenv("AUTH_DIR"); dir != "" {
		config.AuthDir = dir
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}

	if c.Repo.URL == "" {
		return fmt.Errorf("repo url cannot be empty")
	}

	if c.Repo.Token == "" {
		return fmt.Errorf("repo token cannot be empty")
	}

	if c.AdminAPIKey == "" {
		return fmt.Errorf("admin_api_key cannot be empty")
	}

	if c.Prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}

	if c.Reconnect.DelaySeconds < 1 {
		return fmt.Errorf("reconnect delay must be at least 1 second")
	}

	switch c.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Session: %s, Prefix: %q, Port: %d, DB: %s, LogLevel: %s}",
		c.SessionID, c.Prefix, c.Port, c.Database.Type, c.Logging.Level)
}
