package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/chatmig/internal/db"
)

// Config represents the application configuration
type Config struct {
	SourceDriver   string `yaml:"source_driver"`
	SourceDSN      string `yaml:"source_dsn"`
	TransferDriver string `yaml:"transfer_driver"`
	TransferDSN    string `yaml:"transfer_dsn"`

	IncludeFileTransfer   bool   `yaml:"include_file_transfer"`
	// FileServerHost is the first file server dialled. A file:// directory
	// replaces the servers named by transfer records.
	FileServerHost        string `yaml:"file_server_host"`
	FileServerUser        string `yaml:"file_server_user"`
	FileServerPassword    string `yaml:"file_server_password"`
	FileServerKnownHosts  string `yaml:"file_server_known_hosts"`
	CreateRooms           bool   `yaml:"create_rooms"`
	CheckExistingRooms    bool   `yaml:"check_existing_rooms"`
	APIBaseURL            string `yaml:"api_base_url"`
	APIToken              string `yaml:"api_token"`
	SourceDomain          string `yaml:"source_domain"`
	DestDomain            string `yaml:"dest_domain"`
	LogDir                string `yaml:"log_dir"`
	DownloadDir           string `yaml:"download_dir"`
	LogLevel              string `yaml:"log_level"`
	CorrelationWindow     int    `yaml:"correlation_window_seconds"`
	MaxAttachmentBytes    int64  `yaml:"max_attachment_bytes"`
	DefaultRetryAfterSecs int    `yaml:"default_retry_after_seconds"`
	HTTPTimeoutSecs       int    `yaml:"http_timeout_seconds"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		SourceDriver:          db.DriverSQLite,
		CreateRooms:           true,
		APIBaseURL:            "https://webexapis.com/v1",
		LogDir:                "logs",
		DownloadDir:           "file-transfer",
		LogLevel:              "info",
		CorrelationWindow:     3,
		MaxAttachmentBytes:    100_000_000,
		DefaultRetryAfterSecs: 1,
		HTTPTimeoutSecs:       60,
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/chatmig/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := Defaults()

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional, but a present file must parse
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.TransferDSN == "" {
		// The transfer log usually lives beside the archive
		cfg.TransferDriver = cfg.SourceDriver
		cfg.TransferDSN = cfg.SourceDSN
	}
	if cfg.TransferDriver == "" {
		cfg.TransferDriver = cfg.SourceDriver
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.SourceDriver, os.Getenv("CHATMIG_SOURCE_DRIVER"))
	setString(&cfg.SourceDSN, getEnvOrFile("CHATMIG_SOURCE_DSN", "CHATMIG_SOURCE_DSN_FILE"))
	setString(&cfg.TransferDriver, os.Getenv("CHATMIG_TRANSFER_DRIVER"))
	setString(&cfg.TransferDSN, getEnvOrFile("CHATMIG_TRANSFER_DSN", "CHATMIG_TRANSFER_DSN_FILE"))
	setString(&cfg.FileServerHost, os.Getenv("CHATMIG_FILE_SERVER_HOST"))
	setString(&cfg.FileServerUser, os.Getenv("CHATMIG_FILE_SERVER_USER"))
	setString(&cfg.FileServerPassword, getEnvOrFile("CHATMIG_FILE_SERVER_PASSWORD", "CHATMIG_FILE_SERVER_PASSWORD_FILE"))
	setString(&cfg.FileServerKnownHosts, os.Getenv("CHATMIG_FILE_SERVER_KNOWN_HOSTS"))
	setString(&cfg.APIBaseURL, os.Getenv("CHATMIG_API_BASE_URL"))
	setString(&cfg.APIToken, getEnvOrFile("CHATMIG_API_TOKEN", "CHATMIG_API_TOKEN_FILE"))
	setString(&cfg.SourceDomain, os.Getenv("CHATMIG_SOURCE_DOMAIN"))
	setString(&cfg.DestDomain, os.Getenv("CHATMIG_DEST_DOMAIN"))
	setString(&cfg.LogDir, os.Getenv("CHATMIG_LOG_DIR"))
	setString(&cfg.DownloadDir, os.Getenv("CHATMIG_DOWNLOAD_DIR"))
	setString(&cfg.LogLevel, os.Getenv("CHATMIG_LOG_LEVEL"))

	bools := []struct {
		name string
		dst  *bool
	}{
		{"CHATMIG_INCLUDE_FILE_TRANSFER", &cfg.IncludeFileTransfer},
		{"CHATMIG_CREATE_ROOMS", &cfg.CreateRooms},
		{"CHATMIG_CHECK_EXISTING_ROOMS", &cfg.CheckExistingRooms},
	}
	for _, b := range bools {
		if v := os.Getenv(b.name); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			*b.dst = parsed
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"CHATMIG_CORRELATION_WINDOW_SECONDS", &cfg.CorrelationWindow},
		{"CHATMIG_DEFAULT_RETRY_AFTER_SECONDS", &cfg.DefaultRetryAfterSecs},
		{"CHATMIG_HTTP_TIMEOUT_SECONDS", &cfg.HTTPTimeoutSecs},
	}
	for _, i := range ints {
		if v := os.Getenv(i.name); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.name, err)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv("CHATMIG_MAX_ATTACHMENT_BYTES"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHATMIG_MAX_ATTACHMENT_BYTES: %w", err)
		}
		cfg.MaxAttachmentBytes = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports configuration that cannot drive a run.
func (c *Config) Validate() error {
	for _, d := range []struct{ name, driver string }{
		{"source_driver", c.SourceDriver},
		{"transfer_driver", c.TransferDriver},
	} {
		switch d.driver {
		case db.DriverSQLite, db.DriverPostgres, "":
		default:
			return fmt.Errorf("%s: unsupported driver %q (want %s or %s)", d.name, d.driver, db.DriverSQLite, db.DriverPostgres)
		}
	}
	if c.SourceDSN == "" {
		return fmt.Errorf("source_dsn is required")
	}
	if c.CorrelationWindow < 0 {
		return fmt.Errorf("correlation_window_seconds must not be negative, got %d", c.CorrelationWindow)
	}
	if c.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("max_attachment_bytes must be positive, got %d", c.MaxAttachmentBytes)
	}
	if c.DefaultRetryAfterSecs < 0 {
		return fmt.Errorf("default_retry_after_seconds must not be negative, got %d", c.DefaultRetryAfterSecs)
	}
	if c.CreateRooms && c.APIToken == "" {
		return fmt.Errorf("api_token is required when create_rooms is enabled (set CHATMIG_API_TOKEN)")
	}
	return nil
}

// HTTPTimeout returns the per-request timeout for the destination API.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// DefaultRetryAfter returns the wait used when a 429 names none.
func (c *Config) DefaultRetryAfter() time.Duration {
	return time.Duration(c.DefaultRetryAfterSecs) * time.Second
}

// loadYAMLConfig loads configuration from ~/.config/chatmig/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "chatmig", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
