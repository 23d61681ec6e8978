// Package config provides configuration management for the uprelay system.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Journal JournalConfig `mapstructure:"journal"`
	Web     WebConfig     `mapstructure:"web"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend string        `mapstructure:"backend"` // local, s3
	Local   LocalConfig   `mapstructure:"local"`
	S3      S3Config      `mapstructure:"s3"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Listing ListingConfig `mapstructure:"listing"`
}

// LocalConfig holds local filesystem backend configuration.
type LocalConfig struct {
	Root string `mapstructure:"root"`
}

// S3Config holds remote object store configuration.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
}

// UploadConfig holds upload handler configuration.
type UploadConfig struct {
	MaxBatchFiles int           `mapstructure:"max_batch_files"`
	SignedURLTTL  time.Duration `mapstructure:"signed_url_ttl"`
}

// ListingConfig holds listing aggregator configuration.
type ListingConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// JournalConfig holds upload journal configuration.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// WebConfig holds static asset configuration.
type WebConfig struct {
	AssetsDir string `mapstructure:"assets_dir"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	Development bool   `mapstructure:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":3000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "local",
			Local: LocalConfig{
				Root: "./data/uploads",
			},
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "uprelay-files",
			},
			Upload: UploadConfig{
				MaxBatchFiles: 20,
				SignedURLTTL:  60 * time.Second,
			},
			Listing: ListingConfig{
				PageSize: 100,
			},
		},
		Journal: JournalConfig{
			Path: "./data/journal",
		},
		Web: WebConfig{
			AssetsDir: "./web",
		},
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "json",
			Output:      "stdout",
			Development: false,
		},
	}
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure Viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UPRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Server defaults
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)

	// Storage defaults
	v.SetDefault("storage.backend", defaults.Storage.Backend)
	v.SetDefault("storage.local.root", defaults.Storage.Local.Root)
	v.SetDefault("storage.s3.endpoint", defaults.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.region", defaults.Storage.S3.Region)
	v.SetDefault("storage.s3.access_key", defaults.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", defaults.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.bucket", defaults.Storage.S3.Bucket)
	v.SetDefault("storage.upload.max_batch_files", defaults.Storage.Upload.MaxBatchFiles)
	v.SetDefault("storage.upload.signed_url_ttl", defaults.Storage.Upload.SignedURLTTL)
	v.SetDefault("storage.listing.page_size", defaults.Storage.Listing.PageSize)

	// Journal defaults
	v.SetDefault("journal.path", defaults.Journal.Path)

	// Web defaults
	v.SetDefault("web.assets_dir", defaults.Web.AssetsDir)

	// Logger defaults
	v.SetDefault("logger.level", defaults.Logger.Level)
	v.SetDefault("logger.format", defaults.Logger.Format)
	v.SetDefault("logger.output", defaults.Logger.Output)
	v.SetDefault("logger.development", defaults.Logger.Development)
}
