package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const sslModeDisable = "disable"

// DBConfig hosts configuration fields of the database.
type DBConfig struct {
	User       string `json:"user"`
	Password   string `json:"password"`
	Migrations string `json:"migrations"`
	Host       string `json:"host"`
	Port       string `json:"port"`
	Name       string `json:"name"`
	SSLMode    string `json:"ssl_mode"`
}

// DefaultDBConfig returns the default configuration of the database.
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		Migrations: "file://static/migrations",
		Host:       "localhost",
		Port:       "5432",
		Name:       "alignd",
		SSLMode:    sslModeDisable,
	}
}

// StorageConfig hosts configuration fields for the S3-compatible object store.
type StorageConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Secure    bool   `json:"secure"`
}

// QueueConfig hosts configuration fields for the NATS job queue.
type QueueConfig struct {
	URL     string `json:"url"`
	Stream  string `json:"stream"`
	Subject string `json:"subject"`
	Durable string `json:"durable"`
}

// MirrorConfig hosts configuration fields for the local model repository mirror.
type MirrorConfig struct {
	Path      string        `json:"path"`
	RemoteURL string        `json:"remote_url"`
	Timeout   time.Duration `json:"timeout"`
}

// SecurityConfig hosts token signing configuration.
type SecurityConfig struct {
	TokenKey string `json:"token_key"`
}

// WorkerConfig hosts configuration fields for the alignment worker.
type WorkerConfig struct {
	HardTimeLimit time.Duration `json:"hard_time_limit"`
	SoftTimeLimit time.Duration `json:"soft_time_limit"`
	MaxRetries    uint64        `json:"max_retries"`
	RetryBackoff  time.Duration `json:"retry_backoff"`
}

// Config is the configuration of the alignd master and worker.
type Config struct {
	Port     int            `json:"port"`
	LogLevel string         `json:"log_level"`
	DB       *DBConfig      `json:"db"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Mirror   MirrorConfig   `json:"mirror"`
	Security SecurityConfig `json:"security"`
	Worker   WorkerConfig   `json:"worker"`
}

// DefaultConfig returns the default configuration of alignd.
func DefaultConfig() *Config {
	return &Config{
		Port:     8080,
		LogLevel: "info",
		DB:       DefaultDBConfig(),
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "alignment-storage",
			Region:   "us-east-1",
		},
		Queue: QueueConfig{
			URL:     "nats://localhost:4222",
			Stream:  "ALIGNMENT",
			Subject: "alignment.jobs",
			Durable: "alignd-worker",
		},
		Mirror: MirrorConfig{
			Path:      "/var/lib/alignd/mfa-models",
			RemoteURL: "https://github.com/MontrealCorpusTools/mfa-models.git",
			Timeout:   5 * time.Minute,
		},
		Worker: WorkerConfig{
			HardTimeLimit: 30 * time.Minute,
			SoftTimeLimit: 25 * time.Minute,
			MaxRetries:    1,
			RetryBackoff:  time.Minute,
		},
	}
}

// Validate checks that the configuration is self-consistent.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port: %d", c.Port)
	}
	if c.DB == nil {
		return errors.New("database configuration is required")
	}
	if c.DB.User == "" || c.DB.Name == "" {
		return errors.New("database user and name are required")
	}
	if c.Security.TokenKey == "" {
		return errors.New("security.token_key is required")
	}
	if c.Worker.SoftTimeLimit > c.Worker.HardTimeLimit {
		return fmt.Errorf(
			"worker soft time limit %s exceeds hard limit %s",
			c.Worker.SoftTimeLimit, c.Worker.HardTimeLimit,
		)
	}
	return nil
}
