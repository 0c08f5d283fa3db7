package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Provider ProviderConfig `yaml:"provider"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Export   ExportConfig   `yaml:"export"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ProviderConfig configures the external face capability: a
// DeepFace-compatible HTTP endpoint for detection and embeddings, and the
// collection name scoping the indexed identities.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Detector   string        `yaml:"detector"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	WorkerCount     int           `yaml:"worker_count"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	ReindexOnRename bool          `yaml:"reindex_on_rename"`
	JobRetention    time.Duration `yaml:"job_retention"`
}

type ExportConfig struct {
	BlurSigma   float64 `yaml:"blur_sigma"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

type SearchConfig struct {
	Threshold       float64 `yaml:"threshold"`
	Limit           int     `yaml:"limit"`
	ExcludeRejected bool    `yaml:"exclude_rejected"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "Facenet512"
	}
	if cfg.Provider.Detector == "" {
		cfg.Provider.Detector = "retinaface"
	}
	if cfg.Provider.Collection == "" {
		cfg.Provider.Collection = "privacyguard"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Pipeline.WorkerCount == 0 {
		cfg.Pipeline.WorkerCount = 4
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 5
	}
	if cfg.Pipeline.BackoffBase == 0 {
		cfg.Pipeline.BackoffBase = 2 * time.Second
	}
	if cfg.Pipeline.BackoffMax == 0 {
		cfg.Pipeline.BackoffMax = 2 * time.Minute
	}
	if cfg.Pipeline.JobRetention == 0 {
		cfg.Pipeline.JobRetention = 24 * time.Hour
	}
	if cfg.Export.BlurSigma == 0 {
		cfg.Export.BlurSigma = 15
	}
	if cfg.Export.JPEGQuality == 0 {
		cfg.Export.JPEGQuality = 90
	}
	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = 0.4
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PG_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PG_PROVIDER_COLLECTION"); v != "" {
		cfg.Provider.Collection = v
	}
	if v := os.Getenv("PG_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.WorkerCount = n
		}
	}
}
