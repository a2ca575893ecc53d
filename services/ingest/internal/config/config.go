package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location; INGEST_CONFIG overrides it.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	DatabaseURL   string `yaml:"databaseURL"`
	InternalToken string `yaml:"internalToken"`

	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	QueueName              string `yaml:"queueName"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	SearchURL            string `yaml:"searchURL"`
	SearchUsername       string `yaml:"searchUsername"`
	SearchPassword       string `yaml:"searchPassword"`
	SearchIndex          string `yaml:"searchIndex"`
	SearchTimeoutSeconds int    `yaml:"searchTimeoutSeconds"`

	PrecountMessages bool   `yaml:"precountMessages"`
	ProgressEvery    int    `yaml:"progressEvery"`
	TempDir          string `yaml:"tempDir"`
}

func defaults() FileConfig {
	return FileConfig{
		LogLevel:             "info",
		QueueName:            "vericase:ingest",
		QueueGroup:           "ingest-workers",
		QueueConcurrency:     1,
		QueueMaxRetries:      3,
		SearchIndex:          "correspondence",
		SearchTimeoutSeconds: 10,
		PrecountMessages:     true,
		ProgressEvery:        100,
	}
}

// Path returns INGEST_CONFIG when set, else ConfigPath.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("INGEST_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to Path()). Keys missing from the
// file keep their defaults.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(&cfg.Port, "INGEST_PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.InternalToken, "INGEST_INTERNAL_TOKEN")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.QueueName, "INGEST_QUEUE_NAME")
	setString(&cfg.QueueGroup, "INGEST_QUEUE_GROUP")
	setInt(&cfg.QueueConcurrency, "INGEST_QUEUE_CONCURRENCY")
	setInt(&cfg.QueueMaxRetries, "INGEST_QUEUE_MAX_RETRIES")
	setInt(&cfg.QueueRetryDelaySeconds, "INGEST_QUEUE_RETRY_DELAY_SECONDS")

	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")

	setString(&cfg.SearchURL, "SEARCH_URL")
	setString(&cfg.SearchUsername, "SEARCH_USERNAME")
	setString(&cfg.SearchPassword, "SEARCH_PASSWORD")
	setString(&cfg.SearchIndex, "SEARCH_INDEX")
	setInt(&cfg.SearchTimeoutSeconds, "SEARCH_TIMEOUT_SECONDS")

	setBool(&cfg.PrecountMessages, "INGEST_PRECOUNT_MESSAGES")
	setInt(&cfg.ProgressEvery, "INGEST_PROGRESS_EVERY")
	setString(&cfg.TempDir, "INGEST_TEMP_DIR")
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or INGEST_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.InternalToken) == "" {
		return errors.New("config: internalToken is required (set in config.yaml or INGEST_INTERNAL_TOKEN)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint and minioBucket are required (set in config.yaml or MINIO_ENDPOINT/MINIO_BUCKET)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	if cfg.QueueConcurrency <= 0 {
		return errors.New("config: queueConcurrency must be > 0 (set in config.yaml or INGEST_QUEUE_CONCURRENCY)")
	}
	if cfg.QueueMaxRetries < 0 {
		return errors.New("config: queueMaxRetries must be >= 0")
	}
	if cfg.QueueRetryDelaySeconds < 0 {
		return errors.New("config: queueRetryDelaySeconds must be >= 0")
	}
	if cfg.SearchURL != "" && strings.TrimSpace(cfg.SearchIndex) == "" {
		return errors.New("config: searchIndex is required when searchURL is set")
	}
	if cfg.SearchTimeoutSeconds < 0 {
		return errors.New("config: searchTimeoutSeconds must be >= 0")
	}
	if cfg.ProgressEvery <= 0 {
		return errors.New("config: progressEvery must be > 0 (set in config.yaml or INGEST_PROGRESS_EVERY)")
	}
	return nil
}
