// Package config loads service and CLI settings from defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends accepted by StoreBackend.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendBigQuery  = "bigquery"
)

// Defaults used when neither the config file nor the environment set a value.
const (
	DefaultPort        = "8080"
	DefaultUserID      = "local-user"
	DefaultDataset     = "finance"
	DefaultCachePath   = "statement-cache.db"
	DefaultAPIBaseURL  = "http://localhost:8080"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultWorkerCount = 5
	DefaultQueueSize   = 100
	DefaultLogLevel    = "info"
)

// Config holds every tunable of the ingest service and CLI.
type Config struct {
	Port         string   `yaml:"port"`
	Bucket       string   `yaml:"bucket"`
	StoreBackend string   `yaml:"store_backend"`
	ProjectID    string   `yaml:"project_id"`
	Dataset      string   `yaml:"dataset"`
	CachePath    string   `yaml:"cache_path"`
	APIBaseURL   string   `yaml:"api_base_url"`
	UserID       string   `yaml:"user_id"`
	GeminiAPIKey string   `yaml:"gemini_api_key"`
	GeminiModel  string   `yaml:"gemini_model"`
	WorkerCount  int      `yaml:"worker_count"`
	QueueSize    int      `yaml:"queue_size"`
	MaxRetries   int      `yaml:"max_retries"`
	LogLevel     string   `yaml:"log_level"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Port:         DefaultPort,
		StoreBackend: BackendMemory,
		Dataset:      DefaultDataset,
		CachePath:    DefaultCachePath,
		APIBaseURL:   DefaultAPIBaseURL,
		UserID:       DefaultUserID,
		GeminiModel:  DefaultGeminiModel,
		WorkerCount:  DefaultWorkerCount,
		QueueSize:    DefaultQueueSize,
		LogLevel:     DefaultLogLevel,
	}
}

// Load builds a Config. path may be empty; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PORT":                 &c.Port,
		"GCS_BUCKET":           &c.Bucket,
		"STORE_BACKEND":        &c.StoreBackend,
		"GOOGLE_CLOUD_PROJECT": &c.ProjectID,
		"BQ_DATASET":           &c.Dataset,
		"CACHE_PATH":           &c.CachePath,
		"API_BASE_URL":         &c.APIBaseURL,
		"DEFAULT_USER_ID":      &c.UserID,
		"GEMINI_API_KEY":       &c.GeminiAPIKey,
		"GEMINI_MODEL":         &c.GeminiModel,
		"LOG_LEVEL":            &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"WORKER_COUNT": &c.WorkerCount,
		"QUEUE_SIZE":   &c.QueueSize,
		"MAX_RETRIES":  &c.MaxRetries,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.CORSOrigins = c.CORSOrigins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	return nil
}

// Validate checks value ranges and the backend name.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFirestore, BackendBigQuery:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend != BackendMemory && c.ProjectID == "" {
		return fmt.Errorf("config: GOOGLE_CLOUD_PROJECT is required for the %s backend", c.StoreBackend)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("config: worker count must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("config: queue size must be positive, got %d", c.QueueSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}
