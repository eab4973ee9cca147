// Package config loads service configuration from an optional YAML file
// with environment overrides.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "ASAP_CONFIG"
	portEnv       = "PORT"
	dbPathEnv     = "ASAP_DB_PATH"
	natsURLEnv    = "ASAP_NATS_URL"
	qdrantEnv     = "ASAP_QDRANT_ADDR"
	ollamaURLEnv  = "ASAP_OLLAMA_URL"
	ollamaModel   = "ASAP_OLLAMA_MODEL"
	adminKeyEnv   = "ASAP_ADMIN_KEY"
	editorKeyEnv  = "ASAP_EDITOR_KEY"
	metricsEnv    = "ASAP_METRICS_PORT"
)

// Config holds settings shared across the api, crawler, and ingest binaries.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	DB      DBConfig      `yaml:"db"`
	NATS    NATSConfig    `yaml:"nats"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Keys    []APIKey      `yaml:"api_keys"`
}

// HTTPConfig configures the API server. MetricsPort is used by the
// daemon binaries, which have no API listener of their own.
type HTTPConfig struct {
	Port        string `yaml:"port"`
	CORSOrigin  string `yaml:"cors_origin"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DBConfig points at the SQLite database file.
type DBConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig configures the message bus connection.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// QdrantConfig configures the vector store. An empty Addr disables
// semantic duplicate detection.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// OllamaConfig configures the embedder. An empty URL disables embeddings.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// CrawlerConfig controls the source scheduler.
type CrawlerConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval"`
	Workers      int           `yaml:"workers"`
	UserAgent    string        `yaml:"user_agent"`
	FetchRate    float64       `yaml:"fetch_rate"`  // requests per second per source
	FetchBurst   int           `yaml:"fetch_burst"` // token bucket capacity
}

// APIKey grants a role to a key.
type APIKey struct {
	Key  string `yaml:"key"`
	Role string `yaml:"role"`
}

// Load reads YAML configuration (if ASAP_CONFIG is set) and applies
// environment overrides on top of the defaults.
func Load() Config {
	cfg := defaults()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("config: cannot read file, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			slog.Warn("config: cannot parse file, using defaults", "path", path, "error", err)
			cfg = defaults()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv(metricsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.MetricsPort = n
		}
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.DB.Path = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(qdrantEnv); v != "" {
		c.Qdrant.Addr = v
	}
	if v := os.Getenv(ollamaURLEnv); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv(ollamaModel); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv(adminKeyEnv); v != "" {
		c.Keys = append(c.Keys, APIKey{Key: v, Role: "admin"})
	}
	if v := os.Getenv(editorKeyEnv); v != "" {
		c.Keys = append(c.Keys, APIKey{Key: v, Role: "editor"})
	}
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{Port: "8080", CORSOrigin: "*", MetricsPort: 9091},
		DB:   DBConfig{Path: "asap.db"},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		Qdrant: QdrantConfig{
			Addr:       "", // disabled unless configured
			Collection: "asap_content",
		},
		Ollama: OllamaConfig{URL: "", Model: "nomic-embed-text"},
		Crawler: CrawlerConfig{
			ScanInterval: time.Minute,
			Workers:      4,
			UserAgent:    "asap-crawler/1.0 (+https://asapdigest.example)",
			FetchRate:    1,
			FetchBurst:   3,
		},
	}
}
