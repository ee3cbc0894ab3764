// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Storage, Redis, Badger, Postgres, Vector, Embedding, Kafka,
// Indexer, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ingestion ServerConfig    `yaml:"ingestion"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Badger    BadgerConfig    `yaml:"badger"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StorageConfig selects the key-value backend and names the collections the
// search core keeps in it.
type StorageConfig struct {
	Backend   string      `yaml:"backend"`
	Namespace string      `yaml:"namespace"`
	Sets      StorageSets `yaml:"sets"`
}

// StorageSets maps logical collections to their names inside the namespace.
type StorageSets struct {
	Documents  string `yaml:"documents"`
	DocMeta    string `yaml:"docMeta"`
	Keywords   string `yaml:"keywords"`
	Totals     string `yaml:"totals"`
	QueryCache string `yaml:"queryCache"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	ScanSize int64  `yaml:"scanSize"`
}

// BadgerConfig holds settings for the embedded Badger store.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"inMemory"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// VectorConfig controls the vector similarity backend.
type VectorConfig struct {
	Backend           string        `yaml:"backend"`
	Index             string        `yaml:"index"`
	Dimensions        int           `yaml:"dimensions"`
	DistanceThreshold float64       `yaml:"distanceThreshold"`
	QueryTimeout      time.Duration `yaml:"queryTimeout"`
}

// EmbeddingConfig controls the embedding provider. The "hash" provider is a
// deterministic local embedder meant for development and tests.
type EmbeddingConfig struct {
	Provider         string        `yaml:"provider"`
	BaseURL          string        `yaml:"baseURL"`
	Model            string        `yaml:"model"`
	Token            string        `yaml:"token"`
	DocumentPrefix   string        `yaml:"documentPrefix"`
	QueryPrefix      string        `yaml:"queryPrefix"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PageCrawled   string `yaml:"pageCrawled"`
	CrawlComplete string `yaml:"crawlComplete"`
}

// IndexerConfig controls chunking and indexing concurrency. SweepWait bounds
// how long a crawl-complete event waits for the crawl's pages before the
// sweep is abandoned.
type IndexerConfig struct {
	ChunkSize    int           `yaml:"chunkSize"`
	ChunkOverlap int           `yaml:"chunkOverlap"`
	Workers      int           `yaml:"workers"`
	SweepWait    time.Duration `yaml:"sweepWait"`
}

// SearchConfig controls query execution limits. RateLimit is the number of
// queries a client may send per minute; 0 disables limiting.
type SearchConfig struct {
	VectorCandidates int `yaml:"vectorCandidates"`
	MaxResults       int `yaml:"maxResults"`
	RRFK             int `yaml:"rrfK"`
	DefaultCount     int `yaml:"defaultCount"`
	DefaultPageSize  int `yaml:"defaultPageSize"`
	MaxPageSize      int `yaml:"maxPageSize"`
	RateLimit        int `yaml:"rateLimit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls request span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading a file or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the search core cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "redis", "badger":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.Vector.Backend {
	case "pgvector", "badger":
	default:
		return fmt.Errorf("unsupported vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d", c.Vector.Dimensions)
	}
	if c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Indexer.ChunkOverlap, c.Indexer.ChunkSize)
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return fmt.Errorf("invalid page size limits: default=%d max=%d",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Ingestion: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   "redis",
			Namespace: "search",
			Sets: StorageSets{
				Documents:  "documents",
				DocMeta:    "doc_meta",
				Keywords:   "keywords",
				Totals:     "totals",
				QueryCache: "query-cache",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			ScanSize: 500,
		},
		Badger: BadgerConfig{
			Dir: "data/badger",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hybridsearch",
			User:            "hybridsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Vector: VectorConfig{
			Backend:           "pgvector",
			Index:             "vectors",
			Dimensions:        768,
			DistanceThreshold: 0.4,
			QueryTimeout:      5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:         "openai",
			BaseURL:          "http://localhost:11434/v1",
			Model:            "nomic-embed-text",
			Token:            "none",
			DocumentPrefix:   "search_document: ",
			QueryPrefix:      "search_query: ",
			Timeout:          30 * time.Second,
			MaxAttempts:      3,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "hybridsearch-indexer",
			Topics: KafkaTopics{
				PageCrawled:   "page-crawled",
				CrawlComplete: "crawl-complete",
			},
		},
		Indexer: IndexerConfig{
			ChunkSize:    512,
			ChunkOverlap: 32,
			Workers:      4,
			SweepWait:    10 * time.Minute,
		},
		Search: SearchConfig{
			VectorCandidates: 100,
			MaxResults:       200,
			RRFK:             60,
			DefaultCount:     5,
			DefaultPageSize:  10,
			MaxPageSize:      100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads HS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HS_INGESTION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.Port = port
		}
	}
	if v := os.Getenv("HS_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("HS_STORAGE_NAMESPACE"); v != "" {
		cfg.Storage.Namespace = v
	}
	if v := os.Getenv("HS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HS_BADGER_DIR"); v != "" {
		cfg.Badger.Dir = v
	}
	if v := os.Getenv("HS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("HS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("HS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("HS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("HS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("HS_VECTOR_BACKEND"); v != "" {
		cfg.Vector.Backend = v
	}
	if v := os.Getenv("HS_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("HS_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("HS_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("HS_EMBEDDING_TOKEN"); v != "" {
		cfg.Embedding.Token = v
	}
	if v := os.Getenv("HS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HS_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("HS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
