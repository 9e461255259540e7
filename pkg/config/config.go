// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Index, FeatureStore, Embedding, Pipeline, Cache,
// Kafka, Postgres, etc.).
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
	Server       ServerConfig       `yaml:"server"`
	Index        IndexConfig        `yaml:"index"`
	FeatureStore FeatureStoreConfig `yaml:"featureStore"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Cache        CacheConfig        `yaml:"cache"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxInflight     int64         `yaml:"maxInflight"`
}

// IndexConfig locates the on-disk index and the weights bundle.
type IndexConfig struct {
	Root            string        `yaml:"root"`
	WeightsPath     string        `yaml:"weightsPath"`
	ReloadInterval  time.Duration `yaml:"reloadInterval"`
	MaxTermLength   int           `yaml:"maxTermLength"`
	BuildWorkers    int           `yaml:"buildWorkers"`
	StripStopwords  bool          `yaml:"stripStopwords"`
	VerifyChecksums bool          `yaml:"verifyChecksums"`
}

// FeatureStoreConfig holds the redis-protocol feature store connection.
type FeatureStoreConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds the embedding service endpoint. The per-query call
// gets exactly one attempt inside Timeout.
type EmbeddingConfig struct {
	URL              string        `yaml:"url"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// RetrievalConfig bounds candidate generation before fusion.
type RetrievalConfig struct {
	KBM25             int     `yaml:"kBM25"`
	KNGram            int     `yaml:"kNGram"`
	MaxCandidates     int     `yaml:"maxCandidates"`
	PreDomainCap      int     `yaml:"preDomainCap"`
	FinalDomainCap    int     `yaml:"finalDomainCap"`
	MinQuality        float64 `yaml:"minQuality"`
	MinBodyLength     int     `yaml:"minBodyLength"`
	MinNGramCoverage  float64 `yaml:"minNGramCoverage"`
	StopgramFraction  float64 `yaml:"stopgramFraction"`
	TitleGateTopN     int     `yaml:"titleGateTopN"`
	MMRLambda         float64 `yaml:"mmrLambda"`
	DefaultNumResults int     `yaml:"defaultNumResults"`
	MaxNumResults     int     `yaml:"maxNumResults"`
}

// PipelineConfig holds total and per-stage latency budgets.
type PipelineConfig struct {
	TotalBudget     time.Duration `yaml:"totalBudget"`
	TailBudget      time.Duration `yaml:"tailBudget"`
	AnalyzeBudget   time.Duration `yaml:"analyzeBudget"`
	CacheBudget     time.Duration `yaml:"cacheBudget"`
	RetrievalBudget time.Duration `yaml:"retrievalBudget"`
	FeatureBudget   time.Duration `yaml:"featureBudget"`
	FusionBudget    time.Duration `yaml:"fusionBudget"`
	SerializeBudget time.Duration `yaml:"serializeBudget"`
}

// CacheConfig controls the three in-process cache layers.
type CacheConfig struct {
	QueryTTL        time.Duration `yaml:"queryTTL"`
	FeatureTTL      time.Duration `yaml:"featureTTL"`
	EmbeddingTTL    time.Duration `yaml:"embeddingTTL"`
	QueryMaxBytes   int64         `yaml:"queryMaxBytes"`
	FeatureMaxBytes int64         `yaml:"featureMaxBytes"`
	EmbedMaxBytes   int64         `yaml:"embedMaxBytes"`
}

// KafkaConfig holds Kafka broker and topic settings. Brokers empty disables
// Kafka entirely (epoch reload then relies on polling the current pointer).
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	EpochPublished  string `yaml:"epochPublished"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for the analytics
// snapshot store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment
// variable overrides. It returns a Config populated with sensible defaults
// for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxInflight:     256,
		},
		Index: IndexConfig{
			Root:            "data/index",
			WeightsPath:     "configs/weights.yaml",
			ReloadInterval:  10 * time.Second,
			MaxTermLength:   256,
			BuildWorkers:    0,
			VerifyChecksums: true,
		},
		FeatureStore: FeatureStoreConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Timeout:  50 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			URL:              "http://localhost:8091",
			Timeout:          80 * time.Millisecond,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			KBM25:             200,
			KNGram:            100,
			MaxCandidates:     250,
			PreDomainCap:      5,
			FinalDomainCap:    3,
			MinQuality:        0.2,
			MinBodyLength:     50,
			MinNGramCoverage:  0.3,
			StopgramFraction:  0.2,
			TitleGateTopN:     10,
			MMRLambda:         0.7,
			DefaultNumResults: 10,
			MaxNumResults:     100,
		},
		Pipeline: PipelineConfig{
			TotalBudget:     300 * time.Millisecond,
			TailBudget:      500 * time.Millisecond,
			AnalyzeBudget:   5 * time.Millisecond,
			CacheBudget:     2 * time.Millisecond,
			RetrievalBudget: 80 * time.Millisecond,
			FeatureBudget:   100 * time.Millisecond,
			FusionBudget:    20 * time.Millisecond,
			SerializeBudget: 10 * time.Millisecond,
		},
		Cache: CacheConfig{
			QueryTTL:        5 * time.Minute,
			FeatureTTL:      10 * time.Minute,
			EmbeddingTTL:    10 * time.Minute,
			QueryMaxBytes:   64 << 20,
			FeatureMaxBytes: 128 << 20,
			EmbedMaxBytes:   64 << 20,
		},
		Kafka: KafkaConfig{
			Brokers:       nil,
			ConsumerGroup: "omnidex-searchd",
			Topics: KafkaTopics{
				EpochPublished:  "index.epoch-published",
				AnalyticsEvents: "search.analytics-events",
			},
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "omnidex",
			User:            "omnidex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
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

// applyEnvOverrides reads the documented environment variables and overrides
// the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INDEX_ROOT"); v != "" {
		cfg.Index.Root = v
	}
	if v := os.Getenv("WEIGHTS_CONFIG_PATH"); v != "" {
		cfg.Index.WeightsPath = v
	}
	if v := os.Getenv("FEATURESTORE_URL"); v != "" {
		cfg.FeatureStore.Addr = v
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("QUERY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Pipeline.TotalBudget = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_INFLIGHT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Server.MaxInflight = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OMNIDEX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OMNIDEX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("OMNIDEX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("OMNIDEX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}
