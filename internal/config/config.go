// Package config loads runtime settings from an optional YAML file, a local
// .env file and LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // ledger.timezone must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TransportInProcess = "inprocess"
	TransportAMQP      = "amqp"
)

type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Index     IndexConfig
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	Gemini    GeminiConfig
	AMQP      AMQPConfig
	Anomaly   AnomalyConfig
}

// DatabaseConfig selects the store. An empty URL means the in-memory store.
type DatabaseConfig struct {
	URL string
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

type LedgerConfig struct {
	Currency string
	Timezone string
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// IndexConfig controls the vector index bridge.
type IndexConfig struct {
	Enabled   bool
	Transport string
	Timeout   time.Duration
	Workers   int64
	CacheSize int
	CacheTTL  time.Duration
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type EmbeddingConfig struct {
	Dimension int
}

type GeminiConfig struct {
	APIKey         string
	EmbeddingModel string
	TextModel      string
}

type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

type AnomalyConfig struct {
	Threshold float64
	CacheTTL  time.Duration
}

// Load reads configuration. file may be empty; a missing file is not an
// error but an unreadable one is. Values from .env never override variables
// already present in the environment.
func Load(file string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ledger.currency", "VND")
	v.SetDefault("ledger.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("index.enabled", false)
	v.SetDefault("index.transport", TransportInProcess)
	v.SetDefault("index.timeout", 10*time.Second)
	v.SetDefault("index.workers", 4)
	v.SetDefault("index.cache_size", 1024)
	v.SetDefault("index.cache_ttl", 168*time.Hour)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "transactions")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("gemini.text_model", "gemini-2.0-flash")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "walletledger")
	v.SetDefault("amqp.queue", "index_sync")
	v.SetDefault("anomaly.threshold", 0.4)
	v.SetDefault("anomaly.cache_ttl", 24*time.Hour)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		HTTP:     HTTPConfig{Addr: v.GetString("http.addr")},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Ledger: LedgerConfig{
			Currency: strings.ToUpper(v.GetString("ledger.currency")),
			Timezone: v.GetString("ledger.timezone"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
		},
		Index: IndexConfig{
			Enabled:   v.GetBool("index.enabled"),
			Transport: strings.ToLower(v.GetString("index.transport")),
			Timeout:   v.GetDuration("index.timeout"),
			Workers:   v.GetInt64("index.workers"),
			CacheSize: v.GetInt("index.cache_size"),
			CacheTTL:  v.GetDuration("index.cache_ttl"),
		},
		Qdrant: QdrantConfig{
			Host:       v.GetString("qdrant.host"),
			Port:       v.GetInt("qdrant.port"),
			APIKey:     v.GetString("qdrant.api_key"),
			UseTLS:     v.GetBool("qdrant.use_tls"),
			Collection: v.GetString("qdrant.collection"),
		},
		Embedding: EmbeddingConfig{Dimension: v.GetInt("embedding.dimension")},
		Gemini: GeminiConfig{
			APIKey:         v.GetString("gemini.api_key"),
			EmbeddingModel: v.GetString("gemini.embedding_model"),
			TextModel:      v.GetString("gemini.text_model"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
		Anomaly: AnomalyConfig{
			Threshold: v.GetFloat64("anomaly.threshold"),
			CacheTTL:  v.GetDuration("anomaly.cache_ttl"),
		},
	}
}

// Location resolves the ledger timezone. Call Validate first.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		add("log.format %q must be json or text", c.Log.Format)
	}
	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if len(c.Ledger.Currency) != 3 {
		add("ledger.currency %q must be a 3-letter code", c.Ledger.Currency)
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		add("ledger.timezone %q: %v", c.Ledger.Timezone, err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		add("scheduler.interval must be > 0")
	}
	if c.Anomaly.Threshold <= 0 {
		add("anomaly.threshold must be > 0")
	}

	if c.Index.Enabled {
		switch c.Index.Transport {
		case TransportInProcess:
		case TransportAMQP:
			c.validateAMQP(add)
		default:
			add("index.transport %q must be %s or %s", c.Index.Transport, TransportInProcess, TransportAMQP)
		}
		if c.Gemini.APIKey == "" {
			add("gemini.api_key is required when index.enabled")
		}
		if c.Qdrant.Host == "" {
			add("qdrant.host is required when index.enabled")
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			add("qdrant.port %d out of range", c.Qdrant.Port)
		}
		if c.Qdrant.Collection == "" {
			add("qdrant.collection is required")
		}
		if c.Embedding.Dimension <= 0 {
			add("embedding.dimension must be > 0")
		}
		if c.Index.Workers <= 0 {
			add("index.workers must be > 0")
		}
		if c.Index.Timeout <= 0 {
			add("index.timeout must be > 0")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %w", errors.Join(problems...))
}

func (c Config) validateAMQP(add func(string, ...any)) {
	if c.AMQP.URL == "" {
		add("amqp.url is required when index.transport is amqp")
		return
	}
	u, err := url.Parse(c.AMQP.URL)
	if err != nil {
		add("amqp.url: %v", err)
		return
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		add("amqp.url scheme must be amqp or amqps, got %q", u.Scheme)
	}
	if c.AMQP.Exchange == "" {
		add("amqp.exchange is required")
	}
	if c.AMQP.Queue == "" {
		add("amqp.queue is required")
	}
}
