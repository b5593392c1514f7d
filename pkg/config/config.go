package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Transform   TransformConfig  `yaml:"transform"`
	Extract     ExtractConfig    `yaml:"extract"`
	Snapshot    SnapshotConfig   `yaml:"snapshot"`
	Load        LoadConfig       `yaml:"load"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
	Baseline    BaselineConfig   `yaml:"baseline"`
	Quality     QualityConfig    `yaml:"quality"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path" default:"/metrics"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job" default:"trustboard_etl"`
}

type TransformConfig struct {
	Interval      time.Duration           `yaml:"interval" default:"1h" validate:"gt=0"`
	Earliest      time.Time               `yaml:"earliest"`
	MaxFutureSkew time.Duration           `yaml:"max_future_skew" default:"5m" validate:"gte=0"`
	Anomaly       AnomalyConfig           `yaml:"anomaly"`
	Sources       map[string]SourceConfig `yaml:"sources" validate:"dive"`
}

// AnomalyConfig has no defaults for threshold and window: both must be set
// explicitly for the deployment.
type AnomalyConfig struct {
	Threshold  float64 `yaml:"threshold" validate:"required,gt=0"`
	Window     int     `yaml:"window" validate:"required,gte=1"`
	MinSamples int     `yaml:"min_samples" default:"1" validate:"gte=0"`
	Method     string  `yaml:"method" default:"median" validate:"oneof=median mean"`
}

type SourceConfig struct {
	FieldMap      FieldMapConfig    `yaml:"field_map"`
	SymbolAliases map[string]string `yaml:"symbol_aliases"`
}

type FieldMapConfig struct {
	Timestamp       string `yaml:"timestamp" validate:"required"`
	TimestampFormat string `yaml:"timestamp_format" validate:"required,oneof=unix_s unix_ms rfc3339"`
	Open            string `yaml:"open" validate:"required"`
	High            string `yaml:"high" validate:"required"`
	Low             string `yaml:"low" validate:"required"`
	Close           string `yaml:"close" validate:"required"`
	Volume          string `yaml:"volume"`
	VWAP            string `yaml:"vwap"`
	Count           string `yaml:"count"`
}

type ExtractConfig struct {
	AllowPartial bool            `yaml:"allow_partial"`
	Timeout      time.Duration   `yaml:"timeout" default:"30s"`
	Retry        RetryConfig     `yaml:"retry"`
	CoinGecko    CoinGeckoConfig `yaml:"coingecko"`
	Kraken       KrakenConfig    `yaml:"kraken"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	Backoff     time.Duration `yaml:"backoff" default:"1s"`
}

type RateLimitConfig struct {
	Rate  float64 `yaml:"rate" default:"1" validate:"gt=0"` // requests per second
	Burst int     `yaml:"burst" default:"1" validate:"gte=1"`
}

type CoinGeckoConfig struct {
	Enabled    bool            `yaml:"enabled"`
	BaseURL    string          `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"url"`
	APIKey     string          `yaml:"api_key"`
	CoinID     string          `yaml:"coin_id" default:"bitcoin"`
	VsCurrency string          `yaml:"vs_currency" default:"usd"`
	Symbol     string          `yaml:"symbol" default:"BTC-USD"`
	Days       int             `yaml:"days" default:"1" validate:"gte=1,lte=365"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type KrakenConfig struct {
	Enabled         bool            `yaml:"enabled"`
	BaseURL         string          `yaml:"base_url" default:"https://api.kraken.com" validate:"url"`
	APIKey          string          `yaml:"api_key"`
	Pair            string          `yaml:"pair" default:"XBTUSD"`
	IntervalMinutes int             `yaml:"interval_minutes" default:"60" validate:"oneof=1 5 15 30 60 240 1440 10080 21600"`
	Lookback        time.Duration   `yaml:"lookback"` // zero = whatever Kraken returns by default
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type SnapshotConfig struct {
	Dir    string `yaml:"dir" default:"data/snapshots"`
	Format string `yaml:"format" default:"parquet" validate:"oneof=parquet json"`
}

type LoadConfig struct {
	Backend   string `yaml:"backend" default:"postgres" validate:"oneof=postgres clickhouse kafka"`
	SinkStore string `yaml:"sink_store" default:"postgres" validate:"oneof=postgres clickhouse"`
}

type PostgresConfig struct {
	URL             string        `yaml:"url"`
	Table           string        `yaml:"table" default:"fact_price_candle"`
	MaxConns        int32         `yaml:"max_conns" default:"10"`
	MinConns        int32         `yaml:"min_conns" default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"30m"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"5s"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"trustboard"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"trustboard.candles"`
	LogTopic     string   `yaml:"log_topic"`
	RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		AutoCreate   bool          `yaml:"auto_create_topic"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"trustboard-sink"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr" default:"localhost:6379"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	Prefix        string `yaml:"prefix" default:"trustboard"`
	PoolSize      int    `yaml:"pool_size" default:"10"`
	MemoryMaxSize int    `yaml:"memory_max_size" default:"1000"`
}

type BaselineConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
}

type QualityConfig struct {
	StaleAfter time.Duration `yaml:"stale_after" default:"2h"`
	ReportTTL  time.Duration `yaml:"report_ttl" default:"168h"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables before defaults and validation are applied.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := getenv("COINGECKO_API_KEY"); v != "" {
		c.Extract.CoinGecko.APIKey = v
	}
	if v := getenv("KRAKEN_API_KEY"); v != "" {
		c.Extract.Kraken.APIKey = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("LOAD_BACKEND"); v != "" {
		c.Load.Backend = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("PUSHGATEWAY_URL"); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Transform.Anomaly.MinSamples > c.Transform.Anomaly.Window {
		return fmt.Errorf("transform.anomaly.min_samples (%d) cannot exceed window (%d)",
			c.Transform.Anomaly.MinSamples, c.Transform.Anomaly.Window)
	}
	if !c.Extract.CoinGecko.Enabled && !c.Extract.Kraken.Enabled {
		return fmt.Errorf("extract: at least one source must be enabled")
	}
	if err := c.requireStore(c.Load.Backend); err != nil {
		return err
	}
	if c.Load.Backend == "kafka" {
		if err := c.requireStore(c.Load.SinkStore); err != nil {
			return fmt.Errorf("load.sink_store: %w", err)
		}
	}
	return nil
}

// requireStore reports whether the named load backend is configured.
func (c *Config) requireStore(name string) error {
	switch name {
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres.url (or DATABASE_URL) is required for the postgres backend")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse backend")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty for the kafka backend")
		}
	}
	return nil
}
