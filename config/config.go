package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderly/models"
)

const DefaultConfigPath = "config/config.yml"

type Config struct {
	Orderly     OrderlyConfig     `yaml:"orderly"`
	Market      MarketConfig      `yaml:"market"`
	Exchanges   ExchangesConfig   `yaml:"exchanges"`
	Reader      ReaderConfig      `yaml:"reader"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Distributor DistributorConfig `yaml:"distributor"`
	Server      ServerConfig      `yaml:"server"`
	Sinks       SinksConfig       `yaml:"sinks"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type OrderlyConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MarketConfig struct {
	Symbol string `yaml:"symbol"`
	// Depth is the number of levels per side kept in the merged book.
	Depth int `yaml:"depth"`
	// ConnectorDepth is the number of levels per side a connector forwards.
	ConnectorDepth int `yaml:"connector_depth"`
}

type ExchangeConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type ExchangesConfig struct {
	Bitstamp ExchangeConfig `yaml:"bitstamp"`
	Binance  ExchangeConfig `yaml:"binance"`
	Kraken   ExchangeConfig `yaml:"kraken"`
	Coinbase ExchangeConfig `yaml:"coinbase"`
	Gateio   ExchangeConfig `yaml:"gateio"`
}

type ReaderConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	Retry            RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     bool          `yaml:"jitter"`
}

type ChannelsConfig struct {
	TickBuffer int `yaml:"tick_buffer"`
}

type DistributorConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type ServerConfig struct {
	GRPCPort            int     `yaml:"grpc_port"`
	HTTPAddress         string  `yaml:"http_address"`
	MaxUpdatesPerSecond float64 `yaml:"max_updates_per_second"`
}

type SinksConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	Redis RedisConfig `yaml:"redis"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled        bool             `yaml:"enabled"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	enabled := ExchangeConfig{Enabled: true}
	return &Config{
		Orderly: OrderlyConfig{Name: "orderly", Version: "0.1.0"},
		Market: MarketConfig{
			Symbol:         "BTC/USDT",
			Depth:          10,
			ConnectorDepth: 10,
		},
		Exchanges: ExchangesConfig{
			Bitstamp: enabled,
			Binance:  enabled,
			Kraken:   enabled,
			Coinbase: enabled,
			Gateio:   enabled,
		},
		Reader: ReaderConfig{
			HandshakeTimeout: 10 * time.Second,
			IdleTimeout:      30 * time.Second,
			PingInterval:     15 * time.Second,
			Retry: RetryConfig{
				BaseDelay:  500 * time.Millisecond,
				MaxDelay:   30 * time.Second,
				Multiplier: 2,
				Jitter:     true,
			},
		},
		Channels:    ChannelsConfig{TickBuffer: 256},
		Distributor: DistributorConfig{QueueSize: 16},
		Server: ServerConfig{
			GRPCPort:    50054,
			HTTPAddress: ":8080",
		},
		Sinks: SinksConfig{
			Kafka: KafkaConfig{Topic: "orderly.book"},
			Redis: RedisConfig{Key: "orderly:book", TTL: time.Minute},
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ReportInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads a YAML file on top of Default. A missing file at the
// default location is not an error.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultConfigPath, map[string]string{
		EnvironmentStaging:    "config/config.staging.yml",
		EnvironmentProduction: "config/config.production.yml",
	})

	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
		// built-in defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" && config.Metrics.CloudWatch.Region == "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Sinks.Redis.Password = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Overrides carries command line values that take precedence over the file.
// Zero values leave the file setting untouched.
type Overrides struct {
	Symbol   string
	Port     int
	Disabled []string
}

// Apply merges the overrides into the configuration and re-validates it.
func (c *Config) Apply(o Overrides) error {
	if o.Symbol != "" {
		c.Market.Symbol = o.Symbol
	}
	if o.Port != 0 {
		c.Server.GRPCPort = o.Port
	}
	for _, name := range o.Disabled {
		ex := c.exchange(name)
		if ex == nil {
			return fmt.Errorf("unknown exchange %q", name)
		}
		ex.Enabled = false
	}
	return c.Validate()
}

func (c *Config) exchange(name string) *ExchangeConfig {
	ex, err := models.ParseExchange(name)
	if err != nil {
		return nil
	}
	switch ex {
	case models.Bitstamp:
		return &c.Exchanges.Bitstamp
	case models.Binance:
		return &c.Exchanges.Binance
	case models.Kraken:
		return &c.Exchanges.Kraken
	case models.Coinbase:
		return &c.Exchanges.Coinbase
	case models.Gateio:
		return &c.Exchanges.Gateio
	}
	return nil
}

// Venue is an enabled exchange together with its optional URL override.
type Venue struct {
	Exchange models.Exchange
	URL      string
}

// EnabledExchanges returns the venues to connect to in ordinal order.
func (c *Config) EnabledExchanges() []Venue {
	var out []Venue
	for _, ex := range models.Exchanges() {
		if cfg := c.exchange(ex.String()); cfg != nil && cfg.Enabled {
			out = append(out, Venue{Exchange: ex, URL: cfg.URL})
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Orderly.Name == "" {
		return fmt.Errorf("orderly.name is required")
	}

	symbol := strings.TrimSpace(c.Market.Symbol)
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("market.symbol '%s' must be of the form BASE/QUOTE", c.Market.Symbol)
	}
	if c.Market.Depth <= 0 {
		return fmt.Errorf("market.depth must be greater than 0")
	}
	if c.Market.ConnectorDepth <= 0 {
		return fmt.Errorf("market.connector_depth must be greater than 0")
	}

	if len(c.EnabledExchanges()) == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}

	if c.Reader.IdleTimeout <= 0 {
		return fmt.Errorf("reader.idle_timeout must be greater than 0")
	}
	if c.Reader.PingInterval < 0 || c.Reader.PingInterval >= c.Reader.IdleTimeout {
		return fmt.Errorf("reader.ping_interval must be less than reader.idle_timeout")
	}
	if c.Reader.HandshakeTimeout <= 0 {
		return fmt.Errorf("reader.handshake_timeout must be greater than 0")
	}
	if c.Reader.Retry.BaseDelay <= 0 {
		return fmt.Errorf("reader.retry.base_delay must be greater than 0")
	}
	if c.Reader.Retry.MaxDelay < c.Reader.Retry.BaseDelay {
		return fmt.Errorf("reader.retry.max_delay must not be less than reader.retry.base_delay")
	}
	if c.Reader.Retry.Multiplier <= 1 {
		return fmt.Errorf("reader.retry.multiplier must be greater than 1")
	}

	if c.Channels.TickBuffer <= 0 {
		return fmt.Errorf("channels.tick_buffer must be greater than 0")
	}
	if c.Distributor.QueueSize <= 0 {
		return fmt.Errorf("distributor.queue_size must be greater than 0")
	}

	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range", c.Server.GRPCPort)
	}
	if c.Server.MaxUpdatesPerSecond < 0 {
		return fmt.Errorf("server.max_updates_per_second must not be negative")
	}

	if c.Sinks.Kafka.Enabled {
		if len(c.Sinks.Kafka.Brokers) == 0 {
			return fmt.Errorf("sinks.kafka.brokers is required when kafka is enabled")
		}
		if c.Sinks.Kafka.Topic == "" {
			return fmt.Errorf("sinks.kafka.topic is required when kafka is enabled")
		}
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Address == "" {
		return fmt.Errorf("sinks.redis.address is required when redis is enabled")
	}

	return nil
}
