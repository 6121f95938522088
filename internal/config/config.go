// Package config loads the indexer configuration: a YAML manifest of chains
// and Trading contracts plus storage, price provider and API settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"perp-stats/internal/evm"
	"perp-stats/internal/logging"
	"perp-stats/internal/pricing"
	"perp-stats/internal/pricing/gecko"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Chain event sources.
const (
	SourceRPC   = "rpc"
	SourceKafka = "kafka"
)

// Config is the root of the configuration file.
type Config struct {
	Log     logging.Config  `yaml:"log"`
	Storage StorageConfig   `yaml:"storage"`
	Gecko   GeckoConfig     `yaml:"gecko"`
	Retry   evm.RetryPolicy `yaml:"retry"`
	Kafka   KafkaConfig     `yaml:"kafka"`
	API     APIConfig       `yaml:"api"`
	Chains  []ChainConfig   `yaml:"chains"`
}

// StorageConfig selects the primary backend and the optional side stores.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	Migrate       bool   `yaml:"migrate"`

	// ClickHouseDSN, when set, mirrors trades and hour prices for analytics.
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	// RedisAddr, when set, puts a read-through cache in front of hour prices.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// GeckoConfig configures the price provider client and oracle.
type GeckoConfig struct {
	BaseURL       string                        `yaml:"base_url"`
	RateLimit     float64                       `yaml:"rate_limit"` // requests per second
	Burst         int                           `yaml:"burst"`
	Timeout       time.Duration                 `yaml:"timeout"`
	Networks      map[int64]string              `yaml:"networks"`
	WrappedNative map[int64]pricing.NativeToken `yaml:"wrapped_native"`
}

// ClientOptions converts the settings to gecko client options.
func (g GeckoConfig) ClientOptions() []gecko.ClientOption {
	return []gecko.ClientOption{
		gecko.WithBaseURL(g.BaseURL),
		gecko.WithTimeout(g.Timeout),
		gecko.WithRateLimit(g.RateLimit, g.Burst),
	}
}

// KafkaConfig holds broker settings shared by every chain topic.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// ContractConfig is one Trading contract deployment.
type ContractConfig struct {
	Address    string `yaml:"address"`
	StartBlock uint64 `yaml:"start_block"`
}

// ChainConfig describes one chain and where its events come from.
type ChainConfig struct {
	ChainID       int64            `yaml:"chain_id"`
	Name          string           `yaml:"name"`
	Source        string           `yaml:"source"` // rpc (default) or kafka
	RPCURL        string           `yaml:"rpc_url"`
	WSURL         string           `yaml:"ws_url"`
	Contracts     []ContractConfig `yaml:"contracts"`
	BlockRange    uint64           `yaml:"block_range"`
	PollInterval  time.Duration    `yaml:"poll_interval"`
	Confirmations uint64           `yaml:"confirmations"`

	// KafkaTopic is consumed when Source is kafka.
	KafkaTopic string `yaml:"kafka_topic"`
	// PublishTopic, when set, receives every handled event.
	PublishTopic string `yaml:"publish_topic"`
}

// EVMContracts converts the contract list for evm.LogSource.
func (c ChainConfig) EVMContracts() []evm.Contract {
	out := make([]evm.Contract, 0, len(c.Contracts))
	for _, k := range c.Contracts {
		out = append(out, evm.Contract{Address: k.Address, StartBlock: k.StartBlock})
	}
	return out
}

// Default returns the built-in configuration: in-memory storage and the
// Arbitrum One deployment of the Trading contract.
func Default() Config {
	return Config{
		Log: logging.Config{Level: "info", Format: "json", Output: "stdout"},
		Storage: StorageConfig{
			Backend:       BackendMemory,
			MongoDatabase: "perp_stats",
			RedisTTL:      24 * time.Hour,
		},
		Gecko: GeckoConfig{
			BaseURL:       gecko.DefaultBaseURL,
			RateLimit:     gecko.DefaultRateLimit,
			Burst:         gecko.DefaultBurst,
			Timeout:       gecko.DefaultTimeout,
			Networks:      pricing.DefaultNetworks(),
			WrappedNative: pricing.DefaultWrappedNative(),
		},
		Retry: evm.DefaultRetryPolicy(),
		Kafka: KafkaConfig{ConsumerGroup: "perp-stats"},
		API:   APIConfig{Addr: ":8080"},
		Chains: []ChainConfig{{
			ChainID: 42161,
			Name:    "arbitrum",
			Source:  SourceRPC,
			RPCURL:  "https://arb1.arbitrum.io/rpc",
			Contracts: []ContractConfig{{
				Address:    "0x7D9c9B6861168b2fB180deE065f7F5dF601cd234",
				StartBlock: 105901387,
			}},
			BlockRange:   evm.DefaultBlockRange,
			PollInterval: evm.DefaultPollInterval,
		}},
	}
}

// Load reads a .env file when present, then the YAML file at path with
// ${VAR} and ${VAR:-default} references expanded. An empty path yields
// Default. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := Parse([]byte(ExpandEnv(string(data))), &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Parse decodes YAML over cfg, keeping values the document does not set.
// A chains list in the document replaces the default manifest.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.Source == "" {
			c.Source = SourceRPC
		}
		if c.BlockRange == 0 {
			c.BlockRange = evm.DefaultBlockRange
		}
		if c.PollInterval == 0 {
			c.PollInterval = evm.DefaultPollInterval
		}
	}
	return nil
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

var addressRegexp = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for the mongo backend")
		}
		if c.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage.mongo_database is required for the mongo backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, mongo", c.Storage.Backend)
	}

	if c.Gecko.BaseURL == "" {
		return fmt.Errorf("gecko.base_url is required")
	}
	if c.Gecko.Timeout <= 0 {
		return fmt.Errorf("gecko.timeout must be greater than 0")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	seen := make(map[int64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if err := c.validateChain(ch); err != nil {
			return fmt.Errorf("chains[%d]: %w", i, err)
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("chains[%d]: duplicate chain_id %d", i, ch.ChainID)
		}
		seen[ch.ChainID] = true
	}
	return nil
}

func (c *Config) validateChain(ch ChainConfig) error {
	if ch.ChainID <= 0 {
		return fmt.Errorf("chain_id must be greater than 0")
	}

	switch ch.Source {
	case SourceRPC:
		if ch.RPCURL == "" {
			return fmt.Errorf("rpc_url is required for the rpc source")
		}
		if len(ch.Contracts) == 0 {
			return fmt.Errorf("at least one contract is required for the rpc source")
		}
		for _, k := range ch.Contracts {
			if !addressRegexp.MatchString(k.Address) {
				return fmt.Errorf("contract address %q is invalid", k.Address)
			}
		}
	case SourceKafka:
		if ch.KafkaTopic == "" {
			return fmt.Errorf("kafka_topic is required for the kafka source")
		}
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka source")
		}
	default:
		return fmt.Errorf("source %q is not one of rpc, kafka", ch.Source)
	}

	if ch.PublishTopic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for publish_topic")
	}
	return nil
}
