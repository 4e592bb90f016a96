// Package config loads the table cache configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
	"github.com/goliatone/go-table-cache/table/dynamo"
)

// Environment variables applied over the file.
const (
	EnvRedisAddr      = "TABLECACHE_REDIS_ADDR"
	EnvCacheStore     = "TABLECACHE_CACHE_STORE"
	EnvLogLevel       = "TABLECACHE_LOG_LEVEL"
	EnvDynamoEndpoint = "TABLECACHE_DYNAMO_ENDPOINT"
	EnvDynamoTable    = "TABLECACHE_DYNAMO_TABLE"
	EnvAWSRegion      = "AWS_REGION"
	EnvAWSAccessKey   = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey   = "AWS_SECRET_ACCESS_KEY"
)

const (
	defaultDotEnvFile  = ".env"
	defaultRedisAddr   = "localhost:6379"
	defaultAWSRegion   = "us-east-1"
	defaultSQLiteDSN   = "file::memory:?cache=shared"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultMetricsAddr = ":9090"
)

const (
	BackendDynamo = "dynamo"
	BackendSQLite = "sqlite"

	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreValkey = "valkey"
)

type Config struct {
	Table   table.Schema        `yaml:"table"`
	Backend string              `yaml:"backend"`
	Dynamo  dynamo.ClientConfig `yaml:"dynamo"`
	SQLite  SQLiteConfig        `yaml:"sqlite"`
	Cache   CacheConfig         `yaml:"cache"`
	Log     LogConfig           `yaml:"log"`
	Metrics MetricsConfig       `yaml:"metrics"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

type CacheConfig struct {
	Store            string        `yaml:"store"`
	Codec            string        `yaml:"codec"`
	KeyPrefix        string        `yaml:"key_prefix"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	AsyncWrites      bool          `yaml:"async_writes"`
	Defaults         cache.Options `yaml:"defaults"`
	Memory           cache.Config  `yaml:"memory"`
	Redis            RedisConfig   `yaml:"redis"`
	Valkey           ValkeyConfig  `yaml:"valkey"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ValkeyConfig struct {
	Addrs []string `yaml:"addrs"`
	// ClientSideCache enables client side caching with this TTL when set.
	ClientSideCache time.Duration `yaml:"client_side_cache"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Backend: BackendDynamo,
		Dynamo:  dynamo.ClientConfig{Region: defaultAWSRegion},
		SQLite:  SQLiteConfig{DSN: defaultSQLiteDSN},
		Cache: CacheConfig{
			Store:  StoreMemory,
			Codec:  "json",
			Memory: cache.DefaultConfig(),
			Redis:  RedisConfig{Addr: defaultRedisAddr},
			Valkey: ValkeyConfig{Addrs: []string{defaultRedisAddr}},
		},
		Log:     LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
		Metrics: MetricsConfig{Addr: defaultMetricsAddr},
	}
}

type loader struct {
	envFiles []string
	lookup   func(string) (string, bool)
}

type LoadOption func(*loader)

// WithEnvFiles sets the dotenv files read for overrides. Missing files are
// skipped.
func WithEnvFiles(files ...string) LoadOption {
	return func(l *loader) {
		l.envFiles = files
	}
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) LoadOption {
	return func(l *loader) {
		l.lookup = lookup
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
//
// Process environment variables win over values from dotenv files.
func Load(path string, opts ...LoadOption) (*Config, error) {
	l := &loader{
		envFiles: []string{defaultDotEnvFile},
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	dotenv, err := readEnvFiles(l.envFiles)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := l.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	out := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "read env file").
				WithMetadata(map[string]any{"path": file})
		}
		for k, v := range values {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Valkey.Addrs = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvCacheStore); ok && v != "" {
		c.Cache.Store = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvAWSRegion); ok && v != "" {
		c.Dynamo.Region = v
	}
	if v, ok := lookup(EnvAWSAccessKey); ok && v != "" {
		c.Dynamo.AccessKeyID = v
	}
	if v, ok := lookup(EnvAWSSecretKey); ok && v != "" {
		c.Dynamo.SecretAccessKey = v
	}
	if v, ok := lookup(EnvDynamoEndpoint); ok && v != "" {
		c.Dynamo.Endpoint = v
	}
	if v, ok := lookup(EnvDynamoTable); ok && v != "" {
		c.Table.TableName = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var fields []goerrors.FieldError
	add := func(field, message string, value any) {
		fields = append(fields, goerrors.FieldError{Field: field, Message: message, Value: value})
	}

	var schemaErr *table.SchemaError
	if err := c.Table.Validate(); errors.As(err, &schemaErr) {
		add("table."+strings.ToLower(schemaErr.Field), schemaErr.Message, nil)
	}

	switch c.Backend {
	case BackendDynamo, BackendSQLite:
	default:
		add("backend", "must be dynamo or sqlite", c.Backend)
	}

	switch c.Cache.Store {
	case StoreMemory:
		var cfgErr *cache.ConfigError
		if err := c.Cache.Memory.Validate(); errors.As(err, &cfgErr) {
			add("cache.memory."+strings.ToLower(cfgErr.Field), cfgErr.Message, nil)
		}
	case StoreRedis:
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr", "must not be empty", nil)
		}
	case StoreValkey:
		if len(c.Cache.Valkey.Addrs) == 0 {
			add("cache.valkey.addrs", "must not be empty", nil)
		}
	default:
		add("cache.store", "must be memory, redis or valkey", c.Cache.Store)
	}

	if _, err := cache.CodecByName(c.Cache.Codec); err != nil {
		add("cache.codec", "must be json or msgpack", c.Cache.Codec)
	}
	if c.Cache.BatchConcurrency < 0 {
		add("cache.batch_concurrency", "must be non-negative", c.Cache.BatchConcurrency)
	}
	if d := c.Cache.Defaults.CacheExpire; d != nil && *d < 0 {
		add("cache.defaults.cache_expire", "must be non-negative", d.String())
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		add("log.level", err.Error(), c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "must be text or json", c.Log.Format)
	}

	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("invalid configuration", fields...)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
