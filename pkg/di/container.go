package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/config"
	redisstore "github.com/goliatone/go-table-cache/stores/redis"
	valkeystore "github.com/goliatone/go-table-cache/stores/valkey"
	"github.com/goliatone/go-table-cache/table"
	"github.com/goliatone/go-table-cache/table/bunstore"
	"github.com/goliatone/go-table-cache/table/dynamo"
	"github.com/goliatone/go-table-cache/tablecache"
)

// Container builds the cache store, codec, logger and metrics described by
// a config.Config once and hands them to every cached table it creates.
type Container struct {
	config   *config.Config
	store    cache.Store
	codec    cache.Codec
	logger   *slog.Logger
	registry prometheus.Registerer
	metrics  *tablecache.Metrics
	closers  []func() error
}

type Option func(*Container)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithStore uses store instead of building one from the configuration.
func WithStore(store cache.Store) Option {
	return func(c *Container) {
		c.store = store
	}
}

// WithRegisterer registers metrics on reg. Metrics are only collected when
// enabled in the configuration.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registry = reg
	}
}

// NewContainer wires the components described by cfg.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = NewLogger(cfg.Log, os.Stderr)
	}

	codec, err := cache.CodecByName(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}
	c.codec = codec

	if c.store == nil {
		store, err := c.buildStore()
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	if cfg.Metrics.Enabled {
		if c.registry == nil {
			c.registry = prometheus.NewRegistry()
		}
		c.metrics = tablecache.NewMetrics(c.registry)
	}
	return c, nil
}

// NewContainerWithDefaults creates a container with an in-process store.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(config.Default())
}

func (c *Container) buildStore() (cache.Store, error) {
	cfg := c.config.Cache
	switch cfg.Store {
	case config.StoreMemory, "":
		return cache.NewMemoryStore(cfg.Memory)
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, client.Close)
		return redisstore.New(client), nil
	case config.StoreValkey:
		client, err := valkey.NewClient(valkey.ClientOption{
			InitAddress:  cfg.Valkey.Addrs,
			DisableCache: cfg.Valkey.ClientSideCache <= 0,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		c.closers = append(c.closers, func() error {
			client.Close()
			return nil
		})
		var opts []valkeystore.Option
		if cfg.Valkey.ClientSideCache > 0 {
			opts = append(opts, valkeystore.WithClientSideCache(cfg.Valkey.ClientSideCache))
		}
		return valkeystore.New(client, opts...), nil
	default:
		return nil, &cache.ConfigError{Field: "Store", Message: "unknown cache store " + cfg.Store}
	}
}

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Store() cache.Store {
	return c.store
}

func (c *Container) Codec() cache.Codec {
	return c.codec
}

func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Metrics returns nil when metrics are disabled.
func (c *Container) Metrics() *tablecache.Metrics {
	return c.metrics
}

// Gatherer returns the metrics registry when it can be scraped.
func (c *Container) Gatherer() prometheus.Gatherer {
	g, _ := c.registry.(prometheus.Gatherer)
	return g
}

// TableConfig returns the decorator configuration for a table named
// tableName.
func (c *Container) TableConfig(tableName string) tablecache.Config {
	cfg := tablecache.DefaultConfig()
	cfg.Defaults = c.config.Cache.Defaults
	cfg.BatchConcurrency = c.config.Cache.BatchConcurrency
	cfg.AsyncWrites = c.config.Cache.AsyncWrites
	cfg.Codec = c.codec
	cfg.Logger = c.logger
	cfg.Metrics = c.metrics
	if c.config.Cache.KeyPrefix != "" {
		cfg.Keys = cache.NewKeyDeriver(tableName, cache.WithKeyPrefix(c.config.Cache.KeyPrefix))
	}
	return cfg
}

// CachedTable wraps base with the container's cache store.
func (c *Container) CachedTable(base table.Table) (*tablecache.CachedTable, error) {
	return tablecache.New(base, c.store, c.TableConfig(base.Schema().TableName))
}

// OpenTable connects the configured backing table.
func (c *Container) OpenTable(ctx context.Context) (table.Table, error) {
	switch c.config.Backend {
	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, c.config.Dynamo)
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, c.config.Table)
	case config.BackendSQLite:
		sqldb, err := sql.Open("sqlite3", c.config.SQLite.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		c.closers = append(c.closers, db.Close)

		store, err := bunstore.New(db, c.config.Table)
		if err != nil {
			return nil, err
		}
		if err := store.CreateTable(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, &cache.ConfigError{Field: "Backend", Message: "unknown backend " + c.config.Backend}
	}
}

// Close releases connections opened by the container.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
