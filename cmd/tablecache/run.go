package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-table-cache/config"
	"github.com/goliatone/go-table-cache/pkg/di"
	"github.com/goliatone/go-table-cache/table"
	"github.com/goliatone/go-table-cache/tablecache"
)

var errUsage = errors.New("usage error")

type options struct {
	configPath  string
	envFiles    []string
	lookupEnv   func(string) (string, bool)
	logLevel    string
	logFormat   string
	keySep      string
	numericKeys bool
	stdout      io.Writer
	stderr      io.Writer
}

// session is the state shared by one command invocation.
type session struct {
	opts   options
	logger *slog.Logger
	table  *tablecache.CachedTable
	schema table.Schema
	out    *json.Encoder
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, s *session, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"get", "KEY: read one record through the cache", runGet},
		{"batch-get", "KEY...: read many records through the cache, in argument order", runBatchGet},
		{"put", "JSON: create a record and cache it", runPut},
		{"update", "JSON: update a record and drop its cache entry", runUpdate},
		{"destroy", "KEY: delete a record and its cache entry", runDestroy},
		{"uncache", "KEY: drop a cache entry, leaving the table untouched", runUncache},
		{"query", "HASH: read one page of records sharing a hash key", runQuery},
		{"scan", "read one page of the whole table", runScan},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func run(ctx context.Context, opts options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, ok := lookupCommand(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	loadOpts := []config.LoadOption{config.WithEnvFiles(opts.envFiles...)}
	if opts.lookupEnv != nil {
		loadOpts = append(loadOpts, config.WithLookupEnv(opts.lookupEnv))
	}
	cfg, err := config.Load(opts.configPath, loadOpts...)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}

	logger := di.NewLogger(cfg.Log, opts.stderr).With("request_id", uuid.NewString(), "command", cmd.name)
	container, err := di.NewContainer(cfg, di.WithLogger(logger))
	if err != nil {
		return err
	}
	defer container.Close()

	if cfg.Metrics.Enabled {
		stopMetrics := serveMetrics(container, cfg.Metrics.Addr, logger)
		defer stopMetrics()
	}

	base, err := container.OpenTable(ctx)
	if err != nil {
		return err
	}
	cached, err := container.CachedTable(base)
	if err != nil {
		return err
	}
	defer func() {
		if err := cached.Flush(context.Background()); err != nil {
			logger.Warn("Pending cache writes failed.", "err", err)
		}
	}()

	out := json.NewEncoder(opts.stdout)
	out.SetIndent("", "  ")
	s := &session{opts: opts, logger: logger, table: cached, schema: cfg.Table, out: out}

	started := time.Now()
	err = cmd.run(ctx, s, args[1:])
	logger.Debug("Command finished.", "elapsed", time.Since(started), "err", err)
	return err
}

func serveMetrics(container *di.Container, addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(container.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics listener stopped.", "addr", addr, "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// cacheFlags registers the per call cache overrides shared by read commands.
func cacheFlags(fs *flag.FlagSet) func() []tablecache.Option {
	skip := fs.Bool("skip_cache", false, "Bypass the cache for this read.")
	only := fs.Bool("cache_only", false, "Never fall through to the table on a miss.")
	ttl := fs.Duration("ttl", 0, "Expiry for entries written by this call.")
	attrs := fs.String("attributes", "", "Comma separated attributes to read.")
	consistent := fs.Bool("consistent", false, "Use a strongly consistent read.")

	return func() []tablecache.Option {
		var opts []tablecache.Option
		if *skip {
			opts = append(opts, tablecache.CacheSkip(true))
		}
		if *only {
			opts = append(opts, tablecache.ReadCacheOnly(true))
		}
		if *ttl > 0 {
			opts = append(opts, tablecache.CacheExpire(*ttl))
		}
		if *attrs != "" {
			opts = append(opts, tablecache.Attributes(strings.Split(*attrs, ",")...))
		}
		if *consistent {
			opts = append(opts, tablecache.ConsistentRead())
		}
		return opts
	}
}

func parseFlags(name string, args []string, register func(fs *flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUsage, name, err)
	}
	return fs, nil
}

func runGet(ctx context.Context, s *session, args []string) error {
	var opts func() []tablecache.Option
	fs, err := parseFlags("get", args, func(fs *flag.FlagSet) { opts = cacheFlags(fs) })
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: get takes exactly one key", errUsage)
	}
	key, err := s.parseKey(fs.Arg(0))
	if err != nil {
		return err
	}

	item, err := s.table.Get(ctx, key, opts()...)
	if err != nil {
		return err
	}
	if item != nil {
		s.logger.Info("Record read.", "key", s.table.CacheKey(key), "from_cache", item.IsFromCache())
	}
	return s.out.Encode(item)
}

func runBatchGet(ctx context.Context, s *session, args []string) error {
	var opts func() []tablecache.Option
	fs, err := parseFlags("batch-get", args, func(fs *flag.FlagSet) { opts = cacheFlags(fs) })
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: batch-get takes at least one key", errUsage)
	}
	keys := make([]table.Key, 0, fs.NArg())
	for _, arg := range fs.Args() {
		key, err := s.parseKey(arg)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	items, err := s.table.GetItems(ctx, keys, opts()...)
	if err != nil {
		return err
	}
	hits := 0
	for _, item := range items {
		if item.IsFromCache() {
			hits++
		}
	}
	s.logger.Info("Records read.", "requested", len(keys), "found", len(items), "cache_hits", hits)
	return s.out.Encode(items)
}

func runPut(ctx context.Context, s *session, args []string) error {
	var noOverwrite *bool
	fs, err := parseFlags("put", args, func(fs *flag.FlagSet) {
		noOverwrite = fs.Bool("no_overwrite", false, "Fail when the record already exists.")
	})
	if err != nil {
		return err
	}
	record, err := parseRecord(fs.Args())
	if err != nil {
		return err
	}

	item, err := s.table.Create(ctx, record, tablecache.Overwrite(!*noOverwrite))
	if err != nil {
		return err
	}
	if err := item.CacheWrite().Wait(ctx); err != nil {
		s.logger.Warn("Record created but not cached.", "err", err)
	}
	return s.out.Encode(item)
}

func runUpdate(ctx context.Context, s *session, args []string) error {
	record, err := parseRecord(args)
	if err != nil {
		return err
	}
	item, err := s.table.Update(ctx, record)
	if err != nil {
		return err
	}
	return s.out.Encode(item)
}

func runDestroy(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: destroy takes exactly one key", errUsage)
	}
	key, err := s.parseKey(args[0])
	if err != nil {
		return err
	}
	item, err := s.table.Destroy(ctx, key)
	if err != nil {
		return err
	}
	return s.out.Encode(item)
}

func runUncache(ctx context.Context, s *session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: uncache takes at least one key", errUsage)
	}
	for _, arg := range args {
		key, err := s.parseKey(arg)
		if err != nil {
			return err
		}
		if err := s.table.Uncache(ctx, key); err != nil {
			return err
		}
		s.logger.Info("Cache entry removed.", "key", s.table.CacheKey(key))
	}
	return nil
}

// pageOutput is the JSON shape printed by query and scan.
type pageOutput struct {
	Items            []*tablecache.Item `json:"items"`
	Count            int                `json:"count"`
	LastEvaluatedKey table.Record       `json:"last_evaluated_key,omitempty"`
}

func pageFlags(fs *flag.FlagSet) (limit *int, start *string, cacheResults *bool, ttl *time.Duration) {
	limit = fs.Int("limit", 0, "Maximum number of records in the page.")
	start = fs.String("start", "", "Key to resume after, as printed in last_evaluated_key.")
	cacheResults = fs.Bool("cache_results", false, "Cache every record of the page.")
	ttl = fs.Duration("ttl", 0, "Expiry for cached page records.")
	return
}

func runQuery(ctx context.Context, s *session, args []string) error {
	var (
		limit        *int
		start        *string
		cacheResults *bool
		ttl          *time.Duration
		descending   *bool
		index        *string
	)
	fs, err := parseFlags("query", args, func(fs *flag.FlagSet) {
		limit, start, cacheResults, ttl = pageFlags(fs)
		descending = fs.Bool("desc", false, "Read range keys in descending order.")
		index = fs.String("index", "", "Secondary index to query.")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: query takes exactly one hash key", errUsage)
	}

	params := table.QueryParams{Limit: *limit, Descending: *descending, IndexName: *index}
	exec := s.table.Query(s.parseValue(fs.Arg(0)), params)
	return s.execPage(ctx, exec, *start, *cacheResults, *ttl)
}

func runScan(ctx context.Context, s *session, args []string) error {
	var (
		limit        *int
		start        *string
		cacheResults *bool
		ttl          *time.Duration
		segments     *int
	)
	fs, err := parseFlags("scan", args, func(fs *flag.FlagSet) {
		limit, start, cacheResults, ttl = pageFlags(fs)
		segments = fs.Int("segments", 0, "Scan the whole table in this many parallel segments.")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: scan takes no arguments", errUsage)
	}

	params := table.ScanParams{Limit: *limit}
	exec := s.table.Scan(params)
	if *segments > 0 {
		exec = s.table.ParallelScan(*segments, params)
	}
	return s.execPage(ctx, exec, *start, *cacheResults, *ttl)
}

func (s *session) execPage(ctx context.Context, exec *tablecache.CachedExec, start string, cacheResults bool, ttl time.Duration) error {
	if start != "" {
		var startKey table.Record
		if err := json.Unmarshal([]byte(start), &startKey); err != nil {
			return fmt.Errorf("%w: start key: %v", errUsage, err)
		}
		exec = exec.StartFrom(startKey)
	}
	if cacheResults {
		if ttl > 0 {
			exec = exec.CacheResults(true, ttl)
		} else {
			exec = exec.CacheResults(true)
		}
	}

	page, err := exec.Exec(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("Page read.", "count", page.Count, "scanned", page.ScannedCount, "more", page.HasMore())
	return s.out.Encode(pageOutput{Items: page.Items, Count: page.Count, LastEvaluatedKey: page.LastEvaluatedKey})
}

// parseKey splits "hash" or "hash<sep>range" into a table key.
func (s *session) parseKey(arg string) (table.Key, error) {
	if !s.schema.HasRange() {
		return table.HashKey(s.parseValue(arg)), nil
	}
	hash, rng, ok := strings.Cut(arg, s.opts.keySep)
	if !ok || hash == "" || rng == "" {
		return table.Key{}, fmt.Errorf("%w: key %q must be hash%srange", errUsage, arg, s.opts.keySep)
	}
	return table.CompositeKey(s.parseValue(hash), s.parseValue(rng)), nil
}

func (s *session) parseValue(v string) any {
	if s.opts.numericKeys {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return v
}

func parseRecord(args []string) (table.Record, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected one JSON object", errUsage)
	}
	var record table.Record
	if err := json.Unmarshal([]byte(args[0]), &record); err != nil {
		return nil, fmt.Errorf("%w: record: %v", errUsage, err)
	}
	return record, nil
}
