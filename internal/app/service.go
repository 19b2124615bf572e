// Package service provides the ranking service behind the HTTP API. It wires
// the aspect catalog, score and aggregation engines, the ranking store and
// the sharded apply pool.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/reputation/internal/adapters/mq/worker"
	"github.com/okian/reputation/internal/adapters/repository"
	"github.com/okian/reputation/internal/domain/aggregation"
	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/dedupe"
	"github.com/okian/reputation/internal/domain/scoring"
	"github.com/okian/reputation/pkg/logger"
	"github.com/okian/reputation/pkg/metrics"
)

const (
	defaultQueueSize    = 1024
	defaultDedupeSize   = 50000
	defaultApplyTimeout = 5 * time.Second
	stopTimeout         = 30 * time.Second
)

// StoreOpener opens the ranking store when the service starts.
type StoreOpener func(ctx context.Context) (repository.Store, error)

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	catalog    *catalog.Catalog
	scorer     *scoring.Engine
	aggregator *aggregation.Engine
	store      repository.Store
	claims     dedupe.Claims
	pool       *worker.Pool
	tracer     trace.Tracer

	openStore      StoreOpener
	shardCount     int
	queueSize      int
	dedupeSize     int
	applyTimeout   time.Duration
	summaryTopN    int
	strictAspects  bool
	defaultRaterID string
	clock          func() time.Time

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCatalog replaces the default aspect catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithStore makes the service use an already opened store. The service
// closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.openStore = func(context.Context) (repository.Store, error) { return store, nil }
		}
	}
}

// WithStoreOpener defers opening the store to Start.
func WithStoreOpener(open StoreOpener) Option {
	return func(s *Service) {
		if open != nil {
			s.openStore = open
		}
	}
}

// WithSQLitePath stores rankings in the SQLite database at path.
func WithSQLitePath(path string, opts ...repository.SQLiteOption) Option {
	return WithStoreOpener(func(ctx context.Context) (repository.Store, error) {
		return repository.NewSQLiteStore(ctx, path, opts...)
	})
}

// WithShardCount sets the number of apply shards.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithQueueSize sets the capacity of each shard queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the transaction claim cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithApplyTimeout bounds a single apply transaction.
func WithApplyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.applyTimeout = d
		}
	}
}

// WithSummaryTopN sets how many aspects per polarity a summary keeps.
func WithSummaryTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.summaryTopN = n
		}
	}
}

// WithStrictAspects toggles rejection of aspect codes outside the catalog.
func WithStrictAspects(strict bool) Option {
	return func(s *Service) {
		s.strictAspects = strict
	}
}

// WithDefaultRaterID fills the rater of submissions that carry none.
func WithDefaultRaterID(id string) Option {
	return func(s *Service) {
		s.defaultRaterID = id
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		catalog:       catalog.Default(),
		shardCount:    runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		applyTimeout:  defaultApplyTimeout,
		summaryTopN:   aggregation.DefaultTopN,
		strictAspects: true,
		clock:         time.Now,
		tracer:        otel.Tracer("github.com/okian/reputation/internal/app"),
		openStore: func(context.Context) (repository.Store, error) {
			return repository.NewMemoryStore(), nil
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.scorer = scoring.New(s.catalog)
	s.aggregator = aggregation.New(s.catalog)
	return s
}

// Start opens the store and starts the apply pool. The pool outlives ctx
// cancellation and is drained by Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting ranking service...")

	store, err := s.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open ranking store: %w", err)
	}
	s.store = store
	s.claims = dedupe.NewInMemoryClaims(dedupe.WithMaxSize(s.dedupeSize))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = worker.NewPool(s.shardCount, worker.ApplierFunc(s.apply),
		worker.WithQueueCapacity(s.queueSize),
		worker.WithJobTimeout(s.applyTimeout),
	)
	s.pool.Start(runCtx)

	if n, err := s.store.CountRecords(ctx); err == nil {
		metrics.UpdatePartiesTotal(n)
	}

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.String("store", s.store.Backend()),
		logger.Int("shards", s.pool.Shards()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("strictAspects", s.strictAspects),
		logger.Int("catalogSize", s.catalog.Len()),
	)
	return nil
}

// Stop drains the apply pool and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping ranking service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "apply pool did not drain", logger.Error(err))
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

// IsStarted reports whether Start completed and Stop has not run.
func (s *Service) IsStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns runtime figures of the service.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"strict_aspects": s.strictAspects,
		"summary_top_n":  s.summaryTopN,
		"catalog_size":   s.catalog.Len(),
	}
	if !s.started {
		return stats
	}

	stats["store"] = s.store.Backend()
	stats["shards"] = s.pool.Shards()
	stats["queue_length"] = s.pool.Len(ctx)
	stats["claim_cache_size"] = s.claims.Size()
	if n, err := s.store.CountRecords(ctx); err == nil {
		stats["parties"] = n
	}
	return stats
}

// CountParties returns the number of parties with a ranking record.
func (s *Service) CountParties(ctx context.Context) (int, error) {
	store, err := s.running()
	if err != nil {
		return 0, err
	}
	n, err := store.CountRecords(ctx)
	if err != nil {
		return 0, wrap("count parties", ErrStorage, err)
	}
	return n, nil
}

func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrUnavailable
	}
	return s.store, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
