package pricing

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openlit/openlit-sub000/observe"
)

// DefaultRefreshInterval is how long a loaded table is served before the
// next refresh.
const DefaultRefreshInterval = 24 * time.Hour

// StoreConfig configures a Store.
type StoreConfig struct {
	// Source loads tables. Required.
	Source Source

	// RefreshInterval is how long a table is served before it is reloaded.
	// Default: DefaultRefreshInterval
	RefreshInterval time.Duration

	// Initial is served until the first successful load.
	Initial *Table

	Retry   RetryConfig
	Breaker BreakerConfig

	// Logger receives refresh failures. Default: discard.
	Logger observe.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// Store serves the latest pricing table and refreshes it from a Source.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent refreshes share one load.
// - Errors: Refresh always returns a usable table (the last good one, or an
//   empty one) alongside any error.
type Store struct {
	source   Source
	interval time.Duration
	retry    RetryConfig
	breaker  *breaker
	logger   observe.Logger
	now      func() time.Time

	current atomic.Pointer[Table]
	sfGroup singleflight.Group
}

// NewStore creates a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		source:   cfg.Source,
		interval: cfg.RefreshInterval,
		retry:    cfg.Retry.withDefaults(),
		breaker:  newBreaker(cfg.Breaker, cfg.Now),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if cfg.Initial != nil {
		initial := *cfg.Initial
		initial.FetchedAt = time.Time{}
		s.current.Store(&initial)
	}
	return s, nil
}

// SourceFromConfig returns the Source described by an observe pricing
// section. A URL takes precedence over a file.
func SourceFromConfig(cfg observe.PricingConfig) (Source, error) {
	switch {
	case cfg.URL != "":
		return HTTPSource{URL: cfg.URL}, nil
	case cfg.File != "":
		return FileSource{Path: cfg.File}, nil
	default:
		return nil, ErrNoSource
	}
}

// Snapshot returns the current table without refreshing. It never returns
// nil.
func (s *Store) Snapshot() *Table {
	if t := s.current.Load(); t != nil {
		return t
	}
	return &Table{}
}

// BreakerState reports the refresh circuit state.
func (s *Store) BreakerState() BreakerState {
	return s.breaker.State()
}

// Refresh returns the current table, reloading it from the source when it is
// older than the refresh interval. On failure the previous table is
// returned together with the error.
func (s *Store) Refresh(ctx context.Context) (*Table, error) {
	if t := s.current.Load(); t != nil && !t.FetchedAt.IsZero() && s.now().Sub(t.FetchedAt) < s.interval {
		return t, nil
	}

	ch := s.sfGroup.DoChan("refresh", func() (any, error) {
		return s.load(context.WithoutCancel(ctx))
	})

	var (
		v   any
		err error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case r := <-ch:
		v, err = r.Val, r.Err
	}
	if err != nil {
		s.logger.Warn(ctx, "pricing refresh failed, serving previous table",
			observe.Field{Key: "error", Value: err},
			observe.Field{Key: "breaker", Value: s.breaker.State().String()},
		)
		return s.Snapshot(), err
	}
	return v.(*Table), nil
}

func (s *Store) load(ctx context.Context) (*Table, error) {
	if !s.breaker.allow() {
		return nil, ErrCircuitOpen
	}

	t, err := retry(ctx, s.retry, s.source.Load, func(attempt int, err error) {
		s.logger.Debug(ctx, "retrying pricing load",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "error", Value: err},
		)
	})
	s.breaker.record(err)
	if err != nil {
		return nil, err
	}

	// Sources may hand out shared tables; the snapshot gets its own header.
	snapshot := *t
	snapshot.FetchedAt = s.now()
	s.current.Store(&snapshot)
	return &snapshot, nil
}
