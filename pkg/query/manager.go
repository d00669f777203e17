package query

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gnana997/tsrewrite/pkg/metrics"
	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/util"
)

// DefaultCacheSize is the number of compiled queries kept by a Manager.
const DefaultCacheSize = 128

// queryKey uniquely identifies a compiled query (language + pattern text).
type queryKey struct {
	lang    parser.Language
	pattern string
}

// Manager compiles queries on demand and keeps the most recently used ones.
//
// Features:
//   - Lazy compilation: a pattern is compiled on first use
//   - Bounded LRU cache keyed by language and pattern text
//   - Concurrent Get calls for the same pattern compile it once
//
// Compilation failures are not cached, so a corrected pattern can be
// retried immediately.
//
// Usage:
//
//	qm := NewManager(logger)
//	defer qm.Close()
//
//	q, err := qm.Get(parser.LanguageCpp, `(field_expression) @from`)
//	if err != nil {
//	    return err
//	}
type Manager struct {
	cache *lru.Cache[queryKey, *Query]

	// compileMu serializes compilation so concurrent misses on the same
	// key compile once.
	compileMu sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	stats  ManagerStats
	closed bool
}

// ManagerStats reports cache effectiveness.
type ManagerStats struct {
	Hits     int
	Misses   int
	Compiled int
	Failed   int
	Cached   int
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	cacheSize int
	metrics   *metrics.Metrics
}

// WithCacheSize sets the LRU capacity. Non-positive values select
// DefaultCacheSize.
func WithCacheSize(size int) ManagerOption {
	return func(c *managerConfig) {
		if size > 0 {
			c.cacheSize = size
		}
	}
}

// WithMetrics records compilations and cache lookups into m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(c *managerConfig) {
		c.metrics = m
	}
}

// ErrManagerClosed is returned by Get after Close.
var ErrManagerClosed = errors.New("query manager is closed")

// NewManager creates a new query manager. Logger can be nil.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	cfg := managerConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[queryKey, *Query](cfg.cacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which the option guards.
		panic(fmt.Sprintf("query cache: %v", err))
	}

	return &Manager{
		cache:   cache,
		logger:  util.OrDefault(logger),
		metrics: cfg.metrics,
	}
}

// Get returns the compiled query for pattern, compiling it on a cache miss.
//
// Evicted queries are released once no caller references them anymore, so
// a query returned by Get stays valid for as long as the caller holds it.
func (m *Manager) Get(lang parser.Language, pattern string) (*Query, error) {
	key := queryKey{lang: lang, pattern: pattern}

	if m.isClosed() {
		return nil, ErrManagerClosed
	}

	// Fast path: already compiled
	if q, ok := m.cache.Get(key); ok {
		m.record(func(s *ManagerStats) { s.Hits++ })
		m.metrics.QueryCacheLookup(true)
		return q, nil
	}

	m.compileMu.Lock()
	defer m.compileMu.Unlock()

	// Double-check: another goroutine may have compiled it
	if q, ok := m.cache.Get(key); ok {
		m.record(func(s *ManagerStats) { s.Hits++ })
		m.metrics.QueryCacheLookup(true)
		return q, nil
	}

	m.record(func(s *ManagerStats) { s.Misses++ })
	m.metrics.QueryCacheLookup(false)

	q, err := Compile(lang, pattern)
	if err != nil {
		m.record(func(s *ManagerStats) { s.Failed++ })
		m.metrics.QueryCompiled(resultLabel(err))
		m.logger.Debug("query compilation failed",
			"language", lang.String(),
			"error", err)
		return nil, err
	}

	m.record(func(s *ManagerStats) { s.Compiled++ })
	m.metrics.QueryCompiled("ok")
	m.cache.Add(key, q)

	m.logger.Debug("compiled query",
		"language", lang.String(),
		"patterns", q.PatternCount(),
		"captures", len(q.Captures()))

	return q, nil
}

// Stats returns a snapshot of cache statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Cached = m.cache.Len()
	return s
}

// Close drops every cached query. Queries already handed out remain usable
// and are released once unreachable.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stats := m.stats
	m.mu.Unlock()

	m.logger.Info("closing query manager",
		"queries_cached", m.cache.Len(),
		"queries_compiled", stats.Compiled,
		"cache_hits", stats.Hits)

	m.cache.Purge()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) record(update func(*ManagerStats)) {
	m.mu.Lock()
	update(&m.stats)
	m.mu.Unlock()
}

func resultLabel(err error) string {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr.Kind.String()
	}
	return "error"
}
