package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gnana997/tsrewrite/pkg/metrics"
	"github.com/gnana997/tsrewrite/pkg/util"
)

// ErrManagerClosed is returned by Parse after Close has been called.
var ErrManagerClosed = errors.New("parser manager is closed")

// ParserManager manages tree-sitter parsers for multiple languages with
// lazy initialization and thread-safe concurrent access.
//
// Memory Management:
// - Parser pools are created lazily on first use per language
// - ParserManager owns parser pool instances and must be closed via Close()
// - Callers own Tree instances and must call tree.Close() after use
//
// Thread Safety:
// - Multiple goroutines can parse the same language simultaneously
// - Pool creation is synchronized with write locks
// - Close waits for in-flight parses to return their parsers
//
// Example:
//
//	manager := NewParserManager(logger)
//	defer manager.Close()
//
//	tree, err := manager.Parse([]byte("int main() {}"), LanguageCpp)
//	if err != nil {
//	    return err
//	}
//	defer tree.Close()
type ParserManager struct {
	// pools stores parser pools per language (lazily initialized)
	pools map[Language]*parserPool

	// mutex provides thread-safe access to pools map and stats
	mutex sync.RWMutex

	// inflight is held shared by every Parse and exclusively by Close
	inflight sync.RWMutex
	closed   bool

	poolSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	stats struct {
		parsesCalled int
	}
}

// Option configures a ParserManager.
type Option func(*ParserManager)

// WithPoolSize caps the number of parsers per language. Zero or a negative
// value selects util.GetOptimalPoolSize().
func WithPoolSize(size int) Option {
	return func(pm *ParserManager) {
		pm.poolSize = util.GetOptimalPoolSizeWithOverride(size)
	}
}

// WithMetrics records parse counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pm *ParserManager) {
		pm.metrics = m
	}
}

// NewParserManager creates a new ParserManager instance.
//
// The returned manager must be closed via Close() to free resources.
func NewParserManager(logger *slog.Logger, opts ...Option) *ParserManager {
	pm := &ParserManager{
		pools:    make(map[Language]*parserPool),
		poolSize: util.GetOptimalPoolSize(),
		logger:   util.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// Parse parses source with the grammar for lang.
//
// Parsing never fails on malformed input: syntax errors are represented as
// error/missing nodes inside the returned tree. An error is returned only
// for an unsupported language or a closed manager.
//
// The tree keeps a private copy of source. It MUST be closed by the caller.
func (pm *ParserManager) Parse(source []byte, lang Language) (*Tree, error) {
	if lang == LanguageUnknown {
		return nil, fmt.Errorf("cannot parse unknown language")
	}

	pm.inflight.RLock()
	defer pm.inflight.RUnlock()
	if pm.closed {
		return nil, ErrManagerClosed
	}

	pm.mutex.Lock()
	pm.stats.parsesCalled++
	pm.mutex.Unlock()

	pool, err := pm.getOrCreatePool(lang)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool for %s: %w", lang, err)
	}

	parser, err := pool.acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire parser: %w", err)
	}

	raw := parser.Parse(source, nil)
	pool.release(parser)

	if raw == nil {
		return nil, fmt.Errorf("parser.Parse returned nil tree")
	}

	tree := newTree(raw, source, lang)

	// Partial trees are still useful, so errors are only logged.
	hasError := tree.RootNode().HasError()
	if hasError {
		pm.logger.Warn("parse tree contains errors",
			"language", lang.String(),
			"bytes", len(source))
	}
	pm.metrics.ParseCompleted(lang.String(), hasError)

	return tree, nil
}

// ParseFile parses source using the language detected from filePath.
func (pm *ParserManager) ParseFile(source []byte, filePath string) (*Tree, error) {
	lang := DetectLanguage(filePath)
	if lang == LanguageUnknown {
		return nil, fmt.Errorf("unsupported file extension: %s", filePath)
	}
	return pm.Parse(source, lang)
}

// Close releases all parser pool resources. Trees already returned stay
// valid until they are closed themselves.
func (pm *ParserManager) Close() error {
	pm.inflight.Lock()
	defer pm.inflight.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	pm.logger.Info("closing ParserManager",
		"pools", len(pm.pools),
		"parses_called", pm.stats.parsesCalled)

	for _, pool := range pm.pools {
		pool.close()
	}
	pm.pools = make(map[Language]*parserPool)

	return nil
}

// getOrCreatePool returns an existing parser pool or creates a new one.
// Thread-safe using double-checked locking pattern.
func (pm *ParserManager) getOrCreatePool(lang Language) (*parserPool, error) {
	pm.mutex.RLock()
	pool, exists := pm.pools[lang]
	pm.mutex.RUnlock()

	if exists {
		return pool, nil
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pool, exists = pm.pools[lang]; exists {
		return pool, nil
	}

	grammar, err := lang.Grammar()
	if err != nil {
		return nil, err
	}

	pool = newParserPool(lang, grammar, pm.poolSize, pm.logger)
	pm.pools[lang] = pool

	pm.logger.Debug("created new parser pool",
		"language", lang.String(),
		"maxSize", pm.poolSize)

	return pool, nil
}

// GetStats returns parser usage statistics.
func (pm *ParserManager) GetStats() ParserStats {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	totalParsers := 0
	for _, pool := range pm.pools {
		totalParsers += pool.getCreatedCount()
	}

	return ParserStats{
		ParsersCreated: totalParsers,
		ParsesCalled:   pm.stats.parsesCalled,
		PoolSize:       pm.poolSize,
	}
}

// ParserStats contains parser usage statistics.
type ParserStats struct {
	// ParsersCreated is the total number of parser instances created
	ParsersCreated int

	// ParsesCalled is the total number of Parse() calls
	ParsesCalled int

	// PoolSize is the per-language parser cap
	PoolSize int
}
