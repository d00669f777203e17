// Package engine wires the parser pools, the compiled query cache, the
// predicate evaluator and the transformation loop behind one handle.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gnana997/tsrewrite/pkg/anchor"
	"github.com/gnana997/tsrewrite/pkg/config"
	"github.com/gnana997/tsrewrite/pkg/metrics"
	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/predicates"
	"github.com/gnana997/tsrewrite/pkg/query"
	"github.com/gnana997/tsrewrite/pkg/transform"
	"github.com/gnana997/tsrewrite/pkg/util"
)

// Engine is the entry point for hosts (editors, refactoring tools) that
// parse, query and rewrite source text.
//
// **Thread Safety:** every method is safe for concurrent use. Trees,
// queries and matches returned by the engine are read-only.
//
// **Usage:**
//
//	eng, err := engine.New(config.Default(), logger, nil)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	out, err := eng.Transform(src, parser.LanguageCpp, pattern, "@arg->@field")
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	parsers *parser.ParserManager
	queries *query.Manager
}

// New creates an engine from cfg. A nil logger builds one from the
// config's logging section. A nil reg disables metrics.
func New(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = util.NewLogger(cfg.LoggerConfig(nil))
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	poolSize := util.GetOptimalPoolSizeWithOverride(cfg.Parser.PoolSize)

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		parsers: parser.NewParserManager(logger,
			parser.WithPoolSize(poolSize),
			parser.WithMetrics(m)),
		queries: query.NewManager(logger,
			query.WithCacheSize(cfg.Query.CacheSize),
			query.WithMetrics(m)),
	}

	logger.Info("engine initialized",
		"parser_pool_size", poolSize,
		"query_cache_size", cfg.Query.CacheSize,
		"max_passes", cfg.Transform.MaxPasses)
	return e, nil
}

// Parse parses source with the grammar of lang.
func (e *Engine) Parse(source []byte, lang parser.Language) (*parser.Tree, error) {
	return e.parsers.Parse(source, lang)
}

// ParseFile parses source with the grammar detected from filePath.
func (e *Engine) ParseFile(source []byte, filePath string) (*parser.Tree, error) {
	return e.parsers.ParseFile(source, filePath)
}

// Compile returns the compiled query for pattern, served from the cache
// when possible.
func (e *Engine) Compile(lang parser.Language, pattern string) (*query.Query, error) {
	return e.queries.Get(lang, pattern)
}

// Execute starts enumerating the matches of q below root. When
// withPredicates is false, predicate clauses are not enforced.
func (e *Engine) Execute(q *query.Query, root parser.Node, withPredicates bool) (*query.Cursor, error) {
	var eval query.PredicateEvaluator = query.IgnorePredicates
	if withPredicates && !root.IsNull() {
		eval = predicates.New(root.Tree().Source())
	}
	return query.Execute(q, root, eval, query.WithCursorMetrics(e.metrics))
}

// Matches returns every predicate-filtered match of q below root.
func (e *Engine) Matches(q *query.Query, root parser.Node) ([]*query.Match, error) {
	cursor, err := e.Execute(q, root, true)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	return cursor.AllRemainingMatches(), nil
}

// Transform compiles pattern and rewrites source until no match remains.
// Options override the configured defaults.
func (e *Engine) Transform(source string, lang parser.Language, pattern, template string, opts ...transform.Option) (string, error) {
	q, err := e.Compile(lang, pattern)
	if err != nil {
		return "", err
	}
	return transform.New(source, e.parsers, q, template, e.transformOptions(opts)...).Run()
}

// LoadRules parses and compiles a YAML rule recipe.
func (e *Engine) LoadRules(data []byte) (*transform.CompiledRules, error) {
	rs, err := transform.ParseRules(data)
	if err != nil {
		return nil, err
	}
	compiled, err := rs.Compile(e.queries)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("rules loaded", "rules", len(compiled.Rules))
	return compiled, nil
}

// ApplyRules runs every rule targeting path over source. It returns the
// rewritten text and the names of the rules that ran.
func (e *Engine) ApplyRules(rules *transform.CompiledRules, path, source string) (string, []string, error) {
	return rules.Apply(e.parsers, path, source, e.transformOptions(nil)...)
}

// RunBatch transforms independent jobs concurrently, bounded by the
// configured batch limit. Job options override the configured defaults.
func (e *Engine) RunBatch(ctx context.Context, jobs []transform.Job) ([]transform.Result, error) {
	prepared := make([]transform.Job, len(jobs))
	for i, job := range jobs {
		job.Options = e.transformOptions(job.Options)
		prepared[i] = job
	}

	results, err := transform.RunBatch(ctx, e.parsers, prepared, e.cfg.Transform.BatchLimit)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.logger.Info("batch finished",
		"jobs", len(jobs),
		"failed", failed)
	return results, err
}

// NewDocument creates an anchor document logging through the engine's
// logger.
func (e *Engine) NewDocument(text string) *anchor.Document {
	return anchor.NewDocument(text, e.logger)
}

// Stats reports parser and query cache statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Parser: e.parsers.GetStats(),
		Query:  e.queries.Stats(),
	}
}

// Stats groups the statistics of the engine's components.
type Stats struct {
	Parser parser.ParserStats
	Query  query.ManagerStats
}

// Close releases every parser and cached query.
func (e *Engine) Close() error {
	qerr := e.queries.Close()
	perr := e.parsers.Close()
	if perr != nil {
		return fmt.Errorf("failed to close parsers: %w", perr)
	}
	return qerr
}

func (e *Engine) transformOptions(opts []transform.Option) []transform.Option {
	all := []transform.Option{
		transform.WithMaxPasses(e.cfg.Transform.MaxPasses),
		transform.WithWholeMatchCapture(e.cfg.Transform.WholeMatchCapture),
		transform.WithLogger(e.logger),
		transform.WithMetrics(e.metrics),
	}
	return append(all, opts...)
}
