package query

import (
	"errors"
	"fmt"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/tsrewrite/pkg/metrics"
	"github.com/gnana997/tsrewrite/pkg/parser"
)

// PredicateEvaluator decides whether a candidate match satisfies one of its
// pattern's predicates.
type PredicateEvaluator interface {
	Satisfies(m *Match, p *Predicate) bool
}

type ignorePredicates struct{}

func (ignorePredicates) Satisfies(*Match, *Predicate) bool { return true }

// IgnorePredicates yields every structural match, including matches that
// would fail their predicates.
var IgnorePredicates PredicateEvaluator = ignorePredicates{}

// ErrNullNode is returned when executing against a null node or a node
// whose tree has been closed.
var ErrNullNode = errors.New("cannot execute query on a null node")

// Cursor enumerates the matches of one query below one node. A cursor is
// not safe for concurrent use and must be closed.
type Cursor struct {
	query   *Query
	root    parser.Node
	eval    PredicateEvaluator
	metrics *metrics.Metrics

	inner   *ts.QueryCursor
	matches ts.QueryMatches
	done    bool
}

// CursorOption configures a Cursor.
type CursorOption func(*Cursor)

// WithCursorMetrics records yielded matches and predicate rejections.
func WithCursorMetrics(m *metrics.Metrics) CursorOption {
	return func(c *Cursor) {
		c.metrics = m
	}
}

// Execute starts enumerating the matches of q below root.
//
// When eval is nil or IgnorePredicates, predicate clauses are not enforced.
// Otherwise a match is dropped as soon as one predicate of its pattern is
// not satisfied.
//
// Matches are produced in tree-sitter's completion order: a pre-order walk
// where a match is yielded once every node it captures has been visited. For
// non-nested matches this is source order.
func Execute(q *Query, root parser.Node, eval PredicateEvaluator, opts ...CursorOption) (*Cursor, error) {
	if root.IsNull() {
		return nil, ErrNullNode
	}
	if q.Language() != root.Tree().Language() {
		return nil, fmt.Errorf("query compiled for %s cannot run on a %s tree", q.Language(), root.Tree().Language())
	}
	inner, err := q.raw()
	if err != nil {
		return nil, err
	}
	if eval == nil {
		eval = IgnorePredicates
	}

	c := &Cursor{
		query: q,
		root:  root,
		eval:  eval,
		inner: ts.NewQueryCursor(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.matches = c.inner.Matches(inner, root.Raw(), root.Tree().Source())
	return c, nil
}

// NextMatch returns the next match that satisfies the evaluator, or false
// when the enumeration is exhausted.
func (c *Cursor) NextMatch() (*Match, bool) {
	if c.done {
		return nil, false
	}
	if c.root.IsNull() {
		c.finish()
		return nil, false
	}

	for {
		raw := c.matches.Next()
		if raw == nil {
			c.finish()
			return nil, false
		}

		m := c.convert(raw)
		if c.accept(m) {
			c.metrics.MatchYielded()
			return m, true
		}
	}
}

// AllRemainingMatches drains the cursor.
func (c *Cursor) AllRemainingMatches() []*Match {
	var matches []*Match
	for {
		m, ok := c.NextMatch()
		if !ok {
			return matches
		}
		matches = append(matches, m)
	}
}

// Close releases the native cursor. Safe to call more than once.
func (c *Cursor) Close() {
	c.finish()
}

func (c *Cursor) finish() {
	c.done = true
	if c.inner != nil {
		c.inner.Close()
		c.inner = nil
	}
}

// convert copies a raw match out of memory that the next call reuses.
func (c *Cursor) convert(raw *ts.QueryMatch) *Match {
	tree := c.root.Tree()
	m := &Match{
		PatternIndex: int(raw.PatternIndex),
		Captures:     make([]MatchCapture, 0, len(raw.Captures)),
	}
	for _, capture := range raw.Captures {
		node := capture.Node
		idx := int(capture.Index)
		m.Captures = append(m.Captures, MatchCapture{
			Name:  c.query.captures[idx].Name,
			Index: idx,
			Node:  tree.Wrap(&node),
		})
	}
	return m
}

func (c *Cursor) accept(m *Match) bool {
	if c.eval == IgnorePredicates {
		return true
	}
	pattern := &c.query.patterns[m.PatternIndex]
	for i := range pattern.Predicates {
		p := &pattern.Predicates[i]
		if !c.eval.Satisfies(m, p) {
			c.metrics.PredicateRejected(p.Name)
			return false
		}
	}
	return true
}

// Run executes q below root and returns every match.
func Run(q *Query, root parser.Node, eval PredicateEvaluator, opts ...CursorOption) ([]*Match, error) {
	cursor, err := Execute(q, root, eval, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	return cursor.AllRemainingMatches(), nil
}
