// Package query compiles structural patterns against a grammar and runs
// them over syntax trees.
//
// A pattern is tree-sitter query syntax. Predicate clauses of the form
// (#name? arg ...) are validated and evaluated by this package rather than
// by tree-sitter: the vocabulary is closed (eq?, match?, in_message_map?),
// unknown names are rejected at compile time, and literals may appear in
// any argument position.
package query

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/tsrewrite/pkg/parser"
)

// Capture is a named binding site declared by a query.
type Capture struct {
	Name  string
	Index int
}

// ArgKind distinguishes capture references from literal strings.
type ArgKind int

const (
	ArgCapture ArgKind = iota
	ArgLiteral
)

func (k ArgKind) String() string {
	if k == ArgCapture {
		return "capture"
	}
	return "literal"
}

// Argument is one predicate argument. For ArgCapture, Value is the capture
// name without the leading '@'.
type Argument struct {
	Kind  ArgKind
	Value string

	offset int
}

// PredicateKind is the closed set of supported predicates.
type PredicateKind int

const (
	PredicateEq PredicateKind = iota
	PredicateMatch
	PredicateInMessageMap
)

var predicateKinds = map[string]PredicateKind{
	"eq?":             PredicateEq,
	"match?":          PredicateMatch,
	"in_message_map?": PredicateInMessageMap,
}

// Predicate is a validated predicate clause.
type Predicate struct {
	// Name as written without the '#', e.g. "eq?".
	Name string
	Kind PredicateKind
	Args []Argument

	// Regexp is the compiled literal of a match? predicate.
	Regexp *regexp.Regexp
}

// Pattern is one top-level pattern of a query.
type Pattern struct {
	Index      int
	Predicates []Predicate
}

// Query is a compiled, immutable pattern set. It is safe for concurrent use
// by multiple cursors.
type Query struct {
	inner    *ts.Query
	lang     parser.Language
	source   string
	captures []Capture
	patterns []Pattern

	// bound[p][c] reports whether pattern p binds capture c.
	bound [][]bool

	closeOnce sync.Once
	cleanup   runtime.Cleanup
}

// Compile compiles pattern for lang.
//
// On failure the returned error is an *Error whose Kind identifies the
// failure class, except for grammar loading problems which wrap
// ErrIncompatibleGrammar or describe the unsupported language.
func Compile(lang parser.Language, pattern string) (*Query, error) {
	grammar, err := lang.Grammar()
	if err != nil {
		return nil, err
	}

	structural, clauses, lexErr := liftClauses(pattern)
	if lexErr != nil {
		return nil, lexErr
	}

	inner, qerr := ts.NewQuery(grammar, structural)
	if qerr != nil {
		return nil, fromTreeSitter(qerr)
	}

	q := &Query{
		inner:  inner,
		lang:   lang,
		source: pattern,
	}
	for i, name := range inner.CaptureNames() {
		q.captures = append(q.captures, Capture{Name: name, Index: i})
	}
	q.bound = make([][]bool, inner.PatternCount())
	for i := range q.bound {
		quantifiers := inner.CaptureQuantifiers(uint(i))
		q.bound[i] = make([]bool, len(quantifiers))
		for c, quantifier := range quantifiers {
			q.bound[i][c] = quantifier != ts.CaptureQuantifierZero
		}
	}

	predicates, cerr := q.validate(clauses)
	if cerr != nil {
		inner.Close()
		return nil, cerr
	}

	count := int(inner.PatternCount())
	q.patterns = make([]Pattern, count)
	for i := range q.patterns {
		q.patterns[i] = Pattern{Index: i, Predicates: predicates[i]}
	}

	q.cleanup = runtime.AddCleanup(q, func(inner *ts.Query) { inner.Close() }, inner)
	return q, nil
}

// validate assigns each clause to the pattern it appears in and checks
// captures first, then predicate shape.
func (q *Query) validate(clauses []clause) ([][]Predicate, *Error) {
	count := int(q.inner.PatternCount())
	owners := make([]int, len(clauses))
	for i, c := range clauses {
		owners[i] = q.ownerOf(c.start, count)
	}

	for i, c := range clauses {
		if err := q.checkCaptures(c, owners[i]); err != nil {
			return nil, err
		}
	}

	predicates := make([][]Predicate, count)
	for i, c := range clauses {
		p, err := q.checkPredicate(c)
		if err != nil {
			return nil, err
		}
		if owners[i] >= 0 {
			predicates[owners[i]] = append(predicates[owners[i]], p)
		}
	}
	return predicates, nil
}

// ownerOf returns the index of the last pattern starting at or before
// offset, or -1 when the offset precedes every pattern.
func (q *Query) ownerOf(offset, count int) int {
	owner := -1
	for i := 0; i < count; i++ {
		if int(q.inner.StartByteForPattern(uint(i))) > offset {
			break
		}
		owner = i
	}
	return owner
}

func (q *Query) checkCaptures(c clause, owner int) *Error {
	seen := make(map[string]bool)
	for _, arg := range c.args {
		if arg.Kind != ArgCapture {
			continue
		}

		if !q.HasCapture(arg.Value) {
			return newError(KindCapture, q.source, arg.offset, "undefined capture @%s", arg.Value)
		}
		if !q.BindsCapture(owner, arg.Value) {
			return newError(KindCapture, q.source, arg.offset,
				"capture @%s is not bound by the pattern of #%s", arg.Value, c.name)
		}

		kind, known := predicateKinds[c.name]
		if known && kind != PredicateMatch && seen[arg.Value] {
			return newError(KindCapture, q.source, arg.offset,
				"#%s compares capture @%s with itself", c.name, arg.Value)
		}
		seen[arg.Value] = true
	}
	return nil
}

func (q *Query) checkPredicate(c clause) (Predicate, *Error) {
	kind, ok := predicateKinds[c.name]
	if !ok {
		return Predicate{}, newError(KindPredicate, q.source, c.start, "unknown predicate #%s", c.name)
	}
	if len(c.args) != 2 {
		return Predicate{}, newError(KindPredicate, q.source, c.start,
			"wrong number of arguments to #%s: expected 2, got %d", c.name, len(c.args))
	}

	p := Predicate{Name: c.name, Kind: kind, Args: c.args}
	captures := 0
	for _, arg := range c.args {
		if arg.Kind == ArgCapture {
			captures++
		}
	}

	switch kind {
	case PredicateEq:
		if captures == 0 {
			return Predicate{}, newError(KindPredicate, q.source, c.start,
				"#eq? needs at least one capture argument")
		}

	case PredicateMatch:
		if captures != 1 {
			return Predicate{}, newError(KindPredicate, q.source, c.start,
				"#match? expects one capture and one regular expression literal")
		}
		literal := c.args[0]
		if literal.Kind == ArgCapture {
			literal = c.args[1]
		}
		re, err := regexp.Compile(literal.Value)
		if err != nil {
			return Predicate{}, newError(KindPredicate, q.source, literal.offset,
				"invalid regular expression %q: %v", literal.Value, err)
		}
		p.Regexp = re

	case PredicateInMessageMap:
		if captures != 2 {
			return Predicate{}, newError(KindPredicate, q.source, c.start,
				"#in_message_map? expects two capture arguments")
		}
	}

	return p, nil
}

// Captures returns every capture in order of first appearance.
func (q *Query) Captures() []Capture {
	return q.captures
}

// Patterns returns the top-level patterns in source order.
func (q *Query) Patterns() []Pattern {
	return q.patterns
}

// PatternCount returns the number of top-level patterns.
func (q *Query) PatternCount() int {
	return len(q.patterns)
}

// CaptureIndex returns the index of the named capture.
func (q *Query) CaptureIndex(name string) (int, bool) {
	for _, c := range q.captures {
		if c.Name == name {
			return c.Index, true
		}
	}
	return 0, false
}

// HasCapture reports whether the query declares the named capture.
func (q *Query) HasCapture(name string) bool {
	_, ok := q.CaptureIndex(name)
	return ok
}

// BindsCapture reports whether the given pattern binds the named capture.
func (q *Query) BindsCapture(pattern int, name string) bool {
	idx, ok := q.CaptureIndex(name)
	if !ok || pattern < 0 || pattern >= len(q.bound) {
		return false
	}
	return q.bound[pattern][idx]
}

// Language returns the grammar the query was compiled for.
func (q *Query) Language() parser.Language {
	return q.lang
}

// Source returns the pattern text the query was compiled from.
func (q *Query) Source() string {
	return q.source
}

// Close releases the native query immediately. It must not be called while
// a cursor is still running the query. Queries that are never closed are
// released once they become unreachable.
func (q *Query) Close() {
	q.closeOnce.Do(func() {
		q.cleanup.Stop()
		q.inner.Close()
		q.inner = nil
	})
}

func (q *Query) raw() (*ts.Query, error) {
	if q.inner == nil {
		return nil, fmt.Errorf("query is closed")
	}
	return q.inner, nil
}
