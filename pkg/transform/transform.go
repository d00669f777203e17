// Package transform rewrites source text from query matches until no
// further match is found.
package transform

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gnana997/tsrewrite/pkg/metrics"
	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/predicates"
	"github.com/gnana997/tsrewrite/pkg/query"
	"github.com/gnana997/tsrewrite/pkg/util"
)

const (
	// DefaultWholeMatchCapture names the capture whose span is replaced.
	DefaultWholeMatchCapture = "from"

	// DefaultMaxPasses bounds the parse and rewrite rounds of a run.
	DefaultMaxPasses = 100
)

// Parser produces syntax trees. *parser.ParserManager satisfies it.
type Parser interface {
	Parse(source []byte, lang parser.Language) (*parser.Tree, error)
}

// Transformation rewrites one source text with one query and template.
//
// Each pass parses the current text, collects the matches that satisfy
// their predicates, and replaces the span of every match's whole-match
// capture with the expanded template. Edits are applied rightmost first.
// An edit overlapping one already applied in the same pass is left for the
// next pass, which sees the rewritten text. The run ends successfully on
// the first pass that finds no match.
type Transformation struct {
	source   string
	parser   Parser
	query    *query.Query
	template string

	wholeMatch string
	maxPasses  int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Transformation.
type Option func(*Transformation)

// WithWholeMatchCapture sets the capture whose span each match replaces.
// An empty name keeps the default.
func WithWholeMatchCapture(name string) Option {
	return func(t *Transformation) {
		if name != "" {
			t.wholeMatch = name
		}
	}
}

// WithMaxPasses sets the pass limit. Non-positive values keep the default.
func WithMaxPasses(n int) Option {
	return func(t *Transformation) {
		if n > 0 {
			t.maxPasses = n
		}
	}
}

// WithLogger sets the logger for pass diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformation) {
		t.logger = logger
	}
}

// WithMetrics records match and pass statistics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transformation) {
		t.metrics = m
	}
}

// New creates a transformation of source. Placeholders of the form @name
// in template are replaced with the text bound to the capture name.
func New(source string, p Parser, q *query.Query, template string, opts ...Option) *Transformation {
	t := &Transformation{
		source:     source,
		parser:     p,
		query:      q,
		template:   template,
		wholeMatch: DefaultWholeMatchCapture,
		maxPasses:  DefaultMaxPasses,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = util.OrDefault(t.logger)
	return t
}

// edit replaces text[start:end] with text.
type edit struct {
	rng  parser.ByteRange
	text string
}

// Run executes the transformation and returns the rewritten text. When the
// first pass finds no match the input is returned unchanged.
func (t *Transformation) Run() (string, error) {
	if err := t.checkWholeMatch(); err != nil {
		t.metrics.TransformFinished("error", 0, 0)
		return "", err
	}

	text := t.source
	applied := 0

	for pass := 1; pass <= t.maxPasses; pass++ {
		edits, err := t.collect(text)
		if err != nil {
			t.metrics.TransformFinished("error", pass, applied)
			return "", fmt.Errorf("transformation pass %d: %w", pass, err)
		}

		if len(edits) == 0 {
			t.logger.Debug("transformation converged",
				"passes", pass,
				"edits", applied)
			t.metrics.TransformFinished("converged", pass, applied)
			return text, nil
		}

		var n int
		text, n = apply(text, edits)
		applied += n

		t.logger.Debug("transformation pass",
			"pass", pass,
			"matches", len(edits),
			"applied", n)
	}

	t.logger.Warn("transformation did not converge",
		"max_passes", t.maxPasses,
		"edits", applied)
	t.metrics.TransformFinished("non_convergent", t.maxPasses, applied)

	return "", &Error{
		Err:     ErrNonConvergent,
		Capture: t.wholeMatch,
		Pattern: -1,
		Pass:    t.maxPasses,
	}
}

func (t *Transformation) checkWholeMatch() error {
	if !t.query.HasCapture(t.wholeMatch) {
		return &Error{Err: ErrMissingWholeMatchCapture, Capture: t.wholeMatch, Pattern: -1}
	}
	for i := 0; i < t.query.PatternCount(); i++ {
		if !t.query.BindsCapture(i, t.wholeMatch) {
			return &Error{Err: ErrMissingWholeMatchCapture, Capture: t.wholeMatch, Pattern: i}
		}
	}
	return nil
}

// collect parses text and returns one edit per accepted match.
func (t *Transformation) collect(text string) ([]edit, error) {
	tree, err := t.parser.Parse([]byte(text), t.query.Language())
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	source := tree.Source()
	matches, err := query.Run(t.query, tree.RootNode(), predicates.New(source),
		query.WithCursorMetrics(t.metrics))
	if err != nil {
		return nil, err
	}

	captures := t.query.Captures()
	edits := make([]edit, 0, len(matches))
	for _, m := range matches {
		node, ok := m.First(t.wholeMatch)
		if !ok {
			// A quantified or optional whole-match capture left unbound.
			return nil, &Error{
				Err:     ErrMissingWholeMatchCapture,
				Capture: t.wholeMatch,
				Pattern: m.PatternIndex,
			}
		}
		edits = append(edits, edit{
			rng:  node.Range(),
			text: expand(t.template, m, captures, source),
		})
	}
	return edits, nil
}

// apply performs the edits rightmost first and skips any edit that ends
// after the start of one already applied. It returns the new text and the
// number of edits applied.
func apply(text string, edits []edit) (string, int) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].rng.Start != edits[j].rng.Start {
			return edits[i].rng.Start > edits[j].rng.Start
		}
		return edits[i].rng.End > edits[j].rng.End
	})

	accepted := make([]edit, 0, len(edits))
	limit := uint(len(text))
	for _, e := range edits {
		if e.rng.End > limit {
			continue
		}
		accepted = append(accepted, e)
		limit = e.rng.Start
	}

	var b strings.Builder
	b.Grow(len(text))
	pos := uint(0)
	for i := len(accepted) - 1; i >= 0; i-- {
		e := accepted[i]
		b.WriteString(text[pos:e.rng.Start])
		b.WriteString(e.text)
		pos = e.rng.End
	}
	b.WriteString(text[pos:])

	return b.String(), len(accepted)
}
