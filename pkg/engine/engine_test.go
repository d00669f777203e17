package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/tsrewrite/pkg/config"
	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/transform"
	"github.com/gnana997/tsrewrite/pkg/util"
)

const memberToArrow = `
(field_expression
    argument: (_) @arg
    "."
    field: (_) @field
    ) @from
`

func newTestEngine(t *testing.T, cfg *config.Config, reg prometheus.Registerer) *Engine {
	t.Helper()
	eng, err := New(cfg, util.NewDiscardLogger(), reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func readTestFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, "Should be able to read test file %s", name)
	return string(data)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Query.CacheSize = 0

	_, err := New(cfg, util.NewDiscardLogger(), nil)
	assert.Error(t, err)
}

func TestNewWithDefaults(t *testing.T) {
	eng, err := New(nil, util.NewDiscardLogger(), nil)
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, util.GetOptimalPoolSize(), eng.Stats().Parser.PoolSize)
}

func TestTransform(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	out, err := eng.Transform(readTestFile(t, "main.cpp"), parser.LanguageCpp, memberToArrow, "@arg->@field")
	require.NoError(t, err)
	assert.Equal(t, readTestFile(t, "main-arrow.cpp"), out)

	_, err = eng.Transform("int x;", parser.LanguageCpp, memberToArrow, "@arg->@field")
	require.NoError(t, err)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.Query.Compiled, "The pattern should be compiled once")
	assert.Equal(t, 1, stats.Query.Hits)
}

func TestTransformUsesConfiguredDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Transform.MaxPasses = 2
	cfg.Transform.WholeMatchCapture = "access"
	eng := newTestEngine(t, cfg, nil)

	pattern := `(field_expression argument: (_) @arg field: (_) @field) @access`
	_, err := eng.Transform("int f() { return a.b; }", parser.LanguageCpp, pattern, "@arg->@field")
	require.ErrorIs(t, err, transform.ErrNonConvergent)

	var terr *transform.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Pass)
	assert.Equal(t, "access", terr.Capture)

	// Per-call options win over the configuration
	_, err = eng.Transform("int f() { return a.b; }", parser.LanguageCpp, memberToArrow, "@arg->@field",
		transform.WithWholeMatchCapture("from"))
	assert.NoError(t, err)
}

func TestParseAndMatch(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	tree, err := eng.ParseFile([]byte(readTestFile(t, "main.cpp")), "main.cpp")
	require.NoError(t, err)
	defer tree.Close()

	q, err := eng.Compile(parser.LanguageCpp, `
((function_declarator declarator: (_) @name)
 (#match? "my(Other)?FreeFunction" @name))`)
	require.NoError(t, err)

	matches, err := eng.Matches(q, tree.RootNode())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "myFreeFunction", matches[0].Text("name"))
	assert.Equal(t, "myOtherFreeFunction", matches[1].Text("name"))

	cursor, err := eng.Execute(q, tree.RootNode(), false)
	require.NoError(t, err)
	defer cursor.Close()
	assert.Len(t, cursor.AllRemainingMatches(), 5, "Every function declarator matches without predicates")
}

func TestRules(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	rules, err := eng.LoadRules([]byte(readTestFile(t, "rules.yaml")))
	require.NoError(t, err)

	out, ran, err := eng.ApplyRules(rules, "src/main.cpp", readTestFile(t, "main.cpp"))
	require.NoError(t, err)
	assert.Equal(t, []string{"member-to-arrow", "rename-helper"}, ran)
	assert.Contains(t, out, "copy->other")
	assert.Contains(t, out, "int compute()")

	_, err = eng.LoadRules([]byte("rules: []"))
	assert.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	cfg := config.Default()
	cfg.Transform.BatchLimit = 2
	eng := newTestEngine(t, cfg, nil)

	q, err := eng.Compile(parser.LanguageCpp, memberToArrow)
	require.NoError(t, err)

	results, err := eng.RunBatch(context.Background(), []transform.Job{
		{Name: "a.cpp", Source: "int f() { return a.b; }", Query: q, Template: "@arg->@field"},
		{Name: "b.cpp", Source: "int g() { return c.d; }", Query: q, Template: "@arg->@field"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "int f() { return a->b; }", results[0].Output)
	assert.Equal(t, "int g() { return c->d; }", results[1].Output)
}

func TestDocumentAnchors(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	source := readTestFile(t, "main.cpp")
	doc := eng.NewDocument(source)
	a, err := doc.NewAnchor(len(source))
	require.NoError(t, err)

	out, err := eng.Transform(doc.Text(), parser.LanguageCpp, memberToArrow, "@arg->@field")
	require.NoError(t, err)
	require.NoError(t, doc.Replace(0, doc.Len(), out))

	// Replacing the whole text collapses the end anchor to the start
	assert.Equal(t, 0, a.Position())

	b, err := doc.NewAnchor(doc.Len())
	require.NoError(t, err)
	require.NoError(t, doc.Insert(0, "// generated\n"))
	assert.Equal(t, len(out)+13, b.Position())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng := newTestEngine(t, nil, reg)

	_, err := eng.Transform(readTestFile(t, "main.cpp"), parser.LanguageCpp, memberToArrow, "@arg->@field")
	require.NoError(t, err)

	for _, name := range []string{
		"tsrewrite_parses_total",
		"tsrewrite_query_compiles_total",
		"tsrewrite_query_cache_lookups_total",
		"tsrewrite_matches_total",
		"tsrewrite_transform_passes",
		"tsrewrite_transform_edits_total",
	} {
		count, err := testutil.GatherAndCount(reg, name)
		require.NoError(t, err)
		assert.Equal(t, 1, count, name)
	}
}
