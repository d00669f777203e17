package predicates

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/query"
)

const messageMapQuery = `
(
(call_expression
    (argument_list . (_) . (_) .) @args) @call
(#in_message_map? @call @args))
`

func parseTestFile(t *testing.T, name string) *parser.Tree {
	t.Helper()

	source, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, "Should be able to read test file %s", name)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pm := parser.NewParserManager(logger)
	t.Cleanup(func() { _ = pm.Close() })

	tree, err := pm.ParseFile(source, name)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func run(t *testing.T, tree *parser.Tree, pattern string) []*query.Match {
	t.Helper()

	q, err := query.Compile(tree.Language(), pattern)
	require.NoError(t, err)
	t.Cleanup(q.Close)

	matches, err := query.Run(q, tree.RootNode(), New(tree.Source()))
	require.NoError(t, err)
	return matches
}

func TestEqPredicate(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	matches := run(t, tree, `
((function_declarator
    declarator: (_) @name)
(#eq? "main" @name))`)

	require.Len(t, matches, 1)
	assert.Equal(t, "main", matches[0].Text("name"))
}

func TestEqPredicateCaptureFirst(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	matches := run(t, tree, `
(field_expression
    argument: (_) @arg
    field: (_) @field
    (#eq? @arg "copy")) @from`)

	require.Len(t, matches, 1)
	assert.Equal(t, "copy.other", matches[0].Text("from"))
}

func TestEqPredicateBetweenCaptures(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	// `Object copy = object;` is the only declaration whose initializer
	// names a variable, and `object` is not `copy`.
	matches := run(t, tree, `
((init_declarator
    declarator: (identifier) @lhs
    value: (identifier) @rhs)
(#eq? @lhs @rhs))`)
	assert.Empty(t, matches)

	matches = run(t, tree, `
((binary_expression
    left: (identifier) @lhs
    right: (identifier) @rhs)
(#eq? @lhs @rhs))`)
	assert.Empty(t, matches)
}

func TestMatchPredicate(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	matches := run(t, tree, `
((function_declarator
    declarator: (_) @name)
(#match? "my(Other)?FreeFunction" @name))`)

	require.Len(t, matches, 2)
	assert.Equal(t, "myFreeFunction", matches[0].Text("name"))
	assert.Equal(t, "myOtherFreeFunction", matches[1].Text("name"))
}

func TestMatchPredicateSearchSemantics(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	// Unanchored expressions match anywhere in the capture text
	matches := run(t, tree, `
((function_declarator
    declarator: (_) @name)
(#match? @name "Free"))`)
	assert.Len(t, matches, 2)

	matches = run(t, tree, `
((function_declarator
    declarator: (_) @name)
(#match? @name "^Free"))`)
	assert.Empty(t, matches)
}

func TestQuantifiedCaptureUsesFirstBinding(t *testing.T) {
	tree := parseTestFile(t, "main.cpp")

	matches := run(t, tree, `
((parameter_list
    ["," (parameter_declaration) @arg]+)
(#eq? @arg "int a"))`)

	require.Len(t, matches, 2)
	assert.Len(t, matches[0].CapturesNamed("arg"), 2)
	assert.Len(t, matches[1].CapturesNamed("arg"), 3)
}

func TestInMessageMapPredicate(t *testing.T) {
	tree := parseTestFile(t, "message-map.cpp")
	require.False(t, tree.RootNode().HasError())

	matches := run(t, tree, messageMapQuery)

	var calls []string
	for _, m := range matches {
		call := mustFirst(t, m, "call")
		calls = append(calls, call.ChildByFieldName("function").Text())
	}
	assert.Equal(t, []string{"ON_BN_CLICKED", "ON_EN_CHANGE"}, calls)
}

func TestInMessageMapWithoutEvaluator(t *testing.T) {
	tree := parseTestFile(t, "message-map.cpp")

	q, err := query.Compile(parser.LanguageCpp, messageMapQuery)
	require.NoError(t, err)
	defer q.Close()

	// SetTimer, BEGIN_MESSAGE_MAP, the two entries and KillTimer
	matches, err := query.Run(q, tree.RootNode(), query.IgnorePredicates)
	require.NoError(t, err)
	assert.Len(t, matches, 5)
}

func TestInMessageMapTopLevelMacros(t *testing.T) {
	tree := parseTestFile(t, "mfc-TutorialDlg.cpp")

	for _, m := range run(t, tree, messageMapQuery) {
		assert.True(t, strings.HasPrefix(m.Text("call"), "ON_"),
			"only message map entries should match, got %q", m.Text("call"))
	}
}

func TestInMessageMapRequiresNestedArgs(t *testing.T) {
	tree := parseTestFile(t, "message-map.cpp")

	q, err := query.Compile(parser.LanguageCpp, messageMapQuery)
	require.NoError(t, err)
	defer q.Close()

	all, err := query.Run(q, tree.RootNode(), query.IgnorePredicates)
	require.NoError(t, err)
	require.Len(t, all, 5)

	// Swap the args of two different calls so they no longer nest
	entry := all[2]
	other := all[3]
	forged := &query.Match{
		PatternIndex: entry.PatternIndex,
		Captures: []query.MatchCapture{
			{Name: "call", Node: mustFirst(t, entry, "call")},
			{Name: "args", Node: mustFirst(t, other, "args")},
		},
	}

	eval := New(tree.Source())
	p := &q.Patterns()[0].Predicates[0]
	assert.True(t, eval.Satisfies(entry, p))
	assert.False(t, eval.Satisfies(forged, p))
}

func TestUnboundCapturesAreVacuous(t *testing.T) {
	eval := New([]byte("x"))
	empty := &query.Match{}

	eq := &query.Predicate{
		Kind: query.PredicateEq,
		Args: []query.Argument{
			{Kind: query.ArgCapture, Value: "a"},
			{Kind: query.ArgLiteral, Value: "x"},
		},
	}
	assert.True(t, eval.Satisfies(empty, eq))

	mm := &query.Predicate{
		Kind: query.PredicateInMessageMap,
		Args: []query.Argument{
			{Kind: query.ArgCapture, Value: "call"},
			{Kind: query.ArgCapture, Value: "args"},
		},
	}
	assert.False(t, eval.Satisfies(empty, mm))
}

func mustFirst(t *testing.T, m *query.Match, name string) parser.Node {
	t.Helper()
	n, ok := m.First(name)
	require.True(t, ok)
	return n
}
