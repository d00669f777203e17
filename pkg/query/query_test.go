package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/tsrewrite/pkg/parser"
)

const simplePattern = `
(field_expression
    argument: (_) @arg
    field: (_) @field
    (#eq? @arg "object")
    ) @from
`

func TestCompileErrors(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		kind    Kind
	}{
		{"missing paren", "(field_expression", KindSyntax},
		{"unknown node type", "(field_expr)", KindNodeType},
		{"unknown field", "(field_expression arg: (_))", KindField},
		{"impossible child", `(field_expression "*")`, KindStructure},
		{"unbound capture", "(field_expression (#eq? @from @from))", KindCapture},
		{"self comparison", "((identifier) @x (#eq? @x @x))", KindCapture},
		{"undefined capture", `((identifier) @a (#eq? @b "x"))`, KindCapture},
		{"capture from another pattern", `(identifier) @a ((number_literal) @b (#eq? @a "1"))`, KindCapture},
		{"unknown predicate", "(#non_existing_predicate?)", KindPredicate},
		{"eq without arguments", "(#eq?)", KindPredicate},
		{"eq with two literals", `((identifier) @a (#eq? "x" "y"))`, KindPredicate},
		{"match without arguments", "(#match?)", KindPredicate},
		{"invalid regex", `((identifier) @ident (#match? "tes[" @ident))`, KindPredicate},
		{"match without capture", `(#match? "test" "test")`, KindPredicate},
		{"match without literal", "((identifier) @a (number_literal) @b (#match? @a @b))", KindPredicate},
		{"in_message_map without arguments", "(#in_message_map?)", KindPredicate},
		{"in_message_map with literal", `((identifier) @a (#in_message_map? @a "x"))`, KindPredicate},
		{"unterminated predicate", `((identifier) @a (#eq? @a "x"`, KindSyntax},
		{"nested expression in predicate", "((identifier) @a (#eq? @a (identifier)))", KindSyntax},
		{"empty capture name", `((identifier) @a (#eq? @ "x"))`, KindSyntax},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Compile(parser.LanguageCpp, tc.pattern)
			require.Error(t, err)
			assert.Nil(t, q)

			var qerr *Error
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, tc.kind, qerr.Kind, "unexpected kind for %q: %v", tc.pattern, err)
			assert.True(t, IsKind(err, tc.kind))
		})
	}
}

func TestCompileErrorsWithStrayParen(t *testing.T) {
	for _, pattern := range []string{
		"((identifier) @ident (#match? @ident @ident)))",
		`(#in_message_map? "xxxx"))`,
	} {
		_, err := Compile(parser.LanguageCpp, pattern)
		assert.Error(t, err, pattern)
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := Compile(parser.LanguageCpp, "(translation_unit)\n(field_expr)")
	require.Error(t, err)

	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindNodeType, qerr.Kind)
	assert.Equal(t, uint(1), qerr.Row)
	assert.Equal(t, uint(1), qerr.Column)
	assert.Contains(t, qerr.Error(), "field_expr")

	_, err = Compile(parser.LanguageCpp, "(identifier) @a\n  ((identifier) @b (#frobnicate? @b))")
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, KindPredicate, qerr.Kind)
	assert.Equal(t, uint(1), qerr.Row)
	assert.Equal(t, uint(19), qerr.Column)
}

func TestCompileUnknownLanguage(t *testing.T) {
	_, err := Compile(parser.LanguageUnknown, "(identifier)")
	assert.Error(t, err)
}

func TestSimpleQueryStructure(t *testing.T) {
	q, err := Compile(parser.LanguageCpp, simplePattern)
	require.NoError(t, err)
	defer q.Close()

	assert.Equal(t, []Capture{
		{Name: "arg", Index: 0},
		{Name: "field", Index: 1},
		{Name: "from", Index: 2},
	}, q.Captures())

	patterns := q.Patterns()
	require.Len(t, patterns, 1)
	require.Len(t, patterns[0].Predicates, 1)

	p := patterns[0].Predicates[0]
	assert.Equal(t, "eq?", p.Name)
	assert.Equal(t, PredicateEq, p.Kind)
	require.Len(t, p.Args, 2)
	assert.Equal(t, ArgCapture, p.Args[0].Kind)
	assert.Equal(t, "arg", p.Args[0].Value)
	assert.Equal(t, ArgLiteral, p.Args[1].Kind)
	assert.Equal(t, "object", p.Args[1].Value)

	assert.True(t, q.HasCapture("from"))
	assert.True(t, q.BindsCapture(0, "from"))
	assert.False(t, q.BindsCapture(1, "from"))
	assert.False(t, q.HasCapture("missing"))
	assert.Equal(t, parser.LanguageCpp, q.Language())
	assert.Equal(t, simplePattern, q.Source())
}

func TestPredicatesAssignedPerPattern(t *testing.T) {
	q, err := Compile(parser.LanguageCpp, `
((identifier) @a (#eq? @a "x"))
((number_literal) @n (#match? @n "^[0-9]+$") (#eq? "1" @n))
(field_expression) @f
`)
	require.NoError(t, err)
	defer q.Close()

	patterns := q.Patterns()
	require.Len(t, patterns, 3)
	assert.Len(t, patterns[0].Predicates, 1)
	require.Len(t, patterns[1].Predicates, 2)
	assert.Empty(t, patterns[2].Predicates)

	match := patterns[1].Predicates[0]
	assert.Equal(t, PredicateMatch, match.Kind)
	require.NotNil(t, match.Regexp)
	assert.True(t, match.Regexp.MatchString("42"))

	assert.Equal(t, ArgLiteral, patterns[1].Predicates[1].Args[0].Kind)
	assert.Equal(t, ArgCapture, patterns[1].Predicates[1].Args[1].Kind)
}

func TestLiteralFirstPredicates(t *testing.T) {
	for _, pattern := range []string{
		`((function_declarator declarator: (_) @name) (#eq? "main" @name))`,
		`((function_declarator declarator: (_) @name) (#match? "my(Other)?FreeFunction" @name))`,
	} {
		q, err := Compile(parser.LanguageCpp, pattern)
		require.NoError(t, err, pattern)
		q.Close()
	}
}

func TestQueryCloseIsIdempotent(t *testing.T) {
	q, err := Compile(parser.LanguageCpp, "(identifier) @id")
	require.NoError(t, err)

	q.Close()
	q.Close()

	_, err = q.raw()
	assert.Error(t, err)
}

func TestLiftClauses(t *testing.T) {
	src := "((identifier) @a\n  (#eq? @a \"x\\\"y\")\n)"
	stripped, clauses, err := liftClauses(src)
	require.Nil(t, err)

	assert.Len(t, stripped, len(src), "offsets must be preserved")
	assert.Equal(t, "((identifier) @a\n"+strings.Repeat(" ", 18)+"\n)", stripped)

	require.Len(t, clauses, 1)
	c := clauses[0]
	assert.Equal(t, "eq?", c.name)
	assert.Equal(t, src[c.start:c.end], "(#eq? @a \"x\\\"y\")")
	require.Len(t, c.args, 2)
	assert.Equal(t, Argument{Kind: ArgCapture, Value: "a", offset: 25}, c.args[0])
	assert.Equal(t, ArgLiteral, c.args[1].Kind)
	assert.Equal(t, `x"y`, c.args[1].Value)
}

func TestLiftClausesIgnoresStringsAndComments(t *testing.T) {
	src := "; (#eq? @a \"b\")\n((identifier) @a (#match? @a \"(#x\"))\n\"(#eq?\""
	stripped, clauses, err := liftClauses(src)
	require.Nil(t, err)

	require.Len(t, clauses, 1)
	assert.Equal(t, "match?", clauses[0].name)
	assert.Equal(t, "(#x", clauses[0].args[1].Value)
	assert.Contains(t, stripped, "; (#eq? @a \"b\")")
	assert.Contains(t, stripped, "\"(#eq?\"")
}

func TestLiftClausesBareLiteral(t *testing.T) {
	_, clauses, err := liftClauses("((identifier) @a (#eq? @a main))")
	require.Nil(t, err)
	require.Len(t, clauses, 1)
	assert.Equal(t, Argument{Kind: ArgLiteral, Value: "main", offset: 26}, clauses[0].args[1])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "syntax", KindSyntax.String())
	assert.Equal(t, "node_type", KindNodeType.String())
	assert.Equal(t, "field", KindField.String())
	assert.Equal(t, "structure", KindStructure.String())
	assert.Equal(t, "capture", KindCapture.String())
	assert.Equal(t, "predicate", KindPredicate.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
