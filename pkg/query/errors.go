package query

import (
	"errors"
	"fmt"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Kind classifies a compilation failure. Kinds are mutually exclusive and
// reported in declaration order: a pattern with both a syntax error and an
// unknown predicate reports KindSyntax.
type Kind int

const (
	// KindSyntax: the pattern text is not well-formed.
	KindSyntax Kind = iota
	// KindNodeType: a referenced grammar symbol does not exist.
	KindNodeType
	// KindField: a referenced field name does not exist.
	KindField
	// KindStructure: a child constraint is impossible for its parent node type.
	KindStructure
	// KindCapture: a predicate references an unbound capture, or uses a
	// capture in a way the predicate forbids.
	KindCapture
	// KindPredicate: unknown predicate, wrong arity, wrong argument kind or
	// an invalid regular expression.
	KindPredicate
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindNodeType:
		return "node_type"
	case KindField:
		return "field"
	case KindStructure:
		return "structure"
	case KindCapture:
		return "capture"
	case KindPredicate:
		return "predicate"
	default:
		return "unknown"
	}
}

// ErrIncompatibleGrammar is returned when the grammar was generated for a
// tree-sitter ABI the runtime cannot load.
var ErrIncompatibleGrammar = errors.New("incompatible grammar version")

// Error is a query compilation failure.
type Error struct {
	Kind Kind

	// Row and Column are zero-based; Offset is the byte offset into the
	// pattern text.
	Row    uint
	Column uint
	Offset uint

	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("query %s error at %d:%d: %s", e.Kind, e.Row+1, e.Column+1, e.Message)
}

// IsKind reports whether err is a compilation *Error of kind k.
func IsKind(err error, k Kind) bool {
	var qerr *Error
	return errors.As(err, &qerr) && qerr.Kind == k
}

func newError(kind Kind, pattern string, offset int, format string, args ...any) *Error {
	row, col := position(pattern, offset)
	return &Error{
		Kind:    kind,
		Row:     row,
		Column:  col,
		Offset:  uint(offset),
		Message: fmt.Sprintf(format, args...),
	}
}

// fromTreeSitter converts a tree-sitter compile error.
func fromTreeSitter(qerr *ts.QueryError) error {
	var kind Kind
	switch qerr.Kind {
	case ts.QueryErrorSyntax:
		kind = KindSyntax
	case ts.QueryErrorNodeType:
		kind = KindNodeType
	case ts.QueryErrorField:
		kind = KindField
	case ts.QueryErrorStructure:
		kind = KindStructure
	case ts.QueryErrorCapture:
		kind = KindCapture
	case ts.QueryErrorPredicate:
		kind = KindPredicate
	case ts.QueryErrorLanguage:
		return fmt.Errorf("%w: %s", ErrIncompatibleGrammar, qerr.Message)
	default:
		kind = KindSyntax
	}

	message := qerr.Message
	switch kind {
	case KindNodeType:
		message = fmt.Sprintf("invalid node type %q", qerr.Message)
	case KindField:
		message = fmt.Sprintf("invalid field %q", qerr.Message)
	case KindSyntax, KindStructure:
		message = strings.TrimSpace(message)
	}

	return &Error{
		Kind:    kind,
		Row:     qerr.Row,
		Column:  qerr.Column,
		Offset:  qerr.Offset,
		Message: message,
	}
}

// position converts a byte offset into zero-based row and column.
func position(text string, offset int) (row, col uint) {
	if offset > len(text) {
		offset = len(text)
	}
	lineStart := 0
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			row++
			lineStart = i + 1
		}
	}
	return row, uint(offset - lineStart)
}
