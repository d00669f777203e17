// Package predicates evaluates the predicate clauses of compiled queries
// against the source text a tree was parsed from.
package predicates

import (
	"regexp"

	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/query"
)

// messageMapMarker finds the macros that open and close an MFC message map.
var messageMapMarker = regexp.MustCompile(`\b(BEGIN|END)_MESSAGE_MAP\b`)

// Predicates implements query.PredicateEvaluator for one source text.
//
// A capture that a quantified pattern left unbound satisfies eq? and
// match? vacuously. When a capture has several bindings, its first binding
// is the one compared.
type Predicates struct {
	source []byte
}

var _ query.PredicateEvaluator = (*Predicates)(nil)

// New returns an evaluator that resolves capture text from source.
func New(source []byte) *Predicates {
	return &Predicates{source: source}
}

// Satisfies reports whether m satisfies p.
func (e *Predicates) Satisfies(m *query.Match, p *query.Predicate) bool {
	switch p.Kind {
	case query.PredicateEq:
		return e.eq(m, p)
	case query.PredicateMatch:
		return e.match(m, p)
	case query.PredicateInMessageMap:
		return e.inMessageMap(m, p)
	}
	return false
}

// resolve returns the text of arg and whether it is bound in m.
func (e *Predicates) resolve(m *query.Match, arg query.Argument) (string, bool) {
	if arg.Kind == query.ArgLiteral {
		return arg.Value, true
	}
	node, ok := m.First(arg.Value)
	if !ok {
		return "", false
	}
	return node.TextIn(e.source), true
}

func (e *Predicates) eq(m *query.Match, p *query.Predicate) bool {
	lhs, ok := e.resolve(m, p.Args[0])
	if !ok {
		return true
	}
	rhs, ok := e.resolve(m, p.Args[1])
	if !ok {
		return true
	}
	return lhs == rhs
}

func (e *Predicates) match(m *query.Match, p *query.Predicate) bool {
	capture := p.Args[0]
	if capture.Kind != query.ArgCapture {
		capture = p.Args[1]
	}
	text, ok := e.resolve(m, capture)
	if !ok {
		return true
	}
	return p.Regexp.MatchString(text)
}

func (e *Predicates) inMessageMap(m *query.Match, p *query.Predicate) bool {
	call, ok := m.First(p.Args[0].Value)
	if !ok {
		return false
	}
	args, ok := m.First(p.Args[1].Value)
	if !ok {
		return false
	}
	if !call.Range().Contains(args.Range()) {
		return false
	}

	// The registration macros themselves are not entries.
	if fn := call.ChildByFieldName("function"); !fn.IsNull() {
		if messageMapMarker.MatchString(fn.TextIn(e.source)) {
			return false
		}
	}

	return e.openMessageMapBefore(call)
}

// openMessageMapBefore walks outwards from node and reports whether the
// closest message map macro preceding it is a BEGIN_MESSAGE_MAP. At each
// level only the earlier siblings are scanned, nearest first, so the cost
// is bounded by the nesting depth times the sibling count.
func (e *Predicates) openMessageMapBefore(node parser.Node) bool {
	for ; !node.IsNull(); node = node.Parent() {
		for sibling := node.PrevSibling(); !sibling.IsNull(); sibling = sibling.PrevSibling() {
			if sibling.Kind() == "comment" {
				continue
			}
			markers := messageMapMarker.FindAllStringSubmatch(sibling.TextIn(e.source), -1)
			if len(markers) == 0 {
				continue
			}
			return markers[len(markers)-1][1] == "BEGIN"
		}
	}
	return false
}
