package query

import "github.com/gnana997/tsrewrite/pkg/parser"

// MatchCapture is one node bound to a capture within a match.
type MatchCapture struct {
	Name  string
	Index int
	Node  parser.Node
}

// Match is one successful pattern match. A capture name appears more than
// once only when its binding site is quantified; repeated bindings are in
// tree order.
type Match struct {
	PatternIndex int
	Captures     []MatchCapture
}

// CapturesNamed returns every binding of the named capture.
func (m *Match) CapturesNamed(name string) []MatchCapture {
	var out []MatchCapture
	for _, c := range m.Captures {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Nodes returns the nodes bound to the named capture.
func (m *Match) Nodes(name string) []parser.Node {
	var out []parser.Node
	for _, c := range m.Captures {
		if c.Name == name {
			out = append(out, c.Node)
		}
	}
	return out
}

// First returns the first node bound to the named capture.
func (m *Match) First(name string) (parser.Node, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c.Node, true
		}
	}
	return parser.Node{}, false
}

// Text returns the source text of the first binding of name, or "".
func (m *Match) Text(name string) string {
	n, ok := m.First(name)
	if !ok {
		return ""
	}
	return n.Text()
}

// Range returns the smallest byte range covering every captured node.
func (m *Match) Range() parser.ByteRange {
	var r parser.ByteRange
	for i, c := range m.Captures {
		cr := c.Node.Range()
		if i == 0 {
			r = cr
			continue
		}
		if cr.Start < r.Start {
			r.Start = cr.Start
		}
		if cr.End > r.End {
			r.End = cr.End
		}
	}
	return r
}
