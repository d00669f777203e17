package parser

import (
	"sync"
	"sync/atomic"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ByteRange is a half-open [Start, End) span of byte offsets into a source.
type ByteRange struct {
	Start uint
	End   uint
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() uint {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether other lies entirely within r.
func (r ByteRange) Contains(other ByteRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Overlaps reports whether r and other share at least one byte.
func (r ByteRange) Overlaps(other ByteRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Point is a zero-based row/column position. Columns count bytes.
type Point struct {
	Row    uint
	Column uint
}

// Tree is an immutable syntax tree for one source text.
//
// The tree keeps its own copy of the source so node text stays valid for
// the lifetime of the tree regardless of what the caller does with the
// buffer it parsed. Trees MUST be closed via Close() to release native
// memory. Nodes obtained from a closed tree report IsNull() == true.
type Tree struct {
	inner  *ts.Tree
	source []byte
	lang   Language

	closeOnce sync.Once
	closed    atomic.Bool
}

func newTree(inner *ts.Tree, source []byte, lang Language) *Tree {
	owned := make([]byte, len(source))
	copy(owned, source)
	return &Tree{inner: inner, source: owned, lang: lang}
}

// RootNode returns the root node of the tree.
func (t *Tree) RootNode() Node {
	if t == nil || t.closed.Load() {
		return Node{}
	}
	return Node{tree: t, inner: *t.inner.RootNode(), valid: true}
}

// Source returns the text the tree was parsed from.
// The returned slice must not be modified.
func (t *Tree) Source() []byte {
	return t.source
}

// Language returns the grammar the tree was parsed with.
func (t *Tree) Language() Language {
	return t.lang
}

// Close releases the native tree. Safe to call more than once.
func (t *Tree) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.inner.Close()
	})
}

// Closed reports whether Close has been called.
func (t *Tree) Closed() bool {
	return t == nil || t.closed.Load()
}

// Wrap binds a raw tree-sitter node that belongs to this tree.
func (t *Tree) Wrap(n *ts.Node) Node {
	if n == nil || t.Closed() {
		return Node{}
	}
	return Node{tree: t, inner: *n, valid: true}
}

// Node is a lightweight handle to a node in a Tree.
//
// The zero value is the null node. Every navigation method returns the null
// node when the requested node does not exist, so chains such as
// n.Parent().ChildByFieldName("name") never panic.
type Node struct {
	tree  *Tree
	inner ts.Node
	valid bool
}

// IsNull reports whether the node is absent or its tree has been closed.
func (n Node) IsNull() bool {
	return !n.valid || n.tree.Closed()
}

// Tree returns the owning tree, or nil for the null node.
func (n Node) Tree() *Tree {
	if !n.valid {
		return nil
	}
	return n.tree
}

// Kind returns the grammar symbol name, e.g. "call_expression".
func (n Node) Kind() string {
	if n.IsNull() {
		return ""
	}
	return n.inner.Kind()
}

// Range returns the byte span covered by the node.
func (n Node) Range() ByteRange {
	if n.IsNull() {
		return ByteRange{}
	}
	return ByteRange{Start: n.inner.StartByte(), End: n.inner.EndByte()}
}

// StartByte returns the byte offset where the node starts.
func (n Node) StartByte() uint { return n.Range().Start }

// EndByte returns the byte offset where the node ends.
func (n Node) EndByte() uint { return n.Range().End }

// StartPoint returns the zero-based row/column where the node starts.
func (n Node) StartPoint() Point {
	if n.IsNull() {
		return Point{}
	}
	p := n.inner.StartPosition()
	return Point{Row: p.Row, Column: p.Column}
}

// EndPoint returns the zero-based row/column where the node ends.
func (n Node) EndPoint() Point {
	if n.IsNull() {
		return Point{}
	}
	p := n.inner.EndPosition()
	return Point{Row: p.Row, Column: p.Column}
}

func (n Node) IsNamed() bool   { return !n.IsNull() && n.inner.IsNamed() }
func (n Node) IsMissing() bool { return !n.IsNull() && n.inner.IsMissing() }
func (n Node) IsError() bool   { return !n.IsNull() && n.inner.IsError() }

// HasError reports whether the node or any descendant is an error or
// missing node.
func (n Node) HasError() bool { return !n.IsNull() && n.inner.HasError() }

// Text returns the slice of the tree's source covered by the node.
func (n Node) Text() string {
	if n.IsNull() {
		return ""
	}
	return n.TextIn(n.tree.source)
}

// TextIn returns the slice of source covered by the node. Offsets that fall
// outside source yield the empty string.
func (n Node) TextIn(source []byte) string {
	r := n.Range()
	if n.IsNull() || r.End > uint(len(source)) || r.Start > r.End {
		return ""
	}
	return string(source[r.Start:r.End])
}

// Sexp returns the S-expression form of the subtree.
func (n Node) Sexp() string {
	if n.IsNull() {
		return ""
	}
	return n.inner.ToSexp()
}

// Equal reports whether both handles refer to the same node of the same tree.
func (n Node) Equal(other Node) bool {
	if n.IsNull() || other.IsNull() {
		return n.IsNull() && other.IsNull()
	}
	return n.tree == other.tree && n.inner.Equals(other.inner)
}

// Raw exposes the underlying tree-sitter node, or nil for the null node.
func (n Node) Raw() *ts.Node {
	if n.IsNull() {
		return nil
	}
	inner := n.inner
	return &inner
}

func (n Node) wrap(raw *ts.Node) Node {
	if raw == nil || n.IsNull() {
		return Node{}
	}
	return Node{tree: n.tree, inner: *raw, valid: true}
}

func (n Node) Parent() Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.Parent())
}

func (n Node) Child(i uint) Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.Child(i))
}

func (n Node) ChildCount() uint {
	if n.IsNull() {
		return 0
	}
	return n.inner.ChildCount()
}

func (n Node) NamedChild(i uint) Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.NamedChild(i))
}

func (n Node) NamedChildCount() uint {
	if n.IsNull() {
		return 0
	}
	return n.inner.NamedChildCount()
}

// Children returns all direct children, named and anonymous.
func (n Node) Children() []Node {
	count := n.ChildCount()
	children := make([]Node, 0, count)
	for i := uint(0); i < count; i++ {
		children = append(children, n.Child(i))
	}
	return children
}

// NamedChildren returns the direct named children.
func (n Node) NamedChildren() []Node {
	count := n.NamedChildCount()
	children := make([]Node, 0, count)
	for i := uint(0); i < count; i++ {
		children = append(children, n.NamedChild(i))
	}
	return children
}

func (n Node) ChildByFieldName(field string) Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.ChildByFieldName(field))
}

func (n Node) NextSibling() Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.NextSibling())
}

func (n Node) PrevSibling() Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.PrevSibling())
}

func (n Node) NextNamedSibling() Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.NextNamedSibling())
}

func (n Node) PrevNamedSibling() Node {
	if n.IsNull() {
		return Node{}
	}
	return n.wrap(n.inner.PrevNamedSibling())
}
