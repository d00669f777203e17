// Package anchor keeps logical positions valid inside text that is being
// edited.
//
// A Document owns its text and the anchors created on it. Every edit is
// described as (start, removed, inserted) byte counts and is applied to
// each anchor synchronously, under the document's lock. Anchors refer back
// to their document weakly, so an anchor never keeps a document alive and
// degrades to inert values once the document is closed or collected.
package anchor

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/gnana997/tsrewrite/pkg/util"
)

var (
	// ErrDocumentGone is returned when an anchor's document was closed or
	// garbage collected.
	ErrDocumentGone = errors.New("anchor's document does not exist anymore")

	// ErrDocumentClosed is returned when editing a closed document.
	ErrDocumentClosed = errors.New("document is closed")

	// ErrInvalidOffset is returned for offsets outside the text or inside a
	// multi-byte character.
	ErrInvalidOffset = errors.New("invalid offset")
)

// Document is an editable text that notifies its anchors of every edit.
// It is safe for concurrent use.
type Document struct {
	mu      sync.Mutex
	text    string
	cursor  int
	anchors []*Anchor
	closed  bool
	logger  *slog.Logger
}

// NewDocument creates a document holding text. Logger can be nil.
func NewDocument(text string, logger *slog.Logger) *Document {
	return &Document{
		text:   text,
		logger: util.OrDefault(logger),
	}
}

// Text returns the current text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Len returns the length of the current text in bytes.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.text)
}

// Insert inserts s at offset.
func (d *Document) Insert(offset int, s string) error {
	return d.Replace(offset, 0, s)
}

// Remove deletes length bytes starting at start.
func (d *Document) Remove(start, length int) error {
	return d.Replace(start, length, "")
}

// Replace replaces the removed bytes starting at start with inserted, then
// updates every anchor.
func (d *Document) Replace(start, removed int, inserted string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	if removed < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInvalidOffset, removed)
	}
	if err := d.checkOffset(start); err != nil {
		return err
	}
	if err := d.checkOffset(start + removed); err != nil {
		return err
	}

	d.text = d.text[:start] + inserted + d.text[start+removed:]
	d.cursor = shift(d.cursor, start, removed, len(inserted))
	for _, a := range d.anchors {
		a.update(start, removed, len(inserted))
	}
	return nil
}

// NewAnchor creates an anchor at offset that follows subsequent edits.
func (d *Document) NewAnchor(offset int) (*Anchor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDocumentClosed
	}
	if err := d.checkOffset(offset); err != nil {
		return nil, err
	}

	a := newAnchor(d, offset)
	d.anchors = append(d.anchors, a)
	return a, nil
}

// RemoveAnchor stops updating a. The anchor keeps its last offset.
func (d *Document) RemoveAnchor(a *Anchor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.anchors = slices.DeleteFunc(d.anchors, func(other *Anchor) bool { return other == a })
}

// Anchors returns the anchors registered on the document.
func (d *Document) Anchors() []*Anchor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.anchors)
}

// Cursor returns the current cursor offset.
func (d *Document) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// SetCursor moves the cursor to offset.
func (d *Document) SetCursor(offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOffset(offset); err != nil {
		return err
	}
	d.cursor = offset
	return nil
}

// GotoAnchor moves the cursor to the anchor's position. The anchor must
// belong to d.
func (d *Document) GotoAnchor(a *Anchor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDocumentClosed
	}
	if !slices.Contains(d.anchors, a) {
		return fmt.Errorf("anchor does not belong to this document")
	}
	d.cursor = a.offset
	return nil
}

// LineColumn converts offset into a 1-based line and a 1-based column
// counted in characters. Offsets past the end are clamped.
func (d *Document) LineColumn(offset int) (line, column int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lineColumn(d.text, offset)
}

// Close invalidates every anchor of the document. Further edits fail.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.logger.Debug("closing document",
		"anchors", len(d.anchors),
		"length", len(d.text))
	d.anchors = nil
}

func (d *Document) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Document) checkOffset(offset int) error {
	if offset < 0 || offset > len(d.text) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, offset, len(d.text))
	}
	if offset < len(d.text) && !utf8.RuneStart(d.text[offset]) {
		return fmt.Errorf("%w: %d is inside a character", ErrInvalidOffset, offset)
	}
	return nil
}

func lineColumn(text string, offset int) (line, column int) {
	offset = max(0, min(offset, len(text)))
	line, column = 1, 1
	for _, r := range text[:offset] {
		if r == '\n' {
			line++
			column = 1
			continue
		}
		column++
	}
	return line, column
}

// shift applies one edit to a position. A position at or before the edit
// start is unchanged, one inside the removed span collapses to the start,
// and one after it moves by the length delta.
func shift(pos, start, removed, inserted int) int {
	switch {
	case pos <= start:
		return pos
	case pos <= start+removed:
		return start
	default:
		return pos + inserted - removed
	}
}
