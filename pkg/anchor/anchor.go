package anchor

import (
	"log/slog"
	"weak"
)

// Anchor is a position in a Document that follows edits.
//
// The anchor does not own its document. Once the document is closed or
// collected the anchor is invalid: position queries return 0 and Restore
// fails with ErrDocumentGone.
type Anchor struct {
	doc    weak.Pointer[Document]
	logger *slog.Logger

	// offset is guarded by the document's mutex.
	offset int
}

func newAnchor(d *Document, offset int) *Anchor {
	return &Anchor{
		doc:    weak.Make(d),
		logger: d.logger,
		offset: offset,
	}
}

// document returns the owning document if it is still alive and open.
func (a *Anchor) document() *Document {
	d := a.doc.Value()
	if d == nil || d.isClosed() {
		return nil
	}
	return d
}

// checkDocument returns the live document or logs that it is gone.
func (a *Anchor) checkDocument() *Document {
	d := a.document()
	if d == nil {
		a.logger.Error("can't use this anchor as the document does not exist anymore")
	}
	return d
}

// IsValid reports whether the anchor's document is still alive.
func (a *Anchor) IsValid() bool {
	return a.document() != nil
}

// Position returns the current byte offset, or 0 when the document is gone.
func (a *Anchor) Position() int {
	d := a.checkDocument()
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return a.offset
}

// Line returns the 1-based line of the anchor, or 0 when the document is
// gone.
func (a *Anchor) Line() int {
	line, _ := a.lineColumn()
	return line
}

// Column returns the 1-based column of the anchor, or 0 when the document
// is gone.
func (a *Anchor) Column() int {
	_, column := a.lineColumn()
	return column
}

func (a *Anchor) lineColumn() (int, int) {
	d := a.checkDocument()
	if d == nil {
		return 0, 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return lineColumn(d.text, a.offset)
}

// Restore moves the document cursor back to the anchor.
func (a *Anchor) Restore() error {
	d := a.checkDocument()
	if d == nil {
		return ErrDocumentGone
	}
	return d.GotoAnchor(a)
}

// update applies one edit. Called with the document's mutex held.
func (a *Anchor) update(start, removed, inserted int) {
	a.offset = shift(a.offset, start, removed, inserted)
}
