package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingWholeMatchCapture is returned when a pattern of the query
	// does not bind the capture naming the span to replace.
	ErrMissingWholeMatchCapture = errors.New("missing whole-match capture")

	// ErrNonConvergent is returned when matches are still found after the
	// maximum number of passes.
	ErrNonConvergent = errors.New("transformation did not converge")
)

// Error describes a failed transformation. It wraps one of the sentinel
// errors above.
type Error struct {
	Err error

	// Capture is the whole-match capture name in effect.
	Capture string

	// Pattern is the offending pattern index, or -1 when not applicable.
	Pattern int

	// Pass is the last pass run, or 0 when the failure was detected before
	// the first parse.
	Pass int
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingWholeMatchCapture) && e.Pattern >= 0:
		return fmt.Sprintf("%v: pattern %d does not bind @%s", e.Err, e.Pattern, e.Capture)
	case errors.Is(e.Err, ErrMissingWholeMatchCapture):
		return fmt.Sprintf("%v: query has no @%s capture", e.Err, e.Capture)
	default:
		return fmt.Sprintf("%v after %d passes", e.Err, e.Pass)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
