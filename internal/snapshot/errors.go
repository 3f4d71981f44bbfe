package snapshot

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by List and the walkers. Compare with errors.Is.
var (
	ErrTargetNotFound = errors.New("target not found")
	ErrNotADirectory  = errors.New("not a directory")
	ErrReadFailure    = errors.New("permission or read failure")
)

// Error describes a failed top-level snapshot operation.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }
