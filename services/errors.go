package services

import (
	"errors"
	"fmt"
)

// Routine precondition rejections. These are expected outcomes, not faults —
// handlers map them to 4xx responses with the reason string.
var (
	ErrTakeNotFound    = errors.New("take not found")
	ErrTakeResolved    = errors.New("take is already resolved")
	ErrPositionLocked  = errors.New("position already locked, you cannot change your stance")
	ErrNotAuthor       = errors.New("only the author can appeal")
	ErrTakePending     = errors.New("cannot appeal a pending take")
	ErrAlreadyAppealed = errors.New("this take has already been appealed")
)

// ConflictError is returned when the conflict checker flags a new stance as
// the logical negation of one the user already holds.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return "this conflicts with a position you've already taken"
	}
	return fmt.Sprintf("conflicting position: %s", e.Reason)
}
