package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means an incident, resource or team id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the actor lacks the role or assignment required.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means a state precondition failed: already assigned,
	// already accepted.
	ErrConflict = errors.New("conflict")
	// ErrValidation means malformed input, e.g. a status outside the
	// allowed set.
	ErrValidation = errors.New("validation failed")
	// ErrStore is the generic signal for an underlying commit failure.
	// The transaction is rolled back before it is returned; no partial
	// state survives.
	ErrStore = errors.New("store failure")
)

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
