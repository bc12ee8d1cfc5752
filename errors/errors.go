package errors

import (
	"errors"
	"fmt"
)

// Kinds surfaced to callers. Every collaborator failure is mapped to one of them
// at the operation boundary by Classify.
var (
	ErrTransientTransport = fmt.Errorf("transient transport error")
	ErrValidation         = fmt.Errorf("validation error")
	ErrAuthorization      = fmt.Errorf("authorization error")
	ErrConflict           = fmt.Errorf("conflict")
	ErrNotFound           = fmt.Errorf("not found")
)

var (
	ErrNotSubscribed    = fmt.Errorf("%w: channel is not subscribed", ErrTransientTransport)
	ErrNotAuthenticated = fmt.Errorf("%w: no signed-in user", ErrAuthorization)
	ErrWrongSecret      = fmt.Errorf("%w: incorrect room secret", ErrAuthorization)
	ErrSuperseded       = fmt.Errorf("operation superseded by a room switch")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)

var kinds = []error{
	ErrValidation,
	ErrAuthorization,
	ErrConflict,
	ErrNotFound,
	ErrTransientTransport,
}

// Classify converts err into one of the surfaced kinds.
// Errors that already carry a kind are returned unchanged, anything else is
// considered transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, ErrSuperseded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransientTransport, err)
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return errors.Is(Classify(err), ErrTransientTransport)
}

// Is and As are re-exported so callers importing this package under the name
// "errors" keep access to the standard helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
