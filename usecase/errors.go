package usecase

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned when an operation needs a live session and none exists.
var ErrNoActiveSession = errors.New("no active session")

// StoreError wraps a failed store round-trip on the request path.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || errors.Is(err, ErrNoActiveSession) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
