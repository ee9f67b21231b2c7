package zorder

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch is returned when a dividing record and the search
	// corners do not share one interleaved length.
	ErrLengthMismatch = errors.New("zorder: key length mismatch")

	// ErrInvalidRange is returned when the search box has min > max in some
	// dimension.
	ErrInvalidRange = errors.New("zorder: invalid range, min must be <= max")

	// ErrDecode is returned when a key or literal cannot be decoded.
	ErrDecode = errors.New("zorder: malformed key")

	// ErrNoProgress is returned when a computed seek key does not move the
	// cursor forward. It indicates a broken codec or key layout.
	ErrNoProgress = errors.New("zorder: seek key does not advance cursor")
)

// Component names the stage of a scan that failed.
type Component string

const (
	ComponentBigMin Component = "bigmin"
	ComponentDecode Component = "decode"
	ComponentIndex  Component = "index"
)

// ScanError is the fatal error type returned by Advance. Err keeps the
// underlying sentinel so errors.Is works through it.
type ScanError struct {
	Component Component
	Err       error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("zorder: %s: %v", e.Component, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

func scanErr(c Component, err error) error {
	return &ScanError{Component: c, Err: err}
}
