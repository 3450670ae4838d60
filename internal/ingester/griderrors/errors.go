// Package griderrors contains the error types shared by the ingestion tasks and
// handlers. Errors of these types are always caught and logged at the task or handler
// boundary; they exist so that logs and tests can distinguish a failed remote call
// from a malformed payload or a missing reference row.
package griderrors

import (
	"fmt"
)

// ErrTransport indicates that a remote call failed outright or returned a
// non-success status.
type ErrTransport struct {
	Source  string // e.g. "elexon" or "ngeso"
	Status  int    // HTTP status code, if one was received
	Message string
}

func (err *ErrTransport) Error() (s string) {
	if err.Status != 0 {
		s = fmt.Sprintf("%s request failed with status %d", err.Source, err.Status)
	} else {
		s = fmt.Sprintf("%s request failed", err.Source)
	}
	if err.Message != "" {
		s = s + fmt.Sprintf(": %s", err.Message)
	}
	return
}

// ErrParse indicates a response body or envelope payload that could not be decoded.
type ErrParse struct {
	Source  string
	Message string
}

func (err *ErrParse) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", err.Source, err.Message)
}

// ErrMissingReference indicates a lookup against a reference table that has not yet
// been populated. The task that populates the table is scheduled ahead of its
// dependents, so this normally only occurs on a fresh database.
type ErrMissingReference struct {
	Type  string // Reference type, e.g. "fuel_type"
	Value string
}

func (err *ErrMissingReference) Error() string {
	return fmt.Sprintf("missing %s reference: %q", err.Type, err.Value)
}
