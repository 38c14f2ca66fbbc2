package events

import "fmt"

// AuthError reports that no usable credential could be produced.
// It is fatal for the caller.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError reports that a remote calendar operation failed.
// Transient and permanent failures are not distinguished.
type ProviderError struct {
	Op         string
	CalendarID string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s on calendar %q failed: %v", e.Op, e.CalendarID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
