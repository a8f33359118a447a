package dataset

import (
	"errors"
	"fmt"
)

// LoadError is returned when a dataset resource is missing or cannot be
// parsed.
type LoadError struct {
	// Location is the location as declared.
	Location string

	// Path is the resolved file path, if resolution got that far.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Path != "" && e.Path != e.Location {
		return fmt.Sprintf("load dataset %q (%s): %v", e.Location, e.Path, e.Err)
	}
	return fmt.Sprintf("load dataset %q: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if err is, or wraps, a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
