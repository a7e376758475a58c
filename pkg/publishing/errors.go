package publishing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBundleValidation is matched by every *BundleValidationError
var ErrBundleValidation = errors.New("bundle validation failed")

// BundleValidationError blocks a publish and lists every reason
type BundleValidationError struct {
	Path   string
	Errors []string
	// Report is nil when the bundle could not be opened
	Report *ValidationReport
}

func (e *BundleValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bundle validation failed for %s", e.Path)
	for _, msg := range e.Errors {
		fmt.Fprintf(&b, "\n  - %s", msg)
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrBundleValidation
func (e *BundleValidationError) Unwrap() error {
	return ErrBundleValidation
}

// IsBundleValidationError checks if the error is or wraps ErrBundleValidation
func IsBundleValidationError(err error) bool {
	return errors.Is(err, ErrBundleValidation)
}
