package license

import "errors"

var (
	// ErrLicenseValidation is returned for unknown or missing identifiers
	ErrLicenseValidation = errors.New("license validation failed")

	// ErrLicenseIncompatible is returned when artifact licenses cannot be
	// combined under the bundle license
	ErrLicenseIncompatible = errors.New("license incompatibility")
)

// IsLicenseValidationError checks if the error is or wraps ErrLicenseValidation
func IsLicenseValidationError(err error) bool {
	return errors.Is(err, ErrLicenseValidation)
}

// IsLicenseIncompatibleError checks if the error is or wraps ErrLicenseIncompatible
func IsLicenseIncompatibleError(err error) bool {
	return errors.Is(err, ErrLicenseIncompatible)
}
