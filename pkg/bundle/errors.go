package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBundle is the parent of every bundle format error
	ErrInvalidBundle = errors.New("invalid bundle")

	// ErrNotFound is returned when the bundle path does not exist
	ErrNotFound = fmt.Errorf("%w: file not found", ErrInvalidBundle)

	// ErrNotRegularFile is returned when the bundle path is a directory or device
	ErrNotRegularFile = fmt.Errorf("%w: not a regular file", ErrInvalidBundle)

	// ErrInvalidArchive is returned when the file is not a readable zip archive
	ErrInvalidArchive = fmt.Errorf("%w: not a zip archive", ErrInvalidBundle)

	// ErrMissingManifest is returned when the archive has no bundle.yaml
	ErrMissingManifest = fmt.Errorf("%w: missing %s", ErrInvalidBundle, ManifestName)

	// ErrInvalidManifest is returned when bundle.yaml cannot be parsed
	ErrInvalidManifest = fmt.Errorf("%w: malformed %s", ErrInvalidBundle, ManifestName)
)

// IsInvalidBundleError checks if the error is or wraps ErrInvalidBundle
func IsInvalidBundleError(err error) bool {
	return errors.Is(err, ErrInvalidBundle)
}
