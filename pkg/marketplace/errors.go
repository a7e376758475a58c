package marketplace

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned when a request or response fails validation
	ErrValidation = errors.New("marketplace validation failed")

	// ErrDownload is returned when a bundle transfer fails
	ErrDownload = errors.New("marketplace download failed")

	// ErrPublish is returned when a provider refuses or fails a publish
	ErrPublish = errors.New("marketplace publish failed")

	// ErrBroker is returned for provider read failures
	ErrBroker = errors.New("marketplace broker error")
)

// RateLimitError is returned when a broker's request quota is exhausted
type RateLimitError struct {
	Broker     string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.Broker == "" {
		return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for broker %s, retry after %d seconds", e.Broker, e.RetryAfter)
}

// MetadataValidationError lists every rule a metadata record violated
type MetadataValidationError struct {
	Violations []string
}

func (e *MetadataValidationError) Error() string {
	return "metadata validation failed:\n  - " + strings.Join(e.Violations, "\n  - ")
}

// Unwrap lets errors.Is match ErrValidation
func (e *MetadataValidationError) Unwrap() error {
	return ErrValidation
}

// Contains reports whether any violation mentions substr
func (e *MetadataValidationError) Contains(substr string) bool {
	for _, v := range e.Violations {
		if strings.Contains(v, substr) {
			return true
		}
	}
	return false
}

// NewValidationError wraps a message with ErrValidation
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewDownloadError wraps a message and cause with ErrDownload
func NewDownloadError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDownload, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrDownload, msg, err)
}

// NewPublishError wraps a message and cause with ErrPublish
func NewPublishError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrPublish, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrPublish, msg, err)
}

// NewBrokerError wraps a message and cause with ErrBroker
func NewBrokerError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrBroker, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrBroker, msg, err)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDownloadError checks if an error is a download error
func IsDownloadError(err error) bool {
	return errors.Is(err, ErrDownload)
}

// IsPublishError checks if an error is a publish error
func IsPublishError(err error) bool {
	return errors.Is(err, ErrPublish)
}

// IsRateLimitError checks if an error is a rate limit rejection
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
