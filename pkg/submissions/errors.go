package submissions

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSubmissionTracking is returned when the submission table cannot be
	// read, written or queried
	ErrSubmissionTracking = errors.New("submission tracking error")

	// ErrSubmissionNotFound is returned for unknown submission ids
	ErrSubmissionNotFound = fmt.Errorf("%w: submission not found", ErrSubmissionTracking)

	// ErrInvalidTransition is returned when a terminal submission is moved
	// to a different status
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrSubmissionTracking)
)

// SubmissionRejectedError reports a marketplace rejection with the reviewer
// feedback attached
type SubmissionRejectedError struct {
	ID       string
	Broker   string
	Feedback string
	Errors   []string
}

func (e *SubmissionRejectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "submission %s was rejected", e.ID)
	if e.Broker != "" {
		fmt.Fprintf(&b, " by %s", e.Broker)
	}
	if e.Feedback != "" {
		fmt.Fprintf(&b, ": %s", e.Feedback)
	}
	for _, msg := range e.Errors {
		fmt.Fprintf(&b, "\n  - %s", msg)
	}
	return b.String()
}

// IsSubmissionTrackingError checks if the error is or wraps ErrSubmissionTracking
func IsSubmissionTrackingError(err error) bool {
	return errors.Is(err, ErrSubmissionTracking)
}

// IsNotFound checks if the error is or wraps ErrSubmissionNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubmissionNotFound)
}

// IsRejected checks if the error is a *SubmissionRejectedError
func IsRejected(err error) bool {
	var rejected *SubmissionRejectedError
	return errors.As(err, &rejected)
}

func trackingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSubmissionTracking, fmt.Sprintf(format, args...))
}
