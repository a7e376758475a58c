package submissions

import (
	"time"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

// Status is the review state of a submission
type Status string

const (
	StatusPending           Status = "pending"
	StatusInReview          Status = "in_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected, StatusRevisionRequested:
		return true
	}
	return false
}

// IsTerminal reports whether no further review will happen
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// fromPublishStatus maps a provider verdict onto the local lifecycle
func fromPublishStatus(s marketplace.PublishStatus) Status {
	switch s {
	case marketplace.PublishApproved:
		return StatusApproved
	case marketplace.PublishRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// Submission is the tracked lifecycle of one publish attempt
type Submission struct {
	ID          string                            `json:"submission_id"`
	BundlePath  string                            `json:"bundle_path"`
	BrokerName  string                            `json:"broker_name"`
	Status      Status                            `json:"status"`
	BundleHash  string                            `json:"bundle_hash"`
	Metadata    marketplace.PublishMetadataFields `json:"metadata"`
	SubmittedAt time.Time                         `json:"submitted_at"`
	UpdatedAt   time.Time                         `json:"updated_at"`
	ReviewedAt  *time.Time                        `json:"reviewed_at,omitempty"`
	Feedback    string                            `json:"feedback,omitempty"`
	ListingURL  string                            `json:"listing_url,omitempty"`
	Errors      []string                          `json:"errors,omitempty"`
	Warnings    []string                          `json:"warnings,omitempty"`
}

// IsTerminal reports whether the submission has been approved or rejected
func (s *Submission) IsTerminal() bool {
	return s.Status.IsTerminal()
}

func (s *Submission) clone() *Submission {
	c := *s
	if s.ReviewedAt != nil {
		reviewed := *s.ReviewedAt
		c.ReviewedAt = &reviewed
	}
	c.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	c.Metadata.Screenshots = append([]string(nil), s.Metadata.Screenshots...)
	c.Errors = append([]string(nil), s.Errors...)
	c.Warnings = append([]string(nil), s.Warnings...)
	return &c
}

// UpdateOptions are merged into a submission by UpdateStatus. Empty values
// leave the stored ones untouched.
type UpdateOptions struct {
	Feedback   string
	ListingURL string
	Errors     []string
	Warnings   []string
}

// Filter selects submissions in List. Zero fields match everything.
type Filter struct {
	Status Status
	Broker string
}

func (f Filter) match(s *Submission) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Broker != "" && s.BrokerName != f.Broker {
		return false
	}
	return true
}
