package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListingFields is the raw, unvalidated form of a listing as decoded from a
// provider response.
type ListingFields struct {
	ListingID     string   `json:"listing_id"`
	Name          string   `json:"name"`
	Publisher     string   `json:"publisher"`
	License       string   `json:"license"`
	ArtifactCount int      `json:"artifact_count"`
	Price         int      `json:"price"`
	Signature     string   `json:"signature,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	BundleURL     string   `json:"bundle_url,omitempty"`
	BundleHash    string   `json:"bundle_hash,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Description   string   `json:"description,omitempty"`
	Version       string   `json:"version,omitempty"`
	Homepage      string   `json:"homepage,omitempty"`
	Repository    string   `json:"repository,omitempty"`
	Downloads     int      `json:"downloads,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
}

// MarketplaceListing is a validated, immutable bundle listing
type MarketplaceListing struct {
	f ListingFields
}

// NewListing validates fields and returns a listing. Every violated rule is
// reported in the returned error.
func NewListing(f ListingFields) (*MarketplaceListing, error) {
	var violations []string

	if strings.TrimSpace(f.ListingID) == "" {
		violations = append(violations, "listing_id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		violations = append(violations, "name is required")
	}
	if strings.TrimSpace(f.Publisher) == "" {
		violations = append(violations, "publisher is required")
	}
	if f.ArtifactCount < 0 {
		violations = append(violations, "artifact_count cannot be negative")
	}
	if f.Price < 0 {
		violations = append(violations, "price cannot be negative")
	}
	if f.Downloads < 0 {
		violations = append(violations, "downloads cannot be negative")
	}
	if f.Rating != nil && (*f.Rating < 0 || *f.Rating > 5) {
		violations = append(violations, fmt.Sprintf("rating %.2f is outside [0, 5]", *f.Rating))
	}

	if len(violations) > 0 {
		return nil, NewValidationError("invalid listing: %s", strings.Join(violations, "; "))
	}

	f.Tags = append([]string(nil), f.Tags...)
	if f.Rating != nil {
		r := *f.Rating
		f.Rating = &r
	}
	return &MarketplaceListing{f: f}, nil
}

func (l *MarketplaceListing) ListingID() string   { return l.f.ListingID }
func (l *MarketplaceListing) Name() string        { return l.f.Name }
func (l *MarketplaceListing) Publisher() string   { return l.f.Publisher }
func (l *MarketplaceListing) License() string     { return l.f.License }
func (l *MarketplaceListing) ArtifactCount() int  { return l.f.ArtifactCount }
func (l *MarketplaceListing) Price() int          { return l.f.Price }
func (l *MarketplaceListing) Signature() string   { return l.f.Signature }
func (l *MarketplaceListing) SourceURL() string   { return l.f.SourceURL }
func (l *MarketplaceListing) BundleURL() string   { return l.f.BundleURL }
func (l *MarketplaceListing) BundleHash() string  { return l.f.BundleHash }
func (l *MarketplaceListing) Description() string { return l.f.Description }
func (l *MarketplaceListing) Version() string     { return l.f.Version }
func (l *MarketplaceListing) Homepage() string    { return l.f.Homepage }
func (l *MarketplaceListing) Repository() string  { return l.f.Repository }
func (l *MarketplaceListing) Downloads() int      { return l.f.Downloads }

// Tags returns a copy of the listing's tags
func (l *MarketplaceListing) Tags() []string {
	return append([]string(nil), l.f.Tags...)
}

// Rating returns the rating and whether the provider supplied one
func (l *MarketplaceListing) Rating() (float64, bool) {
	if l.f.Rating == nil {
		return 0, false
	}
	return *l.f.Rating, true
}

// IsSigned reports whether the listing advertises a signature
func (l *MarketplaceListing) IsSigned() bool {
	return l.f.Signature != ""
}

// IsFree reports whether the listing has no price
func (l *MarketplaceListing) IsFree() bool {
	return l.f.Price == 0
}

// Fields returns a copy of the underlying fields
func (l *MarketplaceListing) Fields() ListingFields {
	f := l.f
	f.Tags = l.Tags()
	if l.f.Rating != nil {
		r := *l.f.Rating
		f.Rating = &r
	}
	return f
}

// MarshalJSON renders the listing in the generic wire shape
func (l *MarketplaceListing) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.f)
}

// PublishStatus is the provider's verdict on a publish request
type PublishStatus string

const (
	PublishPending  PublishStatus = "pending"
	PublishApproved PublishStatus = "approved"
	PublishRejected PublishStatus = "rejected"
)

// PublishResultFields is the raw form of a publish response
type PublishResultFields struct {
	SubmissionID string        `json:"submission_id"`
	Status       PublishStatus `json:"status"`
	Message      string        `json:"message"`
	ListingURL   string        `json:"listing_url,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

// PublishResult is the immutable outcome of a Broker.Publish call
type PublishResult struct {
	f PublishResultFields
}

// NewPublishResult validates fields and returns a result. Missing timestamps
// default to now.
func NewPublishResult(f PublishResultFields) (*PublishResult, error) {
	var violations []string
	if strings.TrimSpace(f.SubmissionID) == "" {
		violations = append(violations, "submission_id is required")
	}
	switch f.Status {
	case PublishPending, PublishApproved, PublishRejected:
	default:
		violations = append(violations, fmt.Sprintf("invalid status %q", f.Status))
	}
	if len(violations) > 0 {
		return nil, NewValidationError("invalid publish result: %s", strings.Join(violations, "; "))
	}

	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}
	f.Errors = append([]string(nil), f.Errors...)
	f.Warnings = append([]string(nil), f.Warnings...)
	return &PublishResult{f: f}, nil
}

func (r *PublishResult) SubmissionID() string  { return r.f.SubmissionID }
func (r *PublishResult) Status() PublishStatus { return r.f.Status }
func (r *PublishResult) Message() string       { return r.f.Message }
func (r *PublishResult) ListingURL() string    { return r.f.ListingURL }
func (r *PublishResult) CreatedAt() time.Time  { return r.f.CreatedAt }
func (r *PublishResult) UpdatedAt() time.Time  { return r.f.UpdatedAt }

// Errors returns a copy of the provider's error messages
func (r *PublishResult) Errors() []string {
	return append([]string(nil), r.f.Errors...)
}

// Warnings returns a copy of the provider's warning messages
func (r *PublishResult) Warnings() []string {
	return append([]string(nil), r.f.Warnings...)
}

// MarshalJSON renders the result in the wire shape
func (r *PublishResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.f)
}
