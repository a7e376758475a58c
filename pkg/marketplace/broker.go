package marketplace

import (
	"context"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
)

// Broker adapts one marketplace provider
type Broker interface {
	// Name returns the configured broker name
	Name() string

	// Listings returns one page of listings
	Listings(ctx context.Context, q ListingQuery) (*ListingPage, error)

	// Download fetches and verifies a listing's bundle into outputDir (a fresh
	// temporary directory when empty) and returns the file path
	Download(ctx context.Context, listingID, outputDir string) (string, error)

	// Publish submits a bundle with its metadata
	Publish(ctx context.Context, b *bundle.Bundle, req *PublishRequest) (*PublishResult, error)

	// ValidateSignature verifies a bundle's signature, requiring one to exist
	ValidateSignature(b *bundle.Bundle) error

	// Close releases network resources
	Close() error
}

// StatusChecker is implemented by brokers that can report the review state
// of a previous submission.
type StatusChecker interface {
	SubmissionStatus(ctx context.Context, submissionID string) (*PublishResult, error)
}

// ListingQuery selects one page of listings
type ListingQuery struct {
	Filters  map[string]string
	Page     int
	PageSize int
}

// ListingPage is one page of decoded listings
type ListingPage struct {
	Broker     string
	Listings   []*MarketplaceListing
	Page       int
	PageSize   int
	TotalPages int
	// Skipped counts provider items that failed validation
	Skipped int
}

// PublishRequest carries the metadata sent alongside a bundle
type PublishRequest struct {
	Metadata  *PublishMetadata
	Publisher *PublisherMetadata
}

// VerifyBundleHash recomputes the content digest of the bundle at path and
// compares it with expected. The error only shows truncated digests.
func VerifyBundleHash(path, expected string) error {
	actual, err := bundle.ComputeHash(path)
	if err != nil {
		return NewValidationError("cannot hash bundle: %v", err)
	}
	if actual != expected {
		return NewValidationError("bundle hash mismatch: expected %s, got %s",
			bundle.ShortHash(expected), bundle.ShortHash(actual))
	}
	return nil
}
