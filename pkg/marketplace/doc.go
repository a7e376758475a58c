// Package marketplace provides the provider-agnostic broker abstraction used to
// browse, download and publish bundles across independent marketplaces.
//
// # Overview
//
// A Broker adapts one marketplace provider. Every broker owns its own
// RateLimiter (sliding window admission control) and ResponseCache (TTL plus
// ETag revalidation), so concurrent callers of a single broker share one quota
// and one cache while separate brokers never interfere with each other.
//
// Provider responses are normalized into immutable MarketplaceListing and
// PublishResult values, and provider errors are normalized into a small
// taxonomy (ErrValidation, ErrDownload, ErrPublish, ErrBroker and
// *RateLimitError) before they leave the broker.
//
// # Fan-out
//
// AggregateListings queries several brokers concurrently, each under its own
// timeout. Partial success is the normal outcome: the result carries the pages
// that arrived and the error for every broker that did not.
//
// # Usage Example
//
//	limiter := marketplace.NewRateLimiter("skillmeat", marketplace.DefaultRateLimit())
//	if err := limiter.Check(); err != nil {
//		var rl *marketplace.RateLimitError
//		if errors.As(err, &rl) {
//			time.Sleep(time.Duration(rl.RetryAfter) * time.Second)
//		}
//	}
//
//	result := marketplace.AggregateListings(ctx, registry.Enabled(),
//		marketplace.ListingQuery{Page: 1, PageSize: 20}, 10*time.Second)
//	for name, err := range result.Failures {
//		log.Printf("%s unavailable: %v", name, err)
//	}
//
// # Related Packages
//
//   - pkg/marketplace/brokers: Provider implementations
//   - pkg/registry: Configuration-driven broker lifecycle
//   - pkg/publishing: Publish workflow built on Broker.Publish
package marketplace
