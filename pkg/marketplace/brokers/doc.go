// Package brokers implements the marketplace providers.
//
// # Overview
//
// Every remote provider is composed around HTTPBroker, which owns a sliding
// window RateLimiter, an ETag-aware ResponseCache and an instrumented HTTP
// client. Providers differ only in their WireFormat and limits:
//
//   - skillmeat: the generic {listings, total_pages} shape, page size up to 100
//   - claudehub: {items, pages} with ClaudeHub field names, read-only
//   - custom: generic shape with an optional remote field-name schema
//   - local: a directory with index.json, no network
//
// Downloads stream into <id>.zip.part and are renamed only after the digest
// and, for signed listings, the signature have been verified.
//
// # Usage Example
//
//	provider := brokers.SkillMeatProvider{}
//	cfg := provider.NewConfig()
//	// decode marketplace.yaml entry into cfg
//	broker, err := provider.New("skillmeat", cfg, brokers.Deps{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer broker.Close()
//
//	page, err := broker.Listings(ctx, marketplace.ListingQuery{Page: 1, PageSize: 20})
//
// # Related Packages
//
//   - pkg/marketplace: Broker interface and shared data model
//   - pkg/registry: Instantiates providers from marketplace.yaml
//   - pkg/marketplace/brokertest: Fake marketplace server for tests
package brokers
