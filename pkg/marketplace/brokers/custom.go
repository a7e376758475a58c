package brokers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

// CustomMaxPageSize is the largest page requested from a custom marketplace
const CustomMaxPageSize = 100

// CustomBroker talks to a self-hosted marketplace. When a schema URL is
// configured the field mapping is fetched on first use; a failed fetch is
// retried on the next call.
type CustomBroker struct {
	*HTTPBroker
	schemaURL string
	format    *SchemaFormat
	mu        sync.Mutex
}

// Listings loads the field schema if needed and returns one page
func (b *CustomBroker) Listings(ctx context.Context, q marketplace.ListingQuery) (*marketplace.ListingPage, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b.HTTPBroker.Listings(ctx, q)
}

// Listing loads the field schema if needed and resolves one listing
func (b *CustomBroker) Listing(ctx context.Context, listingID string) (*marketplace.MarketplaceListing, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b.HTTPBroker.Listing(ctx, listingID)
}

// Download loads the field schema if needed and fetches a bundle
func (b *CustomBroker) Download(ctx context.Context, listingID, outputDir string) (string, error) {
	if err := b.ensureSchema(ctx); err != nil {
		return "", marketplace.NewDownloadError("cannot resolve listing "+listingID, err)
	}
	return b.HTTPBroker.Download(ctx, listingID, outputDir)
}

// SubmissionStatus reports the review state of a submission
func (b *CustomBroker) SubmissionStatus(ctx context.Context, submissionID string) (*marketplace.PublishResult, error) {
	return b.submissionStatus(ctx, submissionID)
}

func (b *CustomBroker) ensureSchema(ctx context.Context) error {
	if b.schemaURL == "" || b.format.Loaded() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.format.Loaded() {
		return nil
	}

	schemaURL, err := b.resolve(b.schemaURL)
	if err != nil {
		return marketplace.NewValidationError("invalid schema_url %q: %v", b.schemaURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, schemaURL, nil)
	if err != nil {
		return marketplace.NewBrokerError("cannot build schema request", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return marketplace.NewBrokerError("cannot fetch schema for "+b.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return marketplace.NewBrokerError("cannot read schema", err)
	}
	if err := statusError(b.name, resp, data); err != nil {
		return err
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return marketplace.NewBrokerError("malformed schema for "+b.name, err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	b.format.SetFields(fields)

	b.logger.WithField("broker", b.name).Debugf("Loaded field schema with %d mappings", len(fields))
	return nil
}

// CustomProvider builds brokers for self-hosted marketplaces
type CustomProvider struct{}

func (CustomProvider) NewConfig() Config { return &CustomConfig{} }

func (CustomProvider) New(name string, cfg Config, deps Deps) (marketplace.Broker, error) {
	c, ok := cfg.(*CustomConfig)
	if !ok {
		return nil, configError(name, TypeCustom, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := deps.logger()
	format := &SchemaFormat{}
	return &CustomBroker{
		HTTPBroker: NewHTTPBroker(HTTPOptions{
			Name:        name,
			Endpoint:    c.Endpoint,
			MaxPageSize: CustomMaxPageSize,
			RateLimit:   c.RateLimitOrDefault(),
			CacheTTL:    c.CacheTTLOrDefault(),
			Token:       tokenFromEnv(c.TokenEnv, logger),
			Timeout:     deps.timeout(),
			Transport:   deps.Transport,
			Format:      format,
			Verifier:    deps.Verifier,
			Logger:      logger,
			Metrics:     deps.Metrics,
		}),
		schemaURL: c.SchemaURL,
		format:    format,
	}, nil
}
