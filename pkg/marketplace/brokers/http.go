package brokers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

// maxResponseSize bounds JSON responses read into memory
const maxResponseSize = 16 << 20

// WireFormat decodes a provider's native JSON
type WireFormat interface {
	// ParsePage splits a listings response into raw items
	ParsePage(body []byte) (items []json.RawMessage, totalPages int, err error)
	// ParseListing decodes one raw item
	ParseListing(raw json.RawMessage) (marketplace.ListingFields, error)
}

// HTTPOptions configures an HTTPBroker
type HTTPOptions struct {
	Name        string
	Endpoint    string
	MaxPageSize int
	RateLimit   marketplace.RateLimitConfig
	CacheTTL    time.Duration
	// Token is sent as a bearer token when non-empty
	Token     string
	Timeout   time.Duration
	Transport http.RoundTripper
	Format    WireFormat
	Verifier  signing.Verifier
	Logger    *logrus.Logger
	Metrics   *observability.Metrics
	// ReadOnly providers reject Publish
	ReadOnly bool
}

// HTTPBroker is the network core shared by every remote provider. It owns
// its rate limiter and response cache.
type HTTPBroker struct {
	name        string
	endpoint    string
	maxPageSize int
	readOnly    bool
	client      *http.Client
	limiter     *marketplace.RateLimiter
	cache       *marketplace.ResponseCache
	format      WireFormat
	verifier    signing.Verifier
	logger      *logrus.Logger
	metrics     *observability.Metrics
}

// NewHTTPBroker creates the shared network core
func NewHTTPBroker(opts HTTPOptions) *HTTPBroker {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Format == nil {
		opts.Format = SkillMeatFormat{}
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.Token != "" {
		base = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   base,
		}
	}

	return &HTTPBroker{
		name:        opts.Name,
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
		maxPageSize: opts.MaxPageSize,
		readOnly:    opts.ReadOnly,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		limiter:  marketplace.NewRateLimiter(opts.Name, opts.RateLimit),
		cache:    marketplace.NewResponseCache(opts.CacheTTL, marketplace.DefaultCacheCapacity),
		format:   opts.Format,
		verifier: opts.Verifier,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Name returns the broker name
func (b *HTTPBroker) Name() string { return b.name }

// Endpoint returns the base URL
func (b *HTTPBroker) Endpoint() string { return b.endpoint }

// Limiter exposes the broker's rate limiter
func (b *HTTPBroker) Limiter() *marketplace.RateLimiter { return b.limiter }

// Cache exposes the broker's response cache
func (b *HTTPBroker) Cache() *marketplace.ResponseCache { return b.cache }

// Listings returns one page of listings
func (b *HTTPBroker) Listings(ctx context.Context, q marketplace.ListingQuery) (page *marketplace.ListingPage, err error) {
	start := time.Now()
	defer func() { b.observe("listings", start, err) }()

	if err := validateQuery(q, b.maxPageSize); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	for k, v := range q.Filters {
		params.Set(k, v)
	}

	key := marketplace.CacheKey("listings", q.Page, q.PageSize, q.Filters)
	body, err := b.fetch(ctx, b.endpoint+"/listings?"+params.Encode(), key)
	if err != nil {
		return nil, err
	}

	return decodePage(b.name, b.format, body, q, b.logger)
}

// Listing resolves a single listing by id
func (b *HTTPBroker) Listing(ctx context.Context, listingID string) (*marketplace.MarketplaceListing, error) {
	if strings.TrimSpace(listingID) == "" {
		return nil, marketplace.NewValidationError("listing id is required")
	}

	key := marketplace.CacheKey("listing/"+listingID, 0, 0, nil)
	body, err := b.fetch(ctx, b.endpoint+"/listings/"+url.PathEscape(listingID), key)
	if err != nil {
		return nil, err
	}

	fields, err := b.format.ParseListing(body)
	if err != nil {
		return nil, marketplace.NewBrokerError("malformed listing "+listingID, err)
	}
	return marketplace.NewListing(fields)
}

// Download streams a listing's bundle into outputDir and verifies it
func (b *HTTPBroker) Download(ctx context.Context, listingID, outputDir string) (path string, err error) {
	start := time.Now()
	defer func() { b.observe("download", start, err) }()

	listing, err := b.Listing(ctx, listingID)
	if err != nil {
		if marketplace.IsRateLimitError(err) {
			return "", err
		}
		return "", marketplace.NewDownloadError("cannot resolve listing "+listingID, err)
	}
	if listing.BundleURL() == "" {
		return "", marketplace.NewDownloadError("listing "+listingID+" has no bundle_url", nil)
	}

	bundleURL, err := b.resolve(listing.BundleURL())
	if err != nil {
		return "", marketplace.NewDownloadError("invalid bundle_url", err)
	}

	if err := b.checkRate(); err != nil {
		return "", err
	}

	return downloadTo(ctx, listing, outputDir, b.verifier, func(w io.Writer) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundleURL, nil)
		if err != nil {
			return err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("bundle request returned %s", resp.Status)
		}
		_, err = io.Copy(w, resp.Body)
		return err
	})
}

// Publish uploads a bundle with its metadata as a multipart request
func (b *HTTPBroker) Publish(ctx context.Context, bnd *bundle.Bundle, req *marketplace.PublishRequest) (result *marketplace.PublishResult, err error) {
	start := time.Now()
	defer func() { b.observe("publish", start, err) }()

	if b.readOnly {
		return nil, marketplace.NewPublishError("publishing not supported by "+b.name, nil)
	}
	if bnd == nil || req == nil || req.Metadata == nil {
		return nil, marketplace.NewValidationError("bundle and metadata are required")
	}

	if err := b.checkRate(); err != nil {
		return nil, err
	}

	body, contentType, err := encodePublish(bnd, req)
	if err != nil {
		return nil, marketplace.NewPublishError("cannot encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/publish", body)
	if err != nil {
		return nil, marketplace.NewPublishError("cannot build request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, marketplace.NewPublishError("request to "+b.name+" failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, marketplace.NewPublishError("cannot read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, marketplace.NewPublishError(fmt.Sprintf("%s returned %s: %s", b.name, resp.Status, errorDetail(data)), nil)
	}

	var fields marketplace.PublishResultFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, marketplace.NewPublishError("malformed publish response", err)
	}
	result, err = marketplace.NewPublishResult(fields)
	if err != nil {
		return nil, marketplace.NewPublishError("invalid publish response", err)
	}

	b.logger.WithFields(logrus.Fields{
		"broker":        b.name,
		"submission_id": result.SubmissionID(),
		"status":        result.Status(),
	}).Info("Bundle submitted")
	return result, nil
}

// ValidateSignature verifies the bundle signature, requiring one to exist
func (b *HTTPBroker) ValidateSignature(bnd *bundle.Bundle) error {
	return validateSignature(b.verifier, bnd)
}

// Close releases idle connections and drops cached responses
func (b *HTTPBroker) Close() error {
	b.client.CloseIdleConnections()
	b.cache.Clear()
	return nil
}

// submissionStatus fetches the review state of a submission
func (b *HTTPBroker) submissionStatus(ctx context.Context, submissionID string) (*marketplace.PublishResult, error) {
	if err := b.checkRate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/submissions/"+url.PathEscape(submissionID), nil)
	if err != nil {
		return nil, marketplace.NewBrokerError("cannot build request", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, marketplace.NewBrokerError("request to "+b.name+" failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, marketplace.NewBrokerError("cannot read response", err)
	}
	if err := statusError(b.name, resp, data); err != nil {
		return nil, err
	}

	var fields marketplace.PublishResultFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, marketplace.NewBrokerError("malformed submission status", err)
	}
	return marketplace.NewPublishResult(fields)
}

// fetch performs a rate-limited, cached GET. An existing entry's ETag is sent
// as If-None-Match even when the entry has expired.
func (b *HTTPBroker) fetch(ctx context.Context, rawURL, key string) ([]byte, error) {
	if err := b.checkRate(); err != nil {
		return nil, err
	}

	stale, hasStale := b.cache.Lookup(key)
	if payload, ok := b.cache.Get(key); ok {
		b.metrics.CacheLookup(b.name, "hit")
		return payload, nil
	}
	b.metrics.CacheLookup(b.name, "miss")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, marketplace.NewBrokerError("cannot build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if hasStale && stale.ETag != "" {
		req.Header.Set("If-None-Match", stale.ETag)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, marketplace.NewBrokerError("request to "+b.name+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if !hasStale {
			return nil, marketplace.NewBrokerError(b.name+" answered 304 for an uncached request", nil)
		}
		b.metrics.CacheLookup(b.name, "revalidated")
		if payload, ok := b.cache.Revalidate(key); ok {
			return payload, nil
		}
		b.cache.Set(key, stale.Payload, stale.ETag)
		return stale.Payload, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, marketplace.NewBrokerError("cannot read response", err)
	}
	if err := statusError(b.name, resp, data); err != nil {
		return nil, err
	}

	b.cache.Set(key, data, resp.Header.Get("ETag"))
	return data, nil
}

func (b *HTTPBroker) checkRate() error {
	if err := b.limiter.Check(); err != nil {
		b.metrics.RateLimited(b.name)
		b.logger.WithField("broker", b.name).Debug("Rate limit reached")
		return err
	}
	return nil
}

func (b *HTTPBroker) resolve(ref string) (string, error) {
	base, err := url.Parse(b.endpoint + "/")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func (b *HTTPBroker) observe(operation string, start time.Time, err error) {
	b.metrics.ObserveBrokerRequest(b.name, operation, outcome(err), start)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case marketplace.IsRateLimitError(err):
		return "rate_limited"
	case marketplace.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

func validateQuery(q marketplace.ListingQuery, maxPageSize int) error {
	if q.Page < 1 {
		return marketplace.NewValidationError("page must be >= 1, got %d", q.Page)
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		return marketplace.NewValidationError("page_size must be between 1 and %d, got %d", maxPageSize, q.PageSize)
	}
	return nil
}

// statusError maps a non-200 response onto the error taxonomy
func statusError(name string, resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg := fmt.Sprintf("%s returned %s", name, resp.Status)
	if detail := errorDetail(body); detail != "" {
		msg += ": " + detail
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return marketplace.NewValidationError("%s", msg)
	}
	return marketplace.NewBrokerError(msg, nil)
}

func errorDetail(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

func decodePage(name string, format WireFormat, body []byte, q marketplace.ListingQuery, logger *logrus.Logger) (*marketplace.ListingPage, error) {
	items, totalPages, err := format.ParsePage(body)
	if err != nil {
		return nil, marketplace.NewBrokerError("malformed listings response from "+name, err)
	}

	page := &marketplace.ListingPage{
		Broker:     name,
		Listings:   make([]*marketplace.MarketplaceListing, 0, len(items)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}

	for i, raw := range items {
		fields, err := format.ParseListing(raw)
		if err == nil {
			var listing *marketplace.MarketplaceListing
			listing, err = marketplace.NewListing(fields)
			if err == nil {
				page.Listings = append(page.Listings, listing)
				continue
			}
		}
		page.Skipped++
		logger.WithFields(logrus.Fields{
			"broker": name,
			"index":  i,
		}).WithError(err).Warn("Skipping malformed listing")
	}

	return page, nil
}

func encodePublish(bnd *bundle.Bundle, req *marketplace.PublishRequest) (io.Reader, string, error) {
	meta := req.Metadata
	manifest := bnd.Manifest

	author := manifest.Author
	if req.Publisher != nil {
		author = req.Publisher.Name()
	}
	license := meta.License()
	if license == "" {
		license = manifest.License
	}

	fields := [][2]string{
		{"name", meta.Title()},
		{"description", meta.Description()},
		{"author", author},
		{"license", license},
		{"version", manifest.Version},
		{"tags", strings.Join(meta.Tags(), ",")},
		{"artifact_count", strconv.Itoa(len(manifest.Artifacts))},
	}
	if meta.Homepage() != "" {
		fields = append(fields, [2]string{"homepage", meta.Homepage()})
	}
	if meta.Repository() != "" {
		fields = append(fields, [2]string{"repository", meta.Repository()})
	}
	if meta.Price() > 0 {
		fields = append(fields, [2]string{"price", strconv.Itoa(meta.Price())})
	}
	if req.Publisher != nil {
		fields = append(fields, [2]string{"publisher_email", req.Publisher.Email()})
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	file, err := os.Open(bnd.Path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	part, err := mw.CreateFormFile("bundle", filepath.Base(bnd.Path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}
