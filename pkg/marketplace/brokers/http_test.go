package brokers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/marketplace/brokertest"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSkillMeat(t *testing.T, srv *brokertest.Server, deps Deps, mutate ...func(*SkillMeatConfig)) *SkillMeatBroker {
	t.Helper()
	cfg := &SkillMeatConfig{BrokerConfig: marketplace.BrokerConfig{Enabled: true, Endpoint: srv.URL}}
	for _, m := range mutate {
		m(cfg)
	}
	b, err := SkillMeatProvider{}.New("skillmeat", cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b.(*SkillMeatBroker)
}

func listingFields(id string) marketplace.ListingFields {
	return marketplace.ListingFields{
		ListingID:     id,
		Name:          "Bundle " + id,
		Publisher:     "acme",
		License:       "MIT",
		ArtifactCount: 2,
		Tags:          []string{"development"},
	}
}

func packFixture(t *testing.T, opts ...bundle.PackOption) (*bundle.Bundle, []byte) {
	t.Helper()
	b, err := bundle.Pack(
		filepath.Join(t.TempDir(), "fixture.zip"),
		bundle.Manifest{
			Name:      "fixture",
			License:   "MIT",
			Version:   "1.2.0",
			Artifacts: []bundle.Artifact{{Name: "review", Type: "skill", Path: "skills/review.md"}},
		},
		map[string][]byte{"skills/review.md": []byte("# Review\n")},
		opts...,
	)
	require.NoError(t, err)
	data, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	return b, data
}

func publishRequest(t *testing.T) *marketplace.PublishRequest {
	t.Helper()
	meta, err := marketplace.NewPublishMetadata(marketplace.PublishMetadataFields{
		Title:       "Code Review Kit",
		Description: strings.Repeat("Reusable review skills. ", 6),
		Tags:        []string{"development", "testing"},
		License:     "MIT",
		Homepage:    "https://acme.test/kit",
	})
	require.NoError(t, err)
	publisher, err := marketplace.NewPublisherMetadata("Acme", "dev@acme.test", "")
	require.NoError(t, err)
	return &marketplace.PublishRequest{Metadata: meta, Publisher: publisher}
}

func TestHTTPBroker_Listings(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.AddListing(listingFields("a"))
	srv.AddRawListing("broken", []byte(`{"listing_id":"broken","name":"No publisher"}`))
	srv.AddListing(listingFields("b"))

	b := newSkillMeat(t, srv, Deps{})
	page, err := b.Listings(context.Background(), marketplace.ListingQuery{
		Page:     1,
		PageSize: 10,
		Filters:  map[string]string{"tag": "development"},
	})
	require.NoError(t, err)

	require.Len(t, page.Listings, 2)
	assert.Equal(t, "a", page.Listings[0].ListingID())
	assert.Equal(t, "b", page.Listings[1].ListingID())
	assert.Equal(t, 1, page.Skipped)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, "skillmeat", page.Broker)
	assert.Equal(t, "development", srv.LastQuery().Get("tag"))
	assert.Equal(t, "10", srv.LastQuery().Get("page_size"))
}

func TestHTTPBroker_ListingsValidation(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	b := newSkillMeat(t, srv, Deps{})

	tests := []struct {
		name string
		q    marketplace.ListingQuery
	}{
		{name: "page zero", q: marketplace.ListingQuery{Page: 0, PageSize: 10}},
		{name: "page size zero", q: marketplace.ListingQuery{Page: 1, PageSize: 0}},
		{name: "page size over max", q: marketplace.ListingQuery{Page: 1, PageSize: SkillMeatMaxPageSize + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Listings(context.Background(), tt.q)
			require.Error(t, err)
			assert.True(t, marketplace.IsValidationError(err))
		})
	}
	assert.Equal(t, 0, srv.Requests(brokertest.RouteListings))
}

func TestHTTPBroker_ListingsCached(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.AddListing(listingFields("a"))

	b := newSkillMeat(t, srv, Deps{})
	q := marketplace.ListingQuery{Page: 1, PageSize: 5}

	for i := 0; i < 3; i++ {
		page, err := b.Listings(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, page.Listings, 1)
	}
	assert.Equal(t, 1, srv.Requests(brokertest.RouteListings))

	// a different page is a different cache key
	_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Requests(brokertest.RouteListings))
}

func TestHTTPBroker_ETagRevalidation(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.AddListing(listingFields("a"))
	srv.SetETag(`"v1"`)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	b := newSkillMeat(t, srv, Deps{Metrics: metrics})
	clock := newTestClock()
	b.Cache().SetClock(clock.Now)

	q := marketplace.ListingQuery{Page: 1, PageSize: 5}
	first, err := b.Listings(context.Background(), q)
	require.NoError(t, err)

	clock.Advance(marketplace.DefaultCacheTTL + time.Second)

	second, err := b.Listings(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Requests(brokertest.RouteListings))
	require.Len(t, second.Listings, 1)
	assert.Equal(t, first.Listings[0].ListingID(), second.Listings[0].ListingID())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("skillmeat", "revalidated")))

	// the revalidated entry is fresh again
	_, err = b.Listings(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Requests(brokertest.RouteListings))
}

func TestHTTPBroker_RateLimited(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	b := newSkillMeat(t, srv, Deps{Metrics: metrics}, func(c *SkillMeatConfig) {
		c.RateLimit = &marketplace.RateLimitConfig{MaxRequests: 1, TimeWindow: 60, RetryAfter: 30}
	})

	_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 5})
	require.NoError(t, err)

	_, err = b.Listings(context.Background(), marketplace.ListingQuery{Page: 2, PageSize: 5})
	require.Error(t, err)
	var rle *marketplace.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 30, rle.RetryAfter)
	assert.Equal(t, 1, srv.Requests(brokertest.RouteListings))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("skillmeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BrokerRequestsTotal.WithLabelValues("skillmeat", "listings", "rate_limited")))
}

func TestHTTPBroker_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "server error", status: http.StatusBadGateway, sentinel: marketplace.ErrBroker},
		{name: "client error", status: http.StatusBadRequest, sentinel: marketplace.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := brokertest.NewServer()
			defer srv.Close()
			srv.Fail(brokertest.RouteListings, tt.status)

			b := newSkillMeat(t, srv, Deps{})
			_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 5})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), "injected failure")
		})
	}
}

func TestHTTPBroker_BearerToken(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	t.Setenv("SKILLMEAT_TEST_TOKEN", "s3cret")

	b := newSkillMeat(t, srv, Deps{}, func(c *SkillMeatConfig) { c.TokenEnv = "SKILLMEAT_TEST_TOKEN" })
	_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", srv.LastAuthorization())
}

func TestHTTPBroker_Download(t *testing.T) {
	keys := signing.NewKeyStore(filepath.Join(t.TempDir(), "keys"))
	_, err := keys.GenerateKey("acme", true)
	require.NoError(t, err)
	_, err = keys.GenerateKey("stranger", false)
	require.NoError(t, err)
	trustedSigner, err := signing.NewSigner(keys, "acme")
	require.NoError(t, err)
	untrustedSigner, err := signing.NewSigner(keys, "stranger")
	require.NoError(t, err)

	tests := []struct {
		name     string
		sign     *signing.Ed25519Signer
		hash     func(b *bundle.Bundle) string
		relative bool
		failWith int
		check    func(t *testing.T, err error)
	}{
		{
			name: "unsigned with matching hash",
			hash: func(b *bundle.Bundle) string { return b.Hash },
		},
		{
			name:     "unsigned with relative bundle url",
			relative: true,
		},
		{
			name: "signed by trusted key",
			sign: trustedSigner,
		},
		{
			name: "hash mismatch",
			hash: func(*bundle.Bundle) string { return "sha256:" + strings.Repeat("0", 64) },
			check: func(t *testing.T, err error) {
				assert.True(t, marketplace.IsValidationError(err))
				assert.Contains(t, err.Error(), "hash mismatch")
			},
		},
		{
			name: "signed by untrusted key",
			sign: untrustedSigner,
			check: func(t *testing.T, err error) {
				assert.True(t, marketplace.IsValidationError(err))
				assert.Contains(t, err.Error(), string(signing.StatusKeyUntrusted))
			},
		},
		{
			name:     "transfer failure",
			failWith: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.True(t, marketplace.IsDownloadError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []bundle.PackOption
			if tt.sign != nil {
				opts = append(opts, bundle.WithSigner(tt.sign.SignBundle))
			}
			b, data := packFixture(t, opts...)

			srv := brokertest.NewServer()
			defer srv.Close()
			fields := listingFields("kit")
			fields.BundleURL = srv.BundleURL("kit")
			if tt.relative {
				fields.BundleURL = "/bundles/kit"
			}
			if tt.hash != nil {
				fields.BundleHash = tt.hash(b)
			}
			if tt.sign != nil {
				fields.Signature = signing.Algorithm
			}
			srv.AddListing(fields)
			srv.AddBundle("kit", data)
			if tt.failWith != 0 {
				srv.Fail(brokertest.RouteBundle, tt.failWith)
			}

			broker := newSkillMeat(t, srv, Deps{Verifier: signing.NewVerifier(keys)})
			out := t.TempDir()
			path, err := broker.Download(context.Background(), "kit", out)

			entries, readErr := os.ReadDir(out)
			require.NoError(t, readErr)

			if tt.check != nil {
				require.Error(t, err)
				tt.check(t, err)
				assert.Empty(t, entries, "partial download must be removed")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, filepath.Join(out, "kit.zip"), path)
			require.Len(t, entries, 1)
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestHTTPBroker_DownloadUnknownListing(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()

	b := newSkillMeat(t, srv, Deps{})
	_, err := b.Download(context.Background(), "missing", t.TempDir())
	require.Error(t, err)
	assert.True(t, marketplace.IsDownloadError(err))
}

func TestHTTPBroker_DownloadDefaultsToTempDir(t *testing.T) {
	_, data := packFixture(t)
	srv := brokertest.NewServer()
	defer srv.Close()
	fields := listingFields("kit")
	fields.BundleURL = srv.BundleURL("kit")
	srv.AddListing(fields)
	srv.AddBundle("kit", data)

	b := newSkillMeat(t, srv, Deps{})
	path, err := b.Download(context.Background(), "kit", "")
	require.NoError(t, err)
	defer os.RemoveAll(filepath.Dir(path))
	assert.FileExists(t, path)
}

func TestDownloadTo_RemovesTempDirOnFailure(t *testing.T) {
	_, data := packFixture(t)

	tests := []struct {
		name     string
		hash     string
		fetchErr error
		wantErr  func(error) bool
	}{
		{name: "transfer failure", fetchErr: errors.New("connection reset"), wantErr: marketplace.IsDownloadError},
		{name: "digest mismatch", hash: "sha256:" + strings.Repeat("0", 64), wantErr: marketplace.IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			t.Setenv("TMPDIR", tmp)

			fields := listingFields("kit")
			fields.BundleHash = tt.hash
			listing, err := marketplace.NewListing(fields)
			require.NoError(t, err)

			_, err = downloadTo(context.Background(), listing, "", nil, func(w io.Writer) error {
				if tt.fetchErr != nil {
					return tt.fetchErr
				}
				_, err := w.Write(data)
				return err
			})
			require.Error(t, err)
			assert.True(t, tt.wantErr(err))

			entries, err := os.ReadDir(tmp)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}

	t.Run("caller directory is kept", func(t *testing.T) {
		dir := t.TempDir()
		listing, err := marketplace.NewListing(listingFields("kit"))
		require.NoError(t, err)

		_, err = downloadTo(context.Background(), listing, dir, nil, func(io.Writer) error {
			return errors.New("connection reset")
		})
		require.Error(t, err)
		assert.DirExists(t, dir)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestHTTPBroker_Publish(t *testing.T) {
	b, data := packFixture(t)
	srv := brokertest.NewServer()
	defer srv.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	broker := newSkillMeat(t, srv, Deps{Metrics: metrics})
	result, err := broker.Publish(context.Background(), b, publishRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "sub-1", result.SubmissionID())
	assert.Equal(t, marketplace.PublishPending, result.Status())

	records := srv.Publishes()
	require.Len(t, records, 1)
	fields := records[0].Fields
	assert.Equal(t, "Code Review Kit", fields["name"])
	assert.Equal(t, "Acme", fields["author"])
	assert.Equal(t, "MIT", fields["license"])
	assert.Equal(t, "1.2.0", fields["version"])
	assert.Equal(t, "development,testing", fields["tags"])
	assert.Equal(t, "1", fields["artifact_count"])
	assert.Equal(t, "https://acme.test/kit", fields["homepage"])
	assert.NotContains(t, fields, "price")
	assert.Equal(t, data, records[0].Bundle)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BrokerRequestsTotal.WithLabelValues("skillmeat", "publish", "success")))

	srv.SetSubmissionStatus("sub-1", marketplace.PublishApproved, "Looks good")
	status, err := broker.SubmissionStatus(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, marketplace.PublishApproved, status.Status())
	assert.NotEmpty(t, status.ListingURL())
}

func TestHTTPBroker_PublishFailure(t *testing.T) {
	b, _ := packFixture(t)
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.Fail(brokertest.RoutePublish, http.StatusServiceUnavailable)

	broker := newSkillMeat(t, srv, Deps{})
	_, err := broker.Publish(context.Background(), b, publishRequest(t))
	require.Error(t, err)
	assert.True(t, marketplace.IsPublishError(err))
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPBroker_ValidateSignature(t *testing.T) {
	keys := signing.NewKeyStore(filepath.Join(t.TempDir(), "keys"))
	_, err := keys.GenerateKey("acme", true)
	require.NoError(t, err)
	signer, err := signing.NewSigner(keys, "acme")
	require.NoError(t, err)

	srv := brokertest.NewServer()
	defer srv.Close()
	broker := newSkillMeat(t, srv, Deps{Verifier: signing.NewVerifier(keys)})

	signed, _ := packFixture(t, bundle.WithSigner(signer.SignBundle))
	assert.NoError(t, broker.ValidateSignature(signed))

	unsigned, _ := packFixture(t)
	err = broker.ValidateSignature(unsigned)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(signing.StatusUnsigned))

	noVerifier := newSkillMeat(t, srv, Deps{})
	assert.Error(t, noVerifier.ValidateSignature(signed))
}

func TestClaudeHub(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.SetFormat(brokertest.FormatClaudeHub)
	srv.AddRawListing("hub-kit", []byte(`{
		"slug": "hub-kit",
		"title": "Hub Kit",
		"author": {"name": "hubber"},
		"license": "Apache-2.0",
		"artifacts": 3,
		"price_cents": 499,
		"sha256": "sha256:abc",
		"tags": ["ai"],
		"summary": "Skills from the hub",
		"repo": "https://example.test/hub-kit",
		"installs": 12,
		"stars": 4.5
	}`))

	broker, err := ClaudeHubProvider{}.New("claudehub", &ClaudeHubConfig{
		BrokerConfig: marketplace.BrokerConfig{Enabled: true, Endpoint: srv.URL},
	}, Deps{})
	require.NoError(t, err)
	defer broker.Close()

	page, err := broker.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: ClaudeHubMaxPageSize})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)

	l := page.Listings[0]
	assert.Equal(t, "hub-kit", l.ListingID())
	assert.Equal(t, "Hub Kit", l.Name())
	assert.Equal(t, "hubber", l.Publisher())
	assert.Equal(t, 3, l.ArtifactCount())
	assert.Equal(t, 499, l.Price())
	assert.Equal(t, "https://example.test/hub-kit", l.Repository())
	assert.Equal(t, 12, l.Downloads())
	rating, ok := l.Rating()
	assert.True(t, ok)
	assert.Equal(t, 4.5, rating)

	_, err = broker.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: ClaudeHubMaxPageSize + 1})
	assert.True(t, marketplace.IsValidationError(err))

	b, _ := packFixture(t)
	_, err = broker.Publish(context.Background(), b, publishRequest(t))
	require.Error(t, err)
	assert.True(t, marketplace.IsPublishError(err))
	assert.Contains(t, err.Error(), "not supported")
	assert.Equal(t, 0, srv.Requests(brokertest.RoutePublish))

	_, isChecker := broker.(marketplace.StatusChecker)
	assert.False(t, isChecker)
}

func TestCustomBroker_Schema(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.SetSchema(map[string]string{
		"listing_id": "uuid",
		"name":       "title",
		"publisher":  "owner",
	})
	srv.AddRawListing("u-1", []byte(`{"uuid":"u-1","title":"Remapped","owner":"self-hosted","license":"MIT"}`))
	srv.Fail(brokertest.RouteSchema, http.StatusInternalServerError)

	broker, err := CustomProvider{}.New("custom", &CustomConfig{
		BrokerConfig: marketplace.BrokerConfig{Enabled: true, Endpoint: srv.URL},
		SchemaURL:    "/schema",
	}, Deps{})
	require.NoError(t, err)
	defer broker.Close()

	q := marketplace.ListingQuery{Page: 1, PageSize: 10}
	_, err = broker.Listings(context.Background(), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, marketplace.ErrBroker)
	assert.Equal(t, 0, srv.Requests(brokertest.RouteListings))

	// the schema is fetched again after a failure
	srv.Fail(brokertest.RouteSchema, 0)
	page, err := broker.Listings(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)
	assert.Equal(t, "u-1", page.Listings[0].ListingID())
	assert.Equal(t, "Remapped", page.Listings[0].Name())
	assert.Equal(t, "self-hosted", page.Listings[0].Publisher())

	custom := broker.(*CustomBroker)
	l, err := custom.Listing(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Remapped", l.Name())
	assert.Equal(t, 2, srv.Requests(brokertest.RouteSchema))
}

func TestCustomBroker_NoSchema(t *testing.T) {
	srv := brokertest.NewServer()
	defer srv.Close()
	srv.AddListing(listingFields("plain"))

	broker, err := CustomProvider{}.New("custom", &CustomConfig{
		BrokerConfig: marketplace.BrokerConfig{Enabled: true, Endpoint: srv.URL},
	}, Deps{})
	require.NoError(t, err)
	defer broker.Close()

	page, err := broker.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)
	assert.Equal(t, 0, srv.Requests(brokertest.RouteSchema))
}

type foreignConfig struct {
	marketplace.BrokerConfig
}

func (c *foreignConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

func TestProviders_RejectForeignConfig(t *testing.T) {
	for typ, p := range DefaultProviders() {
		t.Run(typ, func(t *testing.T) {
			_, err := p.New("x", &foreignConfig{}, Deps{})
			require.Error(t, err)
			assert.True(t, marketplace.IsValidationError(err))
		})
	}
}
