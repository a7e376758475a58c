package brokers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

func newLocalMarket(t *testing.T) (*LocalBroker, string) {
	t.Helper()
	dir := t.TempDir()

	listings := []any{
		listingFields("alpha"),
		marketplace.ListingFields{
			ListingID:   "beta",
			Name:        "Data Tools",
			Publisher:   "datafolk",
			License:     "Apache-2.0",
			Tags:        []string{"data", "python"},
			Description: "Notebook helpers",
			BundleURL:   "bundles/beta.zip",
		},
		map[string]any{"listing_id": "broken", "name": "", "publisher": "x"},
		marketplace.ListingFields{
			ListingID: "gamma",
			Name:      "Gamma Review",
			Publisher: "acme",
			License:   "GPL-3.0-only",
			Tags:      []string{"development"},
		},
	}
	data, err := json.Marshal(map[string]any{"listings": listings})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), data, 0o644))

	b, err := LocalProvider{}.New("local", &LocalConfig{
		BrokerConfig: marketplace.BrokerConfig{Enabled: true, Endpoint: "local://" + dir},
	}, Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b.(*LocalBroker), dir
}

func TestLocalDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		endpoint string
		want     string
		wantErr  bool
	}{
		{endpoint: "local:///srv/market", want: "/srv/market"},
		{endpoint: "file:///srv/market/", want: "/srv/market"},
		{endpoint: "local://~/market", want: filepath.Join(home, "market")},
		{endpoint: "local://", wantErr: true},
		{endpoint: "https://example.test", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := LocalDir(tt.endpoint)
			if tt.wantErr {
				assert.True(t, marketplace.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalBroker_Listings(t *testing.T) {
	b, _ := newLocalMarket(t)

	tests := []struct {
		name    string
		q       marketplace.ListingQuery
		wantIDs []string
		pages   int
	}{
		{name: "all", q: marketplace.ListingQuery{Page: 1, PageSize: 10}, wantIDs: []string{"alpha", "beta", "gamma"}, pages: 1},
		{name: "paged", q: marketplace.ListingQuery{Page: 2, PageSize: 2}, wantIDs: []string{"gamma"}, pages: 2},
		{name: "past the end", q: marketplace.ListingQuery{Page: 5, PageSize: 2}, wantIDs: []string{}, pages: 2},
		{name: "by tag", q: marketplace.ListingQuery{Page: 1, PageSize: 10, Filters: map[string]string{"tag": "PYTHON"}}, wantIDs: []string{"beta"}, pages: 1},
		{name: "by license", q: marketplace.ListingQuery{Page: 1, PageSize: 10, Filters: map[string]string{"license": "mit"}}, wantIDs: []string{"alpha"}, pages: 1},
		{name: "by publisher", q: marketplace.ListingQuery{Page: 1, PageSize: 10, Filters: map[string]string{"publisher": "acme"}}, wantIDs: []string{"alpha", "gamma"}, pages: 1},
		{name: "free text", q: marketplace.ListingQuery{Page: 1, PageSize: 10, Filters: map[string]string{"q": "notebook"}}, wantIDs: []string{"beta"}, pages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := b.Listings(context.Background(), tt.q)
			require.NoError(t, err)

			ids := []string{}
			for _, l := range page.Listings {
				ids = append(ids, l.ListingID())
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.pages, page.TotalPages)
			assert.Equal(t, 1, page.Skipped)
		})
	}

	_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: LocalMaxPageSize + 1})
	assert.True(t, marketplace.IsValidationError(err))
}

func TestLocalBroker_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBroker("local", dir, marketplace.BrokerConfig{}, Deps{})

	page, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Listings)
	assert.Equal(t, 1, page.TotalPages)
}

func TestLocalBroker_Download(t *testing.T) {
	b, dir := newLocalMarket(t)
	_, data := packFixture(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bundles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundles", "beta.zip"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundles", "alpha.zip"), data, 0o644))

	for _, id := range []string{"alpha", "beta"} {
		t.Run(id, func(t *testing.T) {
			out := t.TempDir()
			path, err := b.Download(context.Background(), id, out)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(out, id+".zip"), path)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		out := t.TempDir()
		_, err := b.Download(context.Background(), "gamma", out)
		require.Error(t, err)
		assert.True(t, marketplace.IsDownloadError(err))

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := b.Download(context.Background(), "nope", t.TempDir())
		assert.True(t, marketplace.IsDownloadError(err))
	})
}

func TestLocalBroker_PublishAndStatus(t *testing.T) {
	b, dir := newLocalMarket(t)
	bnd, data := packFixture(t)

	result, err := b.Publish(context.Background(), bnd, publishRequest(t))
	require.NoError(t, err)
	assert.Equal(t, marketplace.PublishPending, result.Status())
	require.NotEmpty(t, result.SubmissionID())

	stored, err := os.ReadFile(filepath.Join(dir, SubmissionsDir, result.SubmissionID()+".zip"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	status, err := b.SubmissionStatus(context.Background(), result.SubmissionID())
	require.NoError(t, err)
	assert.Equal(t, marketplace.PublishPending, status.Status())

	// a reviewer approves by editing the record
	recordPath := filepath.Join(dir, SubmissionsDir, result.SubmissionID()+".json")
	raw, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, "Code Review Kit", record["title"])
	assert.Equal(t, bnd.Hash, record["bundle_hash"])
	record["status"] = "approved"
	raw, err = json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(recordPath, raw, 0o644))

	status, err = b.SubmissionStatus(context.Background(), result.SubmissionID())
	require.NoError(t, err)
	assert.Equal(t, marketplace.PublishApproved, status.Status())

	_, err = b.SubmissionStatus(context.Background(), "../escape")
	assert.True(t, marketplace.IsValidationError(err))
	_, err = b.SubmissionStatus(context.Background(), "unknown")
	assert.True(t, marketplace.IsValidationError(err))
}

func TestLocalBroker_RateLimited(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBroker("local", dir, marketplace.BrokerConfig{
		RateLimit: &marketplace.RateLimitConfig{MaxRequests: 1, TimeWindow: 60, RetryAfter: 60},
	}, Deps{})

	_, err := b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	_, err = b.Listings(context.Background(), marketplace.ListingQuery{Page: 1, PageSize: 10})
	assert.True(t, marketplace.IsRateLimitError(err))
}
