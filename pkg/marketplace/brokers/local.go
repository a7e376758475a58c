package brokers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

const (
	// LocalMaxPageSize is the largest page served from a local directory
	LocalMaxPageSize = 100

	// IndexFile lists the bundles a local marketplace offers
	IndexFile = "index.json"

	// SubmissionsDir receives bundles published to a local marketplace
	SubmissionsDir = "submissions"

	indexCacheKey = "index"
)

// LocalBroker serves a marketplace from a directory. Listings come from
// index.json in the SkillMeat wire shape and published bundles are queued
// under submissions/.
type LocalBroker struct {
	name     string
	dir      string
	limiter  *marketplace.RateLimiter
	cache    *marketplace.ResponseCache
	format   SkillMeatFormat
	verifier signing.Verifier
	logger   *logrus.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// localSubmission is the on-disk record of a local publish
type localSubmission struct {
	marketplace.PublishResultFields
	Title      string   `json:"title"`
	Version    string   `json:"version,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	BundleHash string   `json:"bundle_hash"`
	BundleFile string   `json:"bundle_file"`
}

// NewLocalBroker creates a broker over dir
func NewLocalBroker(name, dir string, cfg marketplace.BrokerConfig, deps Deps) *LocalBroker {
	return &LocalBroker{
		name:     name,
		dir:      dir,
		limiter:  marketplace.NewRateLimiter(name, cfg.RateLimitOrDefault()),
		cache:    marketplace.NewResponseCache(cfg.CacheTTLOrDefault(), marketplace.DefaultCacheCapacity),
		verifier: deps.Verifier,
		logger:   deps.logger(),
		metrics:  deps.Metrics,
		now:      time.Now,
	}
}

// LocalDir extracts the directory from a local:// or file:// endpoint
func LocalDir(endpoint string) (string, error) {
	var dir string
	switch {
	case strings.HasPrefix(endpoint, "local://"):
		dir = strings.TrimPrefix(endpoint, "local://")
	case strings.HasPrefix(endpoint, "file://"):
		dir = strings.TrimPrefix(endpoint, "file://")
	default:
		return "", marketplace.NewValidationError("endpoint %q is not a local:// or file:// URL", endpoint)
	}
	if dir == "" {
		return "", marketplace.NewValidationError("endpoint %q has no directory", endpoint)
	}

	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", marketplace.NewValidationError("cannot expand %q: %v", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Clean(dir), nil
}

func (b *LocalBroker) Name() string { return b.name }

// Dir returns the marketplace directory
func (b *LocalBroker) Dir() string { return b.dir }

// Limiter exposes the broker's rate limiter
func (b *LocalBroker) Limiter() *marketplace.RateLimiter { return b.limiter }

// Listings filters and pages index.json. Supported filters are tag, license,
// publisher and q, a case-insensitive match on name and description.
func (b *LocalBroker) Listings(ctx context.Context, q marketplace.ListingQuery) (page *marketplace.ListingPage, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveBrokerRequest(b.name, "listings", outcome(err), start) }()

	if err := validateQuery(q, LocalMaxPageSize); err != nil {
		return nil, err
	}

	all, skipped, err := b.index(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*marketplace.MarketplaceListing, 0, len(all))
	for _, l := range all {
		if matchFilters(l, q.Filters) {
			matched = append(matched, l)
		}
	}

	totalPages := (len(matched) + q.PageSize - 1) / q.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	from := (q.Page - 1) * q.PageSize
	if from > len(matched) {
		from = len(matched)
	}
	to := from + q.PageSize
	if to > len(matched) {
		to = len(matched)
	}

	return &marketplace.ListingPage{
		Broker:     b.name,
		Listings:   matched[from:to],
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
		Skipped:    skipped,
	}, nil
}

// Listing resolves a single listing by id
func (b *LocalBroker) Listing(ctx context.Context, listingID string) (*marketplace.MarketplaceListing, error) {
	all, _, err := b.index(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if l.ListingID() == listingID {
			return l, nil
		}
	}
	return nil, marketplace.NewValidationError("listing %s not found in %s", listingID, b.name)
}

// Download copies a listed bundle into outputDir and verifies it. A relative
// bundle_url is resolved against the marketplace directory and an empty one
// defaults to bundles/<listing-id>.zip.
func (b *LocalBroker) Download(ctx context.Context, listingID, outputDir string) (path string, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveBrokerRequest(b.name, "download", outcome(err), start) }()

	listing, err := b.Listing(ctx, listingID)
	if err != nil {
		if marketplace.IsRateLimitError(err) {
			return "", err
		}
		return "", marketplace.NewDownloadError("cannot resolve listing "+listingID, err)
	}

	src := b.bundlePath(listing)
	return downloadTo(ctx, listing, outputDir, b.verifier, func(w io.Writer) error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
}

// Publish queues a bundle under submissions/ with a pending status
func (b *LocalBroker) Publish(ctx context.Context, bnd *bundle.Bundle, req *marketplace.PublishRequest) (result *marketplace.PublishResult, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveBrokerRequest(b.name, "publish", outcome(err), start) }()

	if bnd == nil || req == nil || req.Metadata == nil {
		return nil, marketplace.NewValidationError("bundle and metadata are required")
	}
	if err := b.checkRate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, marketplace.NewPublishError("publish cancelled", err)
	}

	dir := filepath.Join(b.dir, SubmissionsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, marketplace.NewPublishError("cannot create submissions directory", err)
	}

	id := uuid.NewString()
	bundleFile := filepath.Join(dir, id+".zip")
	if err := copyFile(bnd.Path, bundleFile); err != nil {
		os.Remove(bundleFile)
		return nil, marketplace.NewPublishError("cannot store bundle", err)
	}

	now := b.now().UTC()
	record := localSubmission{
		PublishResultFields: marketplace.PublishResultFields{
			SubmissionID: id,
			Status:       marketplace.PublishPending,
			Message:      "Submission queued for review",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Title:      req.Metadata.Title(),
		Version:    bnd.Manifest.Version,
		Tags:       req.Metadata.Tags(),
		BundleHash: bnd.Hash,
		BundleFile: filepath.Base(bundleFile),
	}
	if err := writeJSON(filepath.Join(dir, id+".json"), record); err != nil {
		os.Remove(bundleFile)
		return nil, marketplace.NewPublishError("cannot record submission", err)
	}

	b.logger.WithFields(logrus.Fields{
		"broker":        b.name,
		"submission_id": id,
	}).Info("Bundle queued in local marketplace")

	return marketplace.NewPublishResult(record.PublishResultFields)
}

// SubmissionStatus reads the current state of a local submission
func (b *LocalBroker) SubmissionStatus(ctx context.Context, submissionID string) (*marketplace.PublishResult, error) {
	if err := b.checkRate(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(submissionID, `/\`) || submissionID == "" {
		return nil, marketplace.NewValidationError("invalid submission id %q", submissionID)
	}

	data, err := os.ReadFile(filepath.Join(b.dir, SubmissionsDir, submissionID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, marketplace.NewValidationError("submission %s not found in %s", submissionID, b.name)
		}
		return nil, marketplace.NewBrokerError("cannot read submission", err)
	}

	var record localSubmission
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, marketplace.NewBrokerError("malformed submission record", err)
	}
	return marketplace.NewPublishResult(record.PublishResultFields)
}

// ValidateSignature verifies the bundle signature, requiring one to exist
func (b *LocalBroker) ValidateSignature(bnd *bundle.Bundle) error {
	return validateSignature(b.verifier, bnd)
}

// Close drops cached index data
func (b *LocalBroker) Close() error {
	b.cache.Clear()
	return nil
}

// index returns every valid listing in index.json and the number skipped. A
// missing index is an empty marketplace.
func (b *LocalBroker) index(ctx context.Context) ([]*marketplace.MarketplaceListing, int, error) {
	if err := b.checkRate(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, marketplace.NewBrokerError("listing cancelled", err)
	}

	data, ok := b.cache.Get(indexCacheKey)
	if ok {
		b.metrics.CacheLookup(b.name, "hit")
	} else {
		b.metrics.CacheLookup(b.name, "miss")
		var err error
		data, err = os.ReadFile(filepath.Join(b.dir, IndexFile))
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, marketplace.NewBrokerError("cannot read "+IndexFile, err)
		}
		b.cache.Set(indexCacheKey, data, "")
	}

	page, err := decodePage(b.name, b.format, data, marketplace.ListingQuery{Page: 1}, b.logger)
	if err != nil {
		return nil, 0, err
	}
	return page.Listings, page.Skipped, nil
}

func (b *LocalBroker) bundlePath(l *marketplace.MarketplaceListing) string {
	ref := strings.TrimPrefix(l.BundleURL(), "file://")
	if ref == "" {
		return filepath.Join(b.dir, "bundles", bundleFileName(l.ListingID()))
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(b.dir, filepath.FromSlash(ref))
}

func (b *LocalBroker) checkRate() error {
	if err := b.limiter.Check(); err != nil {
		b.metrics.RateLimited(b.name)
		return err
	}
	return nil
}

func matchFilters(l *marketplace.MarketplaceListing, filters map[string]string) bool {
	for key, want := range filters {
		if want == "" {
			continue
		}
		switch key {
		case "tag":
			found := false
			for _, t := range l.Tags() {
				if strings.EqualFold(t, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "license":
			if !strings.EqualFold(l.License(), want) {
				return false
			}
		case "publisher":
			if !strings.EqualFold(l.Publisher(), want) {
				return false
			}
		case "q":
			needle := strings.ToLower(want)
			if !strings.Contains(strings.ToLower(l.Name()), needle) &&
				!strings.Contains(strings.ToLower(l.Description()), needle) {
				return false
			}
		}
	}
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LocalProvider builds directory-backed brokers
type LocalProvider struct{}

func (LocalProvider) NewConfig() Config { return &LocalConfig{} }

func (LocalProvider) New(name string, cfg Config, deps Deps) (marketplace.Broker, error) {
	c, ok := cfg.(*LocalConfig)
	if !ok {
		return nil, configError(name, TypeLocal, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dir, err := LocalDir(c.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewLocalBroker(name, dir, c.BrokerConfig, deps), nil
}
