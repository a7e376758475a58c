package license

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// CacheFile is the SPDX list cached inside the cache directory
const CacheFile = "spdx-licenses.json"

// maxListSize bounds the downloaded SPDX list
const maxListSize = 8 << 20

// Source reports where the active table came from
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceBuiltin Source = "builtin"
)

// ValidationResult describes a known license identifier
type ValidationResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Deprecated  bool     `json:"deprecated"`
	OSIApproved bool     `json:"osi_approved"`
	Warnings    []string `json:"warnings,omitempty"`
}

// CompatibilityResult is the outcome of CheckCompatibility
type CompatibilityResult struct {
	Compatible bool     `json:"compatible"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Err returns an error wrapping ErrLicenseIncompatible when the result is
// incompatible, or nil.
func (r *CompatibilityResult) Err() error {
	if r.Compatible {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrLicenseIncompatible, strings.Join(r.Errors, "; "))
}

// Validator checks SPDX identifiers and license combinations
type Validator struct {
	cacheDir string
	url      string
	client   *http.Client
	logger   *logrus.Logger

	mu     sync.RWMutex
	table  *Table
	source Source
}

// Option configures a Validator
type Option func(*Validator)

// WithHTTPClient replaces the client used to fetch the SPDX list
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) {
		v.client = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithTable installs a table directly, skipping Load
func WithTable(t *Table) Option {
	return func(v *Validator) {
		v.table = t
		v.source = SourceBuiltin
	}
}

// NewValidator creates a validator caching the SPDX list under cacheDir
func NewValidator(cacheDir, spdxURL string, opts ...Option) *Validator {
	v := &Validator{
		cacheDir: cacheDir,
		url:      spdxURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logrus.New()
	}
	if v.client == nil {
		v.client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return v
}

// Load installs the SPDX table from the disk cache, fetching and caching it
// on a miss. When the list cannot be fetched the builtin table is used.
func (v *Validator) Load(ctx context.Context) Source {
	if t, err := v.readCache(); err == nil {
		v.install(t, SourceCache)
		return SourceCache
	} else if !os.IsNotExist(err) {
		v.logger.WithError(err).Warn("Ignoring unreadable SPDX cache")
	}

	if err := v.Refresh(ctx); err != nil {
		v.logger.WithError(err).Warn("Cannot fetch SPDX license list, using builtin table")
		v.install(BuiltinTable(), SourceBuiltin)
		return SourceBuiltin
	}
	return SourceNetwork
}

// Refresh fetches the SPDX list and rewrites the cache. On failure the
// current table is kept.
func (v *Validator) Refresh(ctx context.Context) error {
	if v.url == "" {
		return fmt.Errorf("no SPDX list URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SPDX list request returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return err
	}

	t, err := ParseTable(data)
	if err != nil {
		return err
	}
	v.install(t, SourceNetwork)

	if err := v.writeCache(t); err != nil {
		v.logger.WithError(err).Warn("Failed to cache SPDX license list")
	}
	v.logger.WithFields(logrus.Fields{
		"version":  t.Version,
		"licenses": t.Len(),
	}).Info("Loaded SPDX license list")
	return nil
}

// Source reports where the active table came from
func (v *Validator) Source() Source {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.source
}

// ValidateLicense checks that id is a known SPDX identifier. Deprecated
// identifiers are valid with a warning.
func (v *Validator) ValidateLicense(id string) (*ValidationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: license identifier is required", ErrLicenseValidation)
	}

	l, ok := v.current().Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown SPDX identifier %q", ErrLicenseValidation, id)
	}

	res := &ValidationResult{
		ID:          l.ID,
		Name:        l.Name,
		Category:    Classify(l.ID),
		Deprecated:  l.Deprecated,
		OSIApproved: l.OSIApproved,
	}
	if l.Deprecated {
		res.Warnings = append(res.Warnings, fmt.Sprintf("License %s is deprecated", l.ID))
	}
	return res, nil
}

// CheckCompatibility decides whether artifacts under artifactLicenses may be
// shipped in a bundle under bundleLicense:
//
//   - permissive bundle: anything goes, strong copyleft artifacts warn
//   - strong copyleft bundle: artifacts must be GPL-compatible, else error
//   - weak copyleft bundle: strong copyleft artifacts warn
//
// Identifiers missing from the table only ever warn.
func (v *Validator) CheckCompatibility(bundleLicense string, artifactLicenses []string) *CompatibilityResult {
	t := v.current()
	res := &CompatibilityResult{Compatible: true}

	bundleCategory := CategoryOther
	if l, ok := t.Lookup(bundleLicense); ok {
		bundleLicense = l.ID
		bundleCategory = Classify(l.ID)
	} else {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown license %q for bundle", bundleLicense))
	}

	for _, raw := range artifactLicenses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		l, ok := t.Lookup(raw)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown license %q for artifact", raw))
			continue
		}

		switch bundleCategory {
		case CategoryPermissive, CategoryWeakCopyleft:
			if StrongCopyleft[l.ID] {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"Artifact license %s is strong copyleft; the bundle may need to be distributed under %s",
					l.ID, l.ID))
			}
		case CategoryStrongCopyleft:
			if !GPLCompatible(l.ID) {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"Artifact license %s is incompatible with bundle license %s", l.ID, bundleLicense))
			}
		}
	}

	res.Compatible = len(res.Errors) == 0
	return res
}

// current returns the active table, loading it on first use
func (v *Validator) current() *Table {
	v.mu.RLock()
	t := v.table
	v.mu.RUnlock()
	if t != nil {
		return t
	}

	v.Load(context.Background())
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.table
}

func (v *Validator) install(t *Table, source Source) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.table = t
	v.source = source
}

func (v *Validator) cachePath() string {
	return filepath.Join(v.cacheDir, CacheFile)
}

func (v *Validator) readCache() (*Table, error) {
	if v.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(v.cachePath())
	if err != nil {
		return nil, err
	}
	return ParseTable(data)
}

func (v *Validator) writeCache(t *Table) error {
	if v.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(v.cacheDir, 0o755); err != nil {
		return err
	}
	data, err := t.marshal()
	if err != nil {
		return err
	}
	tmp := v.cachePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, v.cachePath())
}
