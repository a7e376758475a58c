package brokers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

var errMissingItems = errors.New("response has no listings array")

// SkillMeatFormat is the generic wire shape: {listings: [...], total_pages}
type SkillMeatFormat struct{}

func (SkillMeatFormat) ParsePage(body []byte) ([]json.RawMessage, int, error) {
	return parseEnvelope(body, "listings", "total_pages")
}

func (SkillMeatFormat) ParseListing(raw json.RawMessage) (marketplace.ListingFields, error) {
	var f marketplace.ListingFields
	err := json.Unmarshal(raw, &f)
	return f, err
}

// ClaudeHubFormat decodes the ClaudeHub catalog: {items: [...], pages}
type ClaudeHubFormat struct{}

type claudeHubItem struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Author struct {
		Name string `json:"name"`
	} `json:"author"`
	License     string   `json:"license"`
	Artifacts   int      `json:"artifacts"`
	PriceCents  int      `json:"price_cents"`
	Signature   string   `json:"signature"`
	URL         string   `json:"url"`
	DownloadURL string   `json:"download_url"`
	SHA256      string   `json:"sha256"`
	Tags        []string `json:"tags"`
	Summary     string   `json:"summary"`
	Version     string   `json:"version"`
	Homepage    string   `json:"homepage"`
	Repo        string   `json:"repo"`
	Installs    int      `json:"installs"`
	Stars       *float64 `json:"stars"`
}

func (ClaudeHubFormat) ParsePage(body []byte) ([]json.RawMessage, int, error) {
	return parseEnvelope(body, "items", "pages")
}

func (ClaudeHubFormat) ParseListing(raw json.RawMessage) (marketplace.ListingFields, error) {
	var item claudeHubItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return marketplace.ListingFields{}, err
	}
	return marketplace.ListingFields{
		ListingID:     item.Slug,
		Name:          item.Title,
		Publisher:     item.Author.Name,
		License:       item.License,
		ArtifactCount: item.Artifacts,
		Price:         item.PriceCents,
		Signature:     item.Signature,
		SourceURL:     item.URL,
		BundleURL:     item.DownloadURL,
		BundleHash:    item.SHA256,
		Tags:          item.Tags,
		Description:   item.Summary,
		Version:       item.Version,
		Homepage:      item.Homepage,
		Repository:    item.Repo,
		Downloads:     item.Installs,
		Rating:        item.Stars,
	}, nil
}

// SchemaFormat renames a provider's native field names to listing fields
// before decoding. With no mapping it behaves like SkillMeatFormat.
type SchemaFormat struct {
	mu     sync.RWMutex
	fields map[string]string
}

// SetFields installs a listing field to native field mapping. The keys
// "listings" and "total_pages" rename the page envelope.
func (s *SchemaFormat) SetFields(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string]string, len(fields))
	for k, v := range fields {
		s.fields[k] = v
	}
}

// Loaded reports whether a mapping is installed
func (s *SchemaFormat) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields != nil
}

func (s *SchemaFormat) native(field string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.fields[field]; ok && n != "" {
		return n
	}
	return field
}

func (s *SchemaFormat) ParsePage(body []byte) ([]json.RawMessage, int, error) {
	return parseEnvelope(body, s.native("listings"), s.native("total_pages"))
}

func (s *SchemaFormat) ParseListing(raw json.RawMessage) (marketplace.ListingFields, error) {
	var f marketplace.ListingFields

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return f, err
	}

	s.mu.RLock()
	renamed := make(map[string]json.RawMessage, len(obj))
	mapped := make(map[string]bool, len(s.fields))
	for canonical, native := range s.fields {
		if v, ok := obj[native]; ok {
			renamed[canonical] = v
			mapped[native] = true
		}
	}
	s.mu.RUnlock()

	for k, v := range obj {
		if _, taken := renamed[k]; taken || mapped[k] {
			continue
		}
		renamed[k] = v
	}

	data, err := json.Marshal(renamed)
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(data, &f)
	return f, err
}

func parseEnvelope(body []byte, itemsKey, pagesKey string) ([]json.RawMessage, int, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, err
	}

	rawItems, ok := env[itemsKey]
	if !ok {
		return nil, 0, fmt.Errorf("%w (%q)", errMissingItems, itemsKey)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, 0, fmt.Errorf("%q: %w", itemsKey, err)
	}

	totalPages := 1
	if rawPages, ok := env[pagesKey]; ok {
		if err := json.Unmarshal(rawPages, &totalPages); err != nil {
			return nil, 0, fmt.Errorf("%q: %w", pagesKey, err)
		}
	}
	if totalPages < 1 {
		totalPages = 1
	}
	return items, totalPages, nil
}
