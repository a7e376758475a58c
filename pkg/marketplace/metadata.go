package marketplace

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	minTitleLength       = 5
	maxTitleLength       = 100
	minDescriptionLength = 100
	maxDescriptionLength = 5000
	maxTags              = 10
	maxScreenshots       = 5
	maxPublisherName     = 100
)

// AllowedTags is the fixed vocabulary for listing tags
var AllowedTags = map[string]bool{
	"productivity":  true,
	"development":   true,
	"testing":       true,
	"documentation": true,
	"automation":    true,
	"ai":            true,
	"data":          true,
	"security":      true,
	"devops":        true,
	"design":        true,
	"writing":       true,
	"research":      true,
	"education":     true,
	"communication": true,
	"analytics":     true,
	"integration":   true,
	"utilities":     true,
	"python":        true,
	"javascript":    true,
	"typescript":    true,
	"go":            true,
	"rust":          true,
	"web":           true,
	"cli":           true,
	"api":           true,
	"database":      true,
	"cloud":         true,
}

// PublisherMetadata identifies who is publishing
type PublisherMetadata struct {
	name     string
	email    string
	homepage string
}

// NewPublisherMetadata validates and returns publisher identity
func NewPublisherMetadata(name, email, homepage string) (*PublisherMetadata, error) {
	var violations []string

	name = strings.TrimSpace(name)
	if name == "" {
		violations = append(violations, "Publisher name is required")
	} else if utf8.RuneCountInString(name) > maxPublisherName {
		violations = append(violations, fmt.Sprintf("Publisher name too long (max %d characters)", maxPublisherName))
	}

	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		violations = append(violations, fmt.Sprintf("Invalid email address: %q", email))
	}

	if homepage != "" && !isHTTPURL(homepage) {
		violations = append(violations, "Invalid homepage URL")
	}

	if len(violations) > 0 {
		return nil, &MetadataValidationError{Violations: violations}
	}
	return &PublisherMetadata{name: name, email: email, homepage: homepage}, nil
}

func (p *PublisherMetadata) Name() string     { return p.name }
func (p *PublisherMetadata) Email() string    { return p.email }
func (p *PublisherMetadata) Homepage() string { return p.homepage }

// PublishMetadataFields is the raw form of submission metadata
type PublishMetadataFields struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	License       string   `json:"license"`
	Price         int      `json:"price"`
	Homepage      string   `json:"homepage,omitempty"`
	Repository    string   `json:"repository,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Screenshots   []string `json:"screenshots,omitempty"`
}

// PublishMetadata describes a listing being submitted
type PublishMetadata struct {
	f PublishMetadataFields
}

// NewPublishMetadata validates fields and returns immutable metadata
func NewPublishMetadata(f PublishMetadataFields) (*PublishMetadata, error) {
	m := &PublishMetadata{f: f}
	m.f.Tags = append([]string(nil), f.Tags...)
	m.f.Screenshots = append([]string(nil), f.Screenshots...)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate runs every field rule and returns a *MetadataValidationError
// listing all violations, or nil.
func (m *PublishMetadata) Validate() error {
	return ValidatePublishMetadata(m.f)
}

// ValidatePublishMetadata runs every field rule against raw fields
func ValidatePublishMetadata(f PublishMetadataFields) error {
	var v []string

	// lengths are in characters, not bytes
	title := utf8.RuneCountInString(strings.TrimSpace(f.Title))
	switch {
	case title < minTitleLength:
		v = append(v, fmt.Sprintf("Title too short (minimum %d characters)", minTitleLength))
	case title > maxTitleLength:
		v = append(v, fmt.Sprintf("Title too long (maximum %d characters)", maxTitleLength))
	}

	desc := utf8.RuneCountInString(strings.TrimSpace(f.Description))
	switch {
	case desc < minDescriptionLength:
		v = append(v, fmt.Sprintf("Description too short (minimum %d characters)", minDescriptionLength))
	case desc > maxDescriptionLength:
		v = append(v, fmt.Sprintf("Description too long (maximum %d characters)", maxDescriptionLength))
	}

	switch {
	case len(f.Tags) == 0:
		v = append(v, "At least one tag is required")
	case len(f.Tags) > maxTags:
		v = append(v, fmt.Sprintf("Too many tags (maximum %d)", maxTags))
	}
	seen := make(map[string]bool, len(f.Tags))
	for _, tag := range f.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if !AllowedTags[normalized] {
			v = append(v, fmt.Sprintf("Invalid tag: %q", tag))
		}
		if seen[normalized] {
			v = append(v, fmt.Sprintf("Duplicate tag: %q", tag))
		}
		seen[normalized] = true
	}

	if f.Price < 0 {
		v = append(v, "Price cannot be negative")
	}

	if f.Homepage != "" && !isHTTPURL(f.Homepage) {
		v = append(v, "Invalid homepage URL")
	}
	if f.Repository != "" && !isHTTPURL(f.Repository) {
		v = append(v, "Invalid repository URL")
	}
	if f.Documentation != "" && !isHTTPURL(f.Documentation) {
		v = append(v, "Invalid documentation URL")
	}

	if len(f.Screenshots) > maxScreenshots {
		v = append(v, fmt.Sprintf("Too many screenshots (maximum %d)", maxScreenshots))
	}
	for _, s := range f.Screenshots {
		if !isHTTPURL(s) {
			v = append(v, fmt.Sprintf("Invalid screenshot URL: %q", s))
		}
	}

	if len(v) > 0 {
		return &MetadataValidationError{Violations: v}
	}
	return nil
}

func (m *PublishMetadata) Title() string         { return m.f.Title }
func (m *PublishMetadata) Description() string   { return m.f.Description }
func (m *PublishMetadata) License() string       { return m.f.License }
func (m *PublishMetadata) Price() int            { return m.f.Price }
func (m *PublishMetadata) Homepage() string      { return m.f.Homepage }
func (m *PublishMetadata) Repository() string    { return m.f.Repository }
func (m *PublishMetadata) Documentation() string { return m.f.Documentation }

// Tags returns a copy of the tags
func (m *PublishMetadata) Tags() []string {
	return append([]string(nil), m.f.Tags...)
}

// Screenshots returns a copy of the screenshot URLs
func (m *PublishMetadata) Screenshots() []string {
	return append([]string(nil), m.f.Screenshots...)
}

// Fields returns a copy of the underlying fields
func (m *PublishMetadata) Fields() PublishMetadataFields {
	f := m.f
	f.Tags = m.Tags()
	f.Screenshots = m.Screenshots()
	return f
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
