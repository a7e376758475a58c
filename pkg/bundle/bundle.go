package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestName is the archive entry holding the bundle manifest
const ManifestName = "bundle.yaml"

// Manifest describes a bundle and its artifacts
type Manifest struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string     `yaml:"author,omitempty" json:"author,omitempty"`
	License     string     `yaml:"license" json:"license"`
	Version     string     `yaml:"version" json:"version"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Homepage    string     `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Repository  string     `yaml:"repository,omitempty" json:"repository,omitempty"`
	BundleHash  string     `yaml:"bundle_hash,omitempty" json:"bundle_hash,omitempty"`
	Artifacts   []Artifact `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Signature   *Signature `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// Artifact is a single reusable item packaged in a bundle
type Artifact struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Path    string `yaml:"path" json:"path"`
	License string `yaml:"license,omitempty" json:"license,omitempty"`
}

// Signature is the detached signature recorded in a manifest
type Signature struct {
	KeyID     string `yaml:"key_id" json:"key_id"`
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Value     string `yaml:"value" json:"value"`
	SignedAt  string `yaml:"signed_at,omitempty" json:"signed_at,omitempty"`
}

// Bundle is an opened bundle archive
type Bundle struct {
	// Path is the archive location on disk
	Path string
	// Hash is the digest computed from the archive contents
	Hash string
	// Manifest is the parsed bundle.yaml
	Manifest Manifest
}

// Open validates and parses a bundle archive. The path must be an existing
// regular file containing a zip archive with a bundle.yaml at its root.
func Open(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	manifest, err := readManifest(&r.Reader)
	if err != nil {
		return nil, err
	}

	hash, err := hashArchive(&r.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	return &Bundle{
		Path:     path,
		Hash:     hash,
		Manifest: *manifest,
	}, nil
}

func readManifest(r *zip.Reader) (*Manifest, error) {
	for _, f := range r.File {
		if f.Name != ManifestName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		if m.Name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidManifest)
		}
		return &m, nil
	}

	return nil, ErrMissingManifest
}

// RecordedHash returns the digest stored in the manifest, if any
func (b *Bundle) RecordedHash() string {
	return b.Manifest.BundleHash
}

// Artifacts returns the artifacts declared in the manifest
func (b *Bundle) Artifacts() []Artifact {
	out := make([]Artifact, len(b.Manifest.Artifacts))
	copy(out, b.Manifest.Artifacts)
	return out
}

// ArtifactLicenses returns the declared license of every artifact that has one
func (b *Bundle) ArtifactLicenses() []string {
	var licenses []string
	for _, a := range b.Manifest.Artifacts {
		if a.License != "" {
			licenses = append(licenses, a.License)
		}
	}
	return licenses
}

// IsSigned reports whether the manifest carries a signature
func (b *Bundle) IsSigned() bool {
	return b.Manifest.Signature != nil && b.Manifest.Signature.Value != ""
}

// ToMap renders the manifest as a generic map, the form consumed by signers
// and verifiers.
func (b *Bundle) ToMap() map[string]any {
	return ManifestMap(b.Manifest)
}

// ManifestMap renders a manifest as a generic map
func ManifestMap(m Manifest) map[string]any {
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Walk calls fn for every archive entry except the manifest. The reader is
// only valid for the duration of the call.
func (b *Bundle) Walk(fn func(name string, r io.Reader) error) error {
	r, err := zip.OpenReader(b.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.Name == ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		err = fn(f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
