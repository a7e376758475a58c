package bundle

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// SignFunc produces a signature for a digest and manifest
type SignFunc func(hash string, manifest map[string]any) (*Signature, error)

// PackOption configures Pack
type PackOption func(*packOptions)

type packOptions struct {
	sign SignFunc
}

// WithSigner signs the manifest after the digest has been recorded
func WithSigner(fn SignFunc) PackOption {
	return func(o *packOptions) {
		o.sign = fn
	}
}

// Pack writes a bundle archive, recording the content digest in the manifest
// and optionally signing it.
func Pack(path string, m Manifest, files map[string][]byte, opts ...PackOption) (*Bundle, error) {
	o := &packOptions{}
	for _, opt := range opts {
		opt(o)
	}

	m.BundleHash = hashFiles(files)
	m.Signature = nil

	if o.sign != nil {
		sig, err := o.sign(m.BundleHash, ManifestMap(m))
		if err != nil {
			return nil, fmt.Errorf("failed to sign bundle: %w", err)
		}
		m.Signature = sig
	}

	return Create(path, m, files)
}

// Create writes the manifest and files to a zip archive verbatim. The
// manifest's digest is written as given, which may be empty or stale.
func Create(path string, m Manifest, files map[string][]byte) (*Bundle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}

	zw := zip.NewWriter(out)

	manifestData, err := yaml.Marshal(&m)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestName, manifestData); err != nil {
		out.Close()
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		if name != ManifestName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := writeEntry(zw, name, files[name]); err != nil {
			out.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close bundle: %w", err)
	}

	return &Bundle{
		Path:     path,
		Hash:     hashFiles(files),
		Manifest: m,
	}, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
