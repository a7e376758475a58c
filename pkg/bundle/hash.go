package bundle

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
)

// HashPrefix is prepended to every rendered digest
const HashPrefix = "sha256:"

// ComputeHash recomputes the content digest of the archive at path
func ComputeHash(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	return hashArchive(&r.Reader)
}

func hashArchive(r *zip.Reader) (string, error) {
	files := make(map[string]*zip.File)
	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.Name == ManifestName {
			continue
		}
		files[f.Name] = f
		names = append(names, f.Name)
	}
	sort.Strings(names)

	d := newDigest()
	for _, name := range names {
		rc, err := files[name].Open()
		if err != nil {
			return "", err
		}
		err = d.add(name, rc)
		rc.Close()
		if err != nil {
			return "", err
		}
	}
	return d.sum(), nil
}

// hashFiles computes the digest of in-memory entries using the same layout
// as hashArchive.
func hashFiles(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		if name == ManifestName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	d := newDigest()
	for _, name := range names {
		d.h.Write([]byte(name))
		d.h.Write([]byte{0})
		d.h.Write(files[name])
		d.h.Write([]byte{0})
	}
	return d.sum()
}

type digest struct {
	h hash.Hash
}

func newDigest() *digest {
	return &digest{h: sha256.New()}
}

func (d *digest) add(name string, r io.Reader) error {
	d.h.Write([]byte(name))
	d.h.Write([]byte{0})
	if _, err := io.Copy(d.h, r); err != nil {
		return err
	}
	d.h.Write([]byte{0})
	return nil
}

func (d *digest) sum() string {
	return HashPrefix + hex.EncodeToString(d.h.Sum(nil))
}

// ShortHash truncates a digest for display in error messages
func ShortHash(h string) string {
	const n = 12
	body := h
	prefix := ""
	if len(h) > len(HashPrefix) && h[:len(HashPrefix)] == HashPrefix {
		prefix = HashPrefix
		body = h[len(HashPrefix):]
	}
	if len(body) <= n {
		return prefix + body
	}
	return prefix + body[:n] + "..."
}
