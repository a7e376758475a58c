package brokers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// tempDirPattern names the directory created when no output dir is given
const tempDirPattern = "skillmeat-download-*"

// bundleFileName maps a listing id onto a safe archive name
func bundleFileName(listingID string) string {
	name := unsafeFileChars.ReplaceAllString(listingID, "_")
	if name == "" || name == "." || name == ".." {
		name = "bundle"
	}
	return name + ".zip"
}

// downloadTo writes a bundle through fetch into a .part file, verifies it and
// renames it into place. The partial file never survives a failure, nor does
// a temporary directory created for an empty outputDir.
func downloadTo(ctx context.Context, listing *marketplace.MarketplaceListing, outputDir string, verifier signing.Verifier, fetch func(w io.Writer) error) (string, error) {
	var (
		err     error
		tempDir bool
	)
	if outputDir == "" {
		outputDir, err = os.MkdirTemp("", tempDirPattern)
		tempDir = err == nil
	} else {
		err = os.MkdirAll(outputDir, 0o755)
	}
	if err != nil {
		return "", marketplace.NewDownloadError("cannot prepare output directory", err)
	}

	final := filepath.Join(outputDir, bundleFileName(listing.ListingID()))
	part := final + ".part"

	done := false
	defer func() {
		if done {
			return
		}
		os.Remove(part)
		if tempDir {
			os.RemoveAll(outputDir)
		}
	}()

	file, err := os.Create(part)
	if err != nil {
		return "", marketplace.NewDownloadError("cannot create "+part, err)
	}

	err = fetch(file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return "", marketplace.NewDownloadError("transfer of "+listing.ListingID()+" failed", err)
	}

	if err := verifyDownload(listing, part, verifier); err != nil {
		return "", err
	}

	if err := os.Rename(part, final); err != nil {
		return "", marketplace.NewDownloadError("cannot finalize "+final, err)
	}
	done = true
	return final, nil
}

// verifyDownload checks the digest and, for signed listings, the signature.
// The listing's advertised hash wins over the one recorded in the manifest.
func verifyDownload(listing *marketplace.MarketplaceListing, path string, verifier signing.Verifier) error {
	if !listing.IsSigned() {
		if listing.BundleHash() == "" {
			return nil
		}
		return marketplace.VerifyBundleHash(path, listing.BundleHash())
	}

	bnd, err := bundle.Open(path)
	if err != nil {
		return marketplace.NewValidationError("downloaded file is not a valid bundle: %v", err)
	}

	expected := listing.BundleHash()
	if expected == "" {
		expected = bnd.RecordedHash()
	}
	if expected != "" {
		if err := marketplace.VerifyBundleHash(path, expected); err != nil {
			return err
		}
	}

	return validateSignature(verifier, bnd)
}

func validateSignature(verifier signing.Verifier, bnd *bundle.Bundle) error {
	if bnd == nil {
		return marketplace.NewValidationError("bundle is required")
	}
	if verifier == nil {
		return marketplace.NewValidationError("no signature verifier configured")
	}

	res := verifier.VerifyBundle(bnd.Hash, bnd.ToMap(), true)
	if !res.Valid() {
		return marketplace.NewValidationError("signature %s: %s", res.Status, res.Message)
	}
	return nil
}
