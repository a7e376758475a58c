// Package bundle reads and packs marketplace bundles.
//
// # Overview
//
// A bundle is a zip archive holding a set of artifacts plus a root
// bundle.yaml manifest. The manifest records the bundle's declared license,
// the license of every artifact, an optional content digest and an optional
// signature.
//
// # Digest
//
// The content digest covers every archive entry except bundle.yaml:
//
//	sha256( name₁ \x00 content₁ \x00 name₂ \x00 content₂ ... )
//
// with entries sorted by name, and is rendered as "sha256:<hex>".
//
// # Usage Example
//
//	b, err := bundle.Open("/tmp/python-tools.zip")
//	if err != nil {
//		return err
//	}
//	if b.RecordedHash() != "" && b.RecordedHash() != b.Hash {
//		return fmt.Errorf("bundle digest mismatch")
//	}
//
// # Related Packages
//
//   - pkg/signing: signs and verifies bundle manifests
//   - pkg/security: scans bundle entries before publishing
//   - pkg/publishing: consumes bundles in the publish workflow
package bundle
