// Package license validates SPDX identifiers and checks whether the licenses
// of a bundle's artifacts can be combined under the bundle's own license.
//
// # Overview
//
// The SPDX license list is cached on disk as spdx-licenses.json. Load reads
// the cache, fetches the list on a miss, and falls back to a compiled-in
// table when the network is unavailable. Identifiers are classified into
// permissive, strong copyleft and weak copyleft sets.
//
// # Usage Example
//
//	v := license.NewValidator(cfg.CacheDir(), cfg.SpdxURL, license.WithLogger(logger))
//	v.Load(ctx)
//
//	if _, err := v.ValidateLicense("MIT"); err != nil {
//		return err
//	}
//	res := v.CheckCompatibility("GPL-3.0-only", []string{"MIT", "BSD-4-Clause"})
//	if err := res.Err(); err != nil {
//		return err
//	}
//
// # Related Packages
//
//   - pkg/publishing: Runs the license stage of a publish attempt
//   - pkg/bundle: Provides the bundle and artifact licenses
package license
