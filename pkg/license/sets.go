package license

// Category classifies a license for compatibility checks
type Category string

const (
	CategoryPermissive     Category = "permissive"
	CategoryStrongCopyleft Category = "strong-copyleft"
	CategoryWeakCopyleft   Category = "weak-copyleft"
	// CategoryOther covers identifiers outside the three fixed sets
	CategoryOther Category = "other"
)

// Permissive licenses impose no obligations on derived bundles
var Permissive = setOf(
	"0BSD", "Apache-1.1", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause",
	"BSD-4-Clause", "BSL-1.0", "CC0-1.0", "ISC", "MIT", "MIT-0",
	"PostgreSQL", "Python-2.0", "Unlicense", "X11", "Zlib",
)

// StrongCopyleft licenses propagate to the whole bundle
var StrongCopyleft = setOf(
	"AGPL-3.0", "AGPL-3.0-only", "AGPL-3.0-or-later",
	"GPL-2.0", "GPL-2.0-only", "GPL-2.0-or-later",
	"GPL-3.0", "GPL-3.0-only", "GPL-3.0-or-later",
)

// WeakCopyleft licenses apply per file or per library
var WeakCopyleft = setOf(
	"CDDL-1.0", "EPL-1.0", "EPL-2.0", "MPL-2.0",
	"LGPL-2.1", "LGPL-2.1-only", "LGPL-2.1-or-later",
	"LGPL-3.0", "LGPL-3.0-only", "LGPL-3.0-or-later",
)

// GPLCompatiblePermissive are the permissive licenses that may be combined
// into a strong copyleft bundle
var GPLCompatiblePermissive = setOf(
	"0BSD", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause", "BSL-1.0",
	"CC0-1.0", "ISC", "MIT", "MIT-0", "PostgreSQL", "Python-2.0",
	"Unlicense", "X11", "Zlib",
)

// Classify returns the category of a canonical SPDX identifier
func Classify(id string) Category {
	switch {
	case Permissive[id]:
		return CategoryPermissive
	case StrongCopyleft[id]:
		return CategoryStrongCopyleft
	case WeakCopyleft[id]:
		return CategoryWeakCopyleft
	default:
		return CategoryOther
	}
}

// GPLCompatible reports whether id may appear inside a strong copyleft bundle
func GPLCompatible(id string) bool {
	return StrongCopyleft[id] || WeakCopyleft[id] || GPLCompatiblePermissive[id]
}

func setOf(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
