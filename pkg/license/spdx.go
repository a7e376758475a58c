package license

import (
	"encoding/json"
	"fmt"
	"strings"
)

// License is one SPDX list entry
type License struct {
	ID          string `json:"licenseId"`
	Name        string `json:"name"`
	Deprecated  bool   `json:"isDeprecatedLicenseId"`
	OSIApproved bool   `json:"isOsiApproved"`
}

// Table is an SPDX license list indexed by identifier
type Table struct {
	Version  string
	Licenses map[string]License

	lower map[string]string
}

// spdxDocument is the license-list-data JSON shape
type spdxDocument struct {
	Version  string    `json:"licenseListVersion"`
	Licenses []License `json:"licenses"`
}

// ParseTable decodes the SPDX license-list-data JSON format
func ParseTable(data []byte) (*Table, error) {
	var doc spdxDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed SPDX license list: %w", err)
	}
	if len(doc.Licenses) == 0 {
		return nil, fmt.Errorf("SPDX license list is empty")
	}
	return newTable(doc.Version, doc.Licenses), nil
}

func newTable(version string, licenses []License) *Table {
	t := &Table{
		Version:  version,
		Licenses: make(map[string]License, len(licenses)),
		lower:    make(map[string]string, len(licenses)),
	}
	for _, l := range licenses {
		if l.ID == "" {
			continue
		}
		t.Licenses[l.ID] = l
		t.lower[strings.ToLower(l.ID)] = l.ID
	}
	return t
}

// Lookup finds a license by identifier, ignoring case as SPDX allows
func (t *Table) Lookup(id string) (License, bool) {
	if l, ok := t.Licenses[id]; ok {
		return l, true
	}
	canonical, ok := t.lower[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return License{}, false
	}
	return t.Licenses[canonical], true
}

// Len returns the number of identifiers in the table
func (t *Table) Len() int {
	return len(t.Licenses)
}

// marshal renders the table in the license-list-data shape
func (t *Table) marshal() ([]byte, error) {
	doc := spdxDocument{Version: t.Version, Licenses: make([]License, 0, len(t.Licenses))}
	for _, l := range t.Licenses {
		doc.Licenses = append(doc.Licenses, l)
	}
	return json.Marshal(doc)
}

// builtinVersion labels the compiled-in fallback table
const builtinVersion = "builtin"

// BuiltinTable is used when neither the disk cache nor the network is
// available. It covers every classified identifier plus common unclassified
// ones.
func BuiltinTable() *Table {
	return newTable(builtinVersion, []License{
		{ID: "0BSD", Name: "BSD Zero Clause License", OSIApproved: true},
		{ID: "Apache-1.1", Name: "Apache License 1.1", OSIApproved: true},
		{ID: "Apache-2.0", Name: "Apache License 2.0", OSIApproved: true},
		{ID: "Artistic-2.0", Name: "Artistic License 2.0", OSIApproved: true},
		{ID: "BSD-2-Clause", Name: `BSD 2-Clause "Simplified" License`, OSIApproved: true},
		{ID: "BSD-3-Clause", Name: `BSD 3-Clause "New" or "Revised" License`, OSIApproved: true},
		{ID: "BSD-4-Clause", Name: `BSD 4-Clause "Original" or "Old" License`},
		{ID: "BSL-1.0", Name: "Boost Software License 1.0", OSIApproved: true},
		{ID: "BUSL-1.1", Name: "Business Source License 1.1"},
		{ID: "CC-BY-4.0", Name: "Creative Commons Attribution 4.0 International"},
		{ID: "CC-BY-NC-4.0", Name: "Creative Commons Attribution Non Commercial 4.0 International"},
		{ID: "CC-BY-SA-4.0", Name: "Creative Commons Attribution Share Alike 4.0 International"},
		{ID: "CC0-1.0", Name: "Creative Commons Zero v1.0 Universal"},
		{ID: "CDDL-1.0", Name: "Common Development and Distribution License 1.0", OSIApproved: true},
		{ID: "EPL-1.0", Name: "Eclipse Public License 1.0", OSIApproved: true},
		{ID: "EPL-2.0", Name: "Eclipse Public License 2.0", OSIApproved: true},
		{ID: "ISC", Name: "ISC License", OSIApproved: true},
		{ID: "MIT", Name: "MIT License", OSIApproved: true},
		{ID: "MIT-0", Name: "MIT No Attribution", OSIApproved: true},
		{ID: "MPL-2.0", Name: "Mozilla Public License 2.0", OSIApproved: true},
		{ID: "PostgreSQL", Name: "PostgreSQL License", OSIApproved: true},
		{ID: "Python-2.0", Name: "Python License 2.0", OSIApproved: true},
		{ID: "SSPL-1.0", Name: "Server Side Public License, v 1"},
		{ID: "Unlicense", Name: "The Unlicense", OSIApproved: true},
		{ID: "X11", Name: "X11 License"},
		{ID: "Zlib", Name: "zlib License", OSIApproved: true},

		{ID: "AGPL-3.0", Name: "GNU Affero General Public License v3.0", Deprecated: true, OSIApproved: true},
		{ID: "AGPL-3.0-only", Name: "GNU Affero General Public License v3.0 only", OSIApproved: true},
		{ID: "AGPL-3.0-or-later", Name: "GNU Affero General Public License v3.0 or later", OSIApproved: true},
		{ID: "GPL-2.0", Name: "GNU General Public License v2.0 only", Deprecated: true, OSIApproved: true},
		{ID: "GPL-2.0-only", Name: "GNU General Public License v2.0 only", OSIApproved: true},
		{ID: "GPL-2.0-or-later", Name: "GNU General Public License v2.0 or later", OSIApproved: true},
		{ID: "GPL-3.0", Name: "GNU General Public License v3.0 only", Deprecated: true, OSIApproved: true},
		{ID: "GPL-3.0-only", Name: "GNU General Public License v3.0 only", OSIApproved: true},
		{ID: "GPL-3.0-or-later", Name: "GNU General Public License v3.0 or later", OSIApproved: true},
		{ID: "LGPL-2.1", Name: "GNU Lesser General Public License v2.1 only", Deprecated: true, OSIApproved: true},
		{ID: "LGPL-2.1-only", Name: "GNU Lesser General Public License v2.1 only", OSIApproved: true},
		{ID: "LGPL-2.1-or-later", Name: "GNU Lesser General Public License v2.1 or later", OSIApproved: true},
		{ID: "LGPL-3.0", Name: "GNU Lesser General Public License v3.0 only", Deprecated: true, OSIApproved: true},
		{ID: "LGPL-3.0-only", Name: "GNU Lesser General Public License v3.0 only", OSIApproved: true},
		{ID: "LGPL-3.0-or-later", Name: "GNU Lesser General Public License v3.0 or later", OSIApproved: true},
	})
}
