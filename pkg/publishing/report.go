package publishing

import (
	"fmt"
	"strings"
)

// ValidationReport collects the findings of one publish attempt. Once an
// error is added the report stays failed.
type ValidationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	BundleValidated   bool `json:"bundle_validated"`
	MetadataValidated bool `json:"metadata_validated"`
	LicenseValidated  bool `json:"license_validated"`
	SecurityValidated bool `json:"security_validated"`

	failed bool
}

// AddError records a blocking problem
func (r *ValidationReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.failed = true
}

// AddWarning records a non-blocking problem
func (r *ValidationReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Passed reports whether no error has been recorded
func (r *ValidationReport) Passed() bool {
	return !r.failed
}

// Summary renders the report for humans
func (r *ValidationReport) Summary() string {
	var b strings.Builder
	if r.Passed() {
		b.WriteString("Validation passed\n")
	} else {
		b.WriteString("Validation failed\n")
	}

	gates := []struct {
		name string
		ok   bool
	}{
		{"bundle", r.BundleValidated},
		{"metadata", r.MetadataValidated},
		{"license", r.LicenseValidated},
		{"security", r.SecurityValidated},
	}
	for _, g := range gates {
		mark := "✗"
		if g.ok {
			mark = "✓"
		}
		fmt.Fprintf(&b, "  %s %s\n", mark, g.name)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings (%d):\n", len(r.Warnings))
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}
