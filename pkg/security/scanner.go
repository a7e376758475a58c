// Package security scans bundle contents for hardcoded secrets and risky
// operations before they are published.
package security

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
)

// maxEntrySize is the largest entry that is scanned; bigger entries are
// reported as a warning and skipped.
const maxEntrySize = 4 << 20

// ScanResult is the outcome of scanning one bundle
type ScanResult struct {
	Passed         bool                `json:"passed"`
	Violations     []string            `json:"violations"`
	Warnings       []string            `json:"warnings"`
	FileViolations map[string][]string `json:"file_violations"`
}

// Scanner inspects a bundle before it is published
type Scanner interface {
	ScanBundle(ctx context.Context, b *bundle.Bundle, path string) (*ScanResult, error)
}

type rule struct {
	name        string
	pattern     *regexp.Regexp
	description string
}

var secretRules = []rule{
	{"api-key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "Potential hardcoded API key"},
	{"password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']([^"']{8,})["']`), "Potential hardcoded password"},
	{"token", regexp.MustCompile(`(?i)(token|auth[_-]?token|secret)\s*[:=]\s*["']([a-zA-Z0-9_\-]{20,})["']`), "Potential hardcoded token"},
	{"aws-key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "Potential AWS access key"},
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`), "Potential GitHub token"},
	{"private-key", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`), "Embedded private key"},
}

var suspiciousRules = []rule{
	{"path-traversal", regexp.MustCompile(`\.\./\.\./`), "Potential path traversal"},
	{"system-write", regexp.MustCompile(`(?i)(>\s*|write.*)(/etc/|/usr/|/sys/|C:\\Windows)`), "Writes to system directories"},
	{"shell-exec", regexp.MustCompile(`(?i)(sh\s+-c|bash\s+-c|cmd\.exe|powershell\s+-enc)`), "Shell command execution"},
	{"pipe-to-shell", regexp.MustCompile(`(?i)(curl|wget)[^\n|]*\|\s*(sudo\s+)?(ba)?sh`), "Downloads piped into a shell"},
	{"destructive-rm", regexp.MustCompile(`rm\s+-rf\s+(/|~|\$HOME)(\s|$)`), "Recursive delete of a root or home directory"},
}

// PatternScanner applies regular-expression rules to every archive entry
type PatternScanner struct {
	logger *logrus.Logger
}

// NewPatternScanner creates a scanner
func NewPatternScanner(logger *logrus.Logger) *PatternScanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &PatternScanner{logger: logger}
}

// ScanBundle walks every entry of the bundle at path. Secrets are violations;
// suspicious operations are warnings.
func (s *PatternScanner) ScanBundle(ctx context.Context, b *bundle.Bundle, bundlePath string) (*ScanResult, error) {
	if b == nil {
		opened, err := bundle.Open(bundlePath)
		if err != nil {
			return nil, err
		}
		b = opened
	}

	start := time.Now()
	result := &ScanResult{
		Passed:         true,
		FileViolations: make(map[string][]string),
	}

	err := b.Walk(func(name string, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if isTraversalName(name) {
			result.addViolation(name, fmt.Sprintf("%s: archive entry escapes the bundle root", name))
			return nil
		}

		data, err := io.ReadAll(io.LimitReader(r, maxEntrySize+1))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(data) > maxEntrySize {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: entry too large to scan", name))
			return nil
		}
		if isBinary(data) {
			return nil
		}

		for _, rl := range secretRules {
			if rl.pattern.Match(data) {
				result.addViolation(name, fmt.Sprintf("%s: %s", name, rl.description))
			}
		}
		for _, rl := range suspiciousRules {
			if rl.pattern.Match(data) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", name, rl.description))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("security scan failed: %w", err)
	}

	sort.Strings(result.Violations)
	sort.Strings(result.Warnings)

	s.logger.WithFields(logrus.Fields{
		"bundle":     b.Manifest.Name,
		"violations": len(result.Violations),
		"warnings":   len(result.Warnings),
	}).Infof("Security scan completed in %v", time.Since(start))

	return result, nil
}

func (r *ScanResult) addViolation(file, msg string) {
	r.Passed = false
	r.Violations = append(r.Violations, msg)
	r.FileViolations[file] = append(r.FileViolations[file], msg)
}

func isTraversalName(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	clean := path.Clean(name)
	return clean == ".." || strings.HasPrefix(clean, "../")
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
