package license

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spdxFixture = `{
  "licenseListVersion": "3.25",
  "licenses": [
    {"licenseId": "MIT", "name": "MIT License", "isOsiApproved": true},
    {"licenseId": "Apache-2.0", "name": "Apache License 2.0", "isOsiApproved": true},
    {"licenseId": "GPL-3.0-only", "name": "GNU General Public License v3.0 only", "isOsiApproved": true},
    {"licenseId": "GPL-3.0", "name": "GNU General Public License v3.0 only", "isDeprecatedLicenseId": true}
  ]
}`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func spdxServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func builtinValidator() *Validator {
	return NewValidator("", "", WithTable(BuiltinTable()), WithLogger(quietLogger()))
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(spdxFixture))
	require.NoError(t, err)
	assert.Equal(t, "3.25", table.Version)
	assert.Equal(t, 4, table.Len())

	l, ok := table.Lookup("apache-2.0")
	require.True(t, ok)
	assert.Equal(t, "Apache-2.0", l.ID)

	_, err = ParseTable([]byte(`{"licenses": []}`))
	assert.Error(t, err)
	_, err = ParseTable([]byte(`not json`))
	assert.Error(t, err)
}

func TestValidator_Load(t *testing.T) {
	t.Run("network then cache", func(t *testing.T) {
		srv, hits := spdxServer(t, http.StatusOK, spdxFixture)
		dir := t.TempDir()

		v := NewValidator(dir, srv.URL, WithLogger(quietLogger()))
		assert.Equal(t, SourceNetwork, v.Load(context.Background()))
		assert.FileExists(t, filepath.Join(dir, CacheFile))

		again := NewValidator(dir, srv.URL, WithLogger(quietLogger()))
		assert.Equal(t, SourceCache, again.Load(context.Background()))
		assert.Equal(t, SourceCache, again.Source())
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("corrupt cache is refetched", func(t *testing.T) {
		srv, hits := spdxServer(t, http.StatusOK, spdxFixture)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFile), []byte("{"), 0o644))

		v := NewValidator(dir, srv.URL, WithLogger(quietLogger()))
		assert.Equal(t, SourceNetwork, v.Load(context.Background()))
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("fetch failure falls back to builtin", func(t *testing.T) {
		srv, _ := spdxServer(t, http.StatusInternalServerError, "boom")
		dir := t.TempDir()

		v := NewValidator(dir, srv.URL, WithLogger(quietLogger()))
		assert.Equal(t, SourceBuiltin, v.Load(context.Background()))
		assert.NoFileExists(t, filepath.Join(dir, CacheFile))

		res, err := v.ValidateLicense("BSD-3-Clause")
		require.NoError(t, err)
		assert.Equal(t, CategoryPermissive, res.Category)
	})

	t.Run("lazy load without configuration", func(t *testing.T) {
		v := NewValidator("", "", WithLogger(quietLogger()))
		_, err := v.ValidateLicense("MIT")
		require.NoError(t, err)
		assert.Equal(t, SourceBuiltin, v.Source())
	})
}

func TestValidator_RefreshKeepsTableOnFailure(t *testing.T) {
	srv, _ := spdxServer(t, http.StatusBadGateway, "")
	v := NewValidator(t.TempDir(), srv.URL, WithTable(BuiltinTable()), WithLogger(quietLogger()))

	require.Error(t, v.Refresh(context.Background()))
	_, err := v.ValidateLicense("Zlib")
	assert.NoError(t, err)
}

func TestValidateLicense(t *testing.T) {
	v := builtinValidator()

	tests := []struct {
		name         string
		id           string
		wantID       string
		wantCategory Category
		wantWarning  bool
		wantErr      bool
	}{
		{name: "permissive", id: "MIT", wantID: "MIT", wantCategory: CategoryPermissive},
		{name: "case insensitive", id: "apache-2.0", wantID: "Apache-2.0", wantCategory: CategoryPermissive},
		{name: "weak copyleft", id: "MPL-2.0", wantID: "MPL-2.0", wantCategory: CategoryWeakCopyleft},
		{name: "deprecated warns", id: "GPL-3.0", wantID: "GPL-3.0", wantCategory: CategoryStrongCopyleft, wantWarning: true},
		{name: "unclassified but known", id: "CC-BY-4.0", wantID: "CC-BY-4.0", wantCategory: CategoryOther},
		{name: "unknown", id: "Totally-Made-Up", wantErr: true},
		{name: "empty", id: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.ValidateLicense(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsLicenseValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.ID)
			assert.Equal(t, tt.wantCategory, res.Category)
			if tt.wantWarning {
				assert.NotEmpty(t, res.Warnings)
				assert.True(t, res.Deprecated)
			} else {
				assert.Empty(t, res.Warnings)
			}
		})
	}
}

func TestCheckCompatibility(t *testing.T) {
	v := builtinValidator()

	tests := []struct {
		name           string
		bundle         string
		artifacts      []string
		wantCompatible bool
		wantErrors     int
		wantWarnings   int
	}{
		{name: "permissive with permissive", bundle: "MIT", artifacts: []string{"MIT", "Apache-2.0"}, wantCompatible: true},
		{name: "gpl with gpl-compatible", bundle: "GPL-3.0-only", artifacts: []string{"MIT", "GPL-3.0-only"}, wantCompatible: true},
		{name: "permissive with strong copyleft", bundle: "MIT", artifacts: []string{"GPL-3.0-only"}, wantCompatible: true, wantWarnings: 1},
		{name: "gpl with bsd-4-clause", bundle: "GPL-3.0-only", artifacts: []string{"BSD-4-Clause"}, wantErrors: 1},
		{name: "gpl with unclassified", bundle: "GPL-2.0-or-later", artifacts: []string{"SSPL-1.0", "MPL-2.0"}, wantErrors: 1},
		{name: "weak copyleft with strong copyleft", bundle: "LGPL-2.1-only", artifacts: []string{"AGPL-3.0-only"}, wantCompatible: true, wantWarnings: 1},
		{name: "unknown artifact warns", bundle: "MIT", artifacts: []string{"LicenseRef-Acme"}, wantCompatible: true, wantWarnings: 1},
		{name: "unknown artifact under gpl warns", bundle: "GPL-3.0-only", artifacts: []string{"LicenseRef-Acme"}, wantCompatible: true, wantWarnings: 1},
		{name: "unknown bundle license", bundle: "Proprietary", artifacts: []string{"MIT"}, wantCompatible: true, wantWarnings: 1},
		{name: "empty artifact ignored", bundle: "MIT", artifacts: []string{""}, wantCompatible: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.CheckCompatibility(tt.bundle, tt.artifacts)
			assert.Equal(t, tt.wantCompatible, res.Compatible)
			assert.Len(t, res.Errors, tt.wantErrors)
			assert.Len(t, res.Warnings, tt.wantWarnings)
			if tt.wantCompatible {
				assert.NoError(t, res.Err())
			} else {
				assert.True(t, IsLicenseIncompatibleError(res.Err()))
			}
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryPermissive, Classify("BSD-4-Clause"))
	assert.False(t, GPLCompatible("BSD-4-Clause"))
	assert.False(t, GPLCompatible("Apache-1.1"))
	assert.True(t, GPLCompatible("LGPL-3.0-only"))
	assert.Equal(t, CategoryOther, Classify("BUSL-1.1"))
}
