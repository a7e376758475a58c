package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/marketplace/brokers"
)

type fakeConfig struct {
	marketplace.BrokerConfig `yaml:",inline"`
	Flavor                   string `yaml:"flavor,omitempty"`
}

func (c *fakeConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

type fakeBroker struct {
	name   string
	mu     sync.Mutex
	closed bool
}

func (b *fakeBroker) Name() string { return b.name }
func (b *fakeBroker) Listings(context.Context, marketplace.ListingQuery) (*marketplace.ListingPage, error) {
	return &marketplace.ListingPage{Broker: b.name}, nil
}
func (b *fakeBroker) Download(context.Context, string, string) (string, error) { return "", nil }
func (b *fakeBroker) Publish(context.Context, *bundle.Bundle, *marketplace.PublishRequest) (*marketplace.PublishResult, error) {
	return nil, nil
}
func (b *fakeBroker) ValidateSignature(*bundle.Bundle) error { return nil }
func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeProvider struct {
	mu      sync.Mutex
	created []*fakeBroker
}

func (p *fakeProvider) NewConfig() brokers.Config { return &fakeConfig{} }

func (p *fakeProvider) New(name string, cfg brokers.Config, deps brokers.Deps) (marketplace.Broker, error) {
	b := &fakeBroker{name: name}
	p.mu.Lock()
	p.created = append(p.created, b)
	p.mu.Unlock()
	return b, nil
}

func (p *fakeProvider) instances() []*fakeBroker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeBroker(nil), p.created...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeDoc(t *testing.T, dir, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(doc), 0o644))
}

func names(list []marketplace.Broker) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.Name())
	}
	return out
}

func TestNew_WritesDefaultDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.CloseAll()

	assert.FileExists(t, filepath.Join(dir, ConfigFile))
	assert.Equal(t, []string{"local", "skillmeat"}, names(r.Enabled()))

	infos := r.List()
	require.Len(t, infos, 4)
	byName := map[string]BrokerInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["local"].Loaded)
	assert.Equal(t, "local://"+filepath.Join(dir, "marketplace"), byName["local"].Endpoint)
	assert.False(t, byName["claudehub"].Enabled)
	assert.False(t, byName["claudehub"].Loaded)
	assert.Empty(t, byName["claudehub"].Error)
	assert.False(t, byName["custom"].Enabled)

	local, err := r.Get("local")
	require.NoError(t, err)
	assert.IsType(t, &brokers.LocalBroker{}, local)
}

func TestNew_SkipsBadEntries(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, `brokers:
  local:
    enabled: true
    endpoint: local://`+dir+`
  skillmeat:
    enabled: true
    endpoint: https://skillmeat.test
    schema_url: /schema
  custom:
    enabled: true
  claudehub:
    enabled: true
    endpoint: ftp://claudehub.test
  mystery:
    enabled: true
    endpoint: https://mystery.test
  dormant:
    enabled: false
    endpoint: https://dormant.test
`)

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.CloseAll()

	assert.Equal(t, []string{"local"}, names(r.Enabled()))

	tests := []struct {
		name    string
		wantErr string
	}{
		{name: "skillmeat", wantErr: "schema_url"},
		{name: "custom", wantErr: "endpoint is required"},
		{name: "claudehub", wantErr: "unsupported scheme"},
		{name: "mystery", wantErr: "unknown provider type"},
		{name: "dormant"},
	}
	infos := map[string]BrokerInfo{}
	for _, info := range r.List() {
		infos[info.Name] = info
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := infos[tt.name]
			require.True(t, ok)
			assert.False(t, info.Loaded)
			if tt.wantErr == "" {
				assert.Empty(t, info.Error)
				return
			}
			assert.Contains(t, info.Error, tt.wantErr)
		})
	}
}

func TestNew_MalformedDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "syntax error", doc: "brokers: [unclosed\n"},
		{name: "brokers not a mapping", doc: "brokers: 5\n"},
		{name: "document not a mapping", doc: "- local\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDoc(t, dir, tt.doc)
			_, err := New(dir, WithLogger(quietLogger()))
			require.Error(t, err)
			assert.True(t, IsBrokerRegistryError(err))
		})
	}
}

func TestNew_EmptyDocument(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "")

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, r.Enabled())
	assert.Empty(t, r.List())
}

func TestGet_NotFound(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "brokers: {}\n")

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = r.Get("skillmeat")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsBrokerRegistryError(err))
}

func TestEnableDisableBroker(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, `# user notes stay put
brokers:
  skillmeat:
    endpoint: https://skillmeat.test # primary
    enabled: true
  claudehub:
    endpoint: https://claudehub.test
`)

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.CloseAll()
	assert.Equal(t, []string{"skillmeat"}, names(r.Enabled()))

	require.NoError(t, r.DisableBroker("skillmeat"))
	_, err = r.Get("skillmeat")
	assert.True(t, IsNotFound(err))

	require.NoError(t, r.EnableBroker("claudehub"))
	assert.Equal(t, []string{"claudehub"}, names(r.Enabled()))

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "# user notes stay put")
	assert.Contains(t, doc, "# primary")
	assert.Contains(t, doc, "enabled: false")
	assert.Contains(t, doc, "enabled: true")

	err = r.EnableBroker("nope")
	require.Error(t, err)
	assert.True(t, IsBrokerRegistryError(err))
}

func TestRegisterProvider(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, `brokers:
  acme:
    enabled: true
    endpoint: https://acme.test
    flavor: vanilla
`)

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.CloseAll()

	_, err = r.Get("acme")
	require.Error(t, err)

	provider := &fakeProvider{}
	require.NoError(t, r.RegisterProvider("acme", provider))

	b, err := r.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", b.Name())

	err = r.RegisterProvider("acme", &fakeProvider{})
	require.Error(t, err)
	assert.True(t, IsBrokerRegistryError(err))

	r.UnregisterProvider("acme")
	_, err = r.Get("acme")
	assert.True(t, IsNotFound(err))
	instances := provider.instances()
	require.NotEmpty(t, instances)
	assert.True(t, instances[len(instances)-1].isClosed())

	// idempotent
	r.UnregisterProvider("acme")
}

func TestRegisterProvider_WithoutConfiguredEntry(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "brokers: {}\n")

	r, err := New(dir, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.CloseAll()

	provider := &fakeProvider{}
	require.NoError(t, r.RegisterProvider("acme", provider))

	assert.Empty(t, r.Enabled())
	assert.Empty(t, r.List())
	assert.Empty(t, provider.instances())
	_, err = r.Get("acme")
	assert.True(t, IsNotFound(err))
}

func TestReload_ClosesPreviousInstances(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, `brokers:
  acme:
    enabled: true
    endpoint: https://acme.test
`)

	provider := &fakeProvider{}
	r, err := New(dir, WithLogger(quietLogger()), WithProviders(map[string]brokers.Provider{"acme": provider}))
	require.NoError(t, err)

	require.NoError(t, r.Reload())
	instances := provider.instances()
	require.Len(t, instances, 2)
	assert.True(t, instances[0].isClosed())
	assert.False(t, instances[1].isClosed())

	require.NoError(t, r.CloseAll())
	assert.True(t, instances[1].isClosed())
	assert.Empty(t, r.Enabled())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, `brokers:
  acme:
    enabled: false
    endpoint: https://acme.test
`)

	provider := &fakeProvider{}
	r, err := New(dir, WithLogger(quietLogger()), WithProviders(map[string]brokers.Provider{"acme": provider}))
	require.NoError(t, err)
	defer r.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	writeDoc(t, dir, `brokers:
  acme:
    enabled: true
    endpoint: https://acme.test
`)

	assert.Eventually(t, func() bool {
		_, err := r.Get("acme")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShared(t *testing.T) {
	sharedMu.Lock()
	shared = nil
	sharedMu.Unlock()

	dirA := t.TempDir()
	dirB := t.TempDir()
	t.Setenv("SKILLMEAT_HOME", dirA)

	first, err := Shared("", WithLogger(quietLogger()))
	require.NoError(t, err)
	again, err := Shared("")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, filepath.Join(dirA, ConfigFile), first.Path())

	fresh, err := Shared(dirB, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, filepath.Join(dirB, ConfigFile), fresh.Path())

	latest, err := Shared("")
	require.NoError(t, err)
	assert.Same(t, fresh, latest)
}
