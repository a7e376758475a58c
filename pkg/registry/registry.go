package registry

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/marketplace/brokers"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

// BrokerInfo describes one configured broker entry
type BrokerInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint,omitempty"`
	Enabled  bool   `json:"enabled"`
	// Loaded is true when the entry produced a live broker
	Loaded bool `json:"loaded"`
	// Error explains why an enabled entry was skipped
	Error string `json:"error,omitempty"`
}

// Registry owns the live brokers built from marketplace.yaml. Reads take a
// shared lock; reloads build the new set off-lock and swap it in.
type Registry struct {
	path   string
	logger *logrus.Logger
	deps   brokers.Deps

	// reloadMu serializes reloads and document rewrites
	reloadMu sync.Mutex

	mu        sync.RWMutex
	providers map[string]brokers.Provider
	brokers   map[string]marketplace.Broker
	infos     map[string]BrokerInfo
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger handed to the registry and every broker
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics records broker metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) {
		r.deps.Metrics = m
	}
}

// WithVerifier sets the signature verifier used for downloads
func WithVerifier(v signing.Verifier) Option {
	return func(r *Registry) {
		r.deps.Verifier = v
	}
}

// WithHTTPTimeout bounds every broker HTTP request
func WithHTTPTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.deps.HTTPTimeout = d
	}
}

// WithTransport overrides the base HTTP transport of network brokers
func WithTransport(t http.RoundTripper) Option {
	return func(r *Registry) {
		r.deps.Transport = t
	}
}

// WithProviders replaces the built-in provider set
func WithProviders(providers map[string]brokers.Provider) Option {
	return func(r *Registry) {
		r.providers = make(map[string]brokers.Provider, len(providers))
		for k, v := range providers {
			r.providers[k] = v
		}
	}
}

// New opens the registry in configDir, writing the default document when
// none exists, and instantiates every enabled broker. Broken entries are
// skipped with a warning; a document that cannot be parsed is an error.
func New(configDir string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:      filepath.Join(configDir, ConfigFile),
		providers: brokers.DefaultProviders(),
		brokers:   make(map[string]marketplace.Broker),
		infos:     make(map[string]BrokerInfo),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.New()
	}
	r.deps.Logger = r.logger

	if err := r.ensureDocument(configDir); err != nil {
		return nil, err
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the configuration document location
func (r *Registry) Path() string {
	return r.path
}

// Get returns the live broker called name
func (r *Registry) Get(name string) (marketplace.Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.brokers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBrokerNotFound, name)
	}
	return b, nil
}

// Enabled returns every live broker sorted by name
func (r *Registry) Enabled() []marketplace.Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.brokers))
	for name := range r.brokers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]marketplace.Broker, 0, len(names))
	for _, name := range names {
		out = append(out, r.brokers[name])
	}
	return out
}

// List describes every configured entry, enabled or not, sorted by name
func (r *Registry) List() []BrokerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BrokerInfo, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterProvider adds a provider type and reloads so configured entries of
// that type come alive. It has no visible effect until marketplace.yaml
// configures an enabled entry of that type.
func (r *Registry) RegisterProvider(typ string, p brokers.Provider) error {
	if typ == "" || p == nil {
		return fmt.Errorf("%w: provider type and implementation are required", ErrBrokerRegistry)
	}

	r.mu.Lock()
	if _, exists := r.providers[typ]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: provider %s is already registered", ErrBrokerRegistry, typ)
	}
	r.providers[typ] = p
	r.mu.Unlock()

	r.logger.WithField("type", typ).Info("Registered broker provider")
	return r.Reload()
}

// UnregisterProvider removes a provider type and closes its live brokers.
// Removing an unknown type is a no-op.
func (r *Registry) UnregisterProvider(typ string) {
	var closing []marketplace.Broker

	r.mu.Lock()
	delete(r.providers, typ)
	for name, info := range r.infos {
		if info.Type != typ {
			continue
		}
		if b, ok := r.brokers[name]; ok {
			closing = append(closing, b)
			delete(r.brokers, name)
		}
		if info.Enabled {
			info.Loaded = false
			info.Error = "provider unregistered"
			r.infos[name] = info
		}
	}
	r.mu.Unlock()

	r.closeAll(closing)
}

// EnableBroker sets enabled: true for name in the document and reloads
func (r *Registry) EnableBroker(name string) error {
	return r.setEnabled(name, true)
}

// DisableBroker sets enabled: false for name in the document and reloads
func (r *Registry) DisableBroker(name string) error {
	return r.setEnabled(name, false)
}

// Reload re-reads the document and swaps in a fresh broker set. Brokers from
// the previous set are closed after the swap.
func (r *Registry) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	return r.reloadLocked()
}

// CloseAll closes every live broker and empties the registry
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	old := r.brokers
	r.brokers = make(map[string]marketplace.Broker)
	for name, info := range r.infos {
		info.Loaded = false
		r.infos[name] = info
	}
	r.mu.Unlock()

	list := make([]marketplace.Broker, 0, len(old))
	for _, b := range old {
		list = append(list, b)
	}
	return r.closeAll(list)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	root, err := readDocument(r.path)
	if err != nil {
		return err
	}
	if err := setEnabled(root, name, enabled); err != nil {
		return err
	}
	if err := writeDocument(r.path, root); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"broker":  name,
		"enabled": enabled,
	}).Info("Updated broker configuration")
	return r.reloadLocked()
}

func (r *Registry) reloadLocked() error {
	root, err := readDocument(r.path)
	if err != nil {
		return err
	}
	list, err := entries(root)
	if err != nil {
		return err
	}

	r.mu.RLock()
	providers := make(map[string]brokers.Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	live := make(map[string]marketplace.Broker)
	infos := make(map[string]BrokerInfo, len(list))
	for _, e := range list {
		info, b := r.build(e, providers)
		infos[e.name] = info
		if b != nil {
			live[e.name] = b
		}
	}

	r.mu.Lock()
	old := r.brokers
	r.brokers = live
	r.infos = infos
	r.mu.Unlock()

	stale := make([]marketplace.Broker, 0, len(old))
	for _, b := range old {
		stale = append(stale, b)
	}
	r.closeAll(stale)

	r.logger.WithField("brokers", len(live)).Debug("Loaded broker registry")
	return nil
}

// build instantiates one entry. A nil broker means the entry is disabled or
// was skipped; the reason is recorded in the info.
func (r *Registry) build(e entry, providers map[string]brokers.Provider) (BrokerInfo, marketplace.Broker) {
	info := BrokerInfo{Name: e.name, Type: e.name}
	log := r.logger.WithField("broker", e.name)

	skip := func(reason string) (BrokerInfo, marketplace.Broker) {
		info.Error = reason
		log.Warnf("Skipping broker: %s", reason)
		return info, nil
	}

	provider, ok := providers[e.name]
	if !ok {
		var enabled struct {
			Enabled  bool   `yaml:"enabled"`
			Endpoint string `yaml:"endpoint"`
		}
		// best effort, only for reporting
		_ = e.node.Decode(&enabled)
		info.Enabled = enabled.Enabled
		info.Endpoint = enabled.Endpoint
		if !info.Enabled {
			return info, nil
		}
		return skip("unknown provider type " + e.name)
	}

	cfg := provider.NewConfig()
	if err := decodeStrict(e.node, cfg); err != nil {
		return skip(fmt.Sprintf("invalid configuration: %v", err))
	}

	common := cfg.Common()
	info.Enabled = common.Enabled
	info.Endpoint = common.Endpoint
	if !common.Enabled {
		return info, nil
	}
	if common.Endpoint == "" {
		return skip("endpoint is required")
	}
	if !allowedEndpoint(common.Endpoint) {
		return skip(fmt.Sprintf("endpoint %q uses an unsupported scheme", common.Endpoint))
	}

	b, err := provider.New(e.name, cfg, r.deps)
	if err != nil {
		return skip(err.Error())
	}

	info.Loaded = true
	return info, b
}

func (r *Registry) ensureDocument(configDir string) error {
	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrBrokerRegistry, err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create %s: %v", ErrBrokerRegistry, configDir, err)
	}
	if err := writeAtomic(r.path, DefaultDocument(configDir)); err != nil {
		return err
	}
	r.logger.WithField("path", r.path).Info("Wrote default broker configuration")
	return nil
}

func (r *Registry) closeAll(list []marketplace.Broker) error {
	var errs []error
	for _, b := range list {
		if err := b.Close(); err != nil {
			r.logger.WithField("broker", b.Name()).WithError(err).Warn("Failed to close broker")
			errs = append(errs, fmt.Errorf("broker %s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}
