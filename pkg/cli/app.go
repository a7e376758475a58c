package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/config"
	"github.com/platinummonkey/skillmeat/pkg/license"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/publishing"
	"github.com/platinummonkey/skillmeat/pkg/registry"
	"github.com/platinummonkey/skillmeat/pkg/security"
	"github.com/platinummonkey/skillmeat/pkg/signing"
	"github.com/platinummonkey/skillmeat/pkg/submissions"
)

// App owns the long-lived components every command works with
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Metrics  *observability.Metrics
	Registry *registry.Registry
	Tracker  *submissions.Tracker
	Licenses *license.Validator
	Workflow *publishing.Workflow
	Out      io.Writer
}

// Option configures an App
type Option func(*appOptions)

type appOptions struct {
	out         io.Writer
	metrics     *observability.Metrics
	registryOps []registry.Option
	licenseOps  []license.Option
	scanner     security.Scanner
}

// WithOutput redirects command output, stdout by default
func WithOutput(w io.Writer) Option {
	return func(o *appOptions) {
		o.out = w
	}
}

// WithMetrics records metrics for every component
func WithMetrics(m *observability.Metrics) Option {
	return func(o *appOptions) {
		o.metrics = m
	}
}

// WithRegistryOptions passes extra options to the broker registry
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *appOptions) {
		o.registryOps = append(o.registryOps, opts...)
	}
}

// WithLicenseOptions passes extra options to the license validator
func WithLicenseOptions(opts ...license.Option) Option {
	return func(o *appOptions) {
		o.licenseOps = append(o.licenseOps, opts...)
	}
}

// WithScanner replaces the pattern scanner used before publishing
func WithScanner(s security.Scanner) Option {
	return func(o *appOptions) {
		o.scanner = s
	}
}

// NewApp wires the registry, tracker, license validator and publishing
// workflow from cfg
func NewApp(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	o := &appOptions{out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logrus.New()
	}
	if o.scanner == nil {
		o.scanner = security.NewPatternScanner(logger)
	}

	verifier := signing.NewVerifier(signing.NewKeyStore(cfg.KeysDir))
	regOpts := append([]registry.Option{
		registry.WithLogger(logger),
		registry.WithMetrics(o.metrics),
		registry.WithVerifier(verifier),
		registry.WithHTTPTimeout(cfg.HTTPTimeout),
	}, o.registryOps...)
	reg, err := registry.New(cfg.Home, regOpts...)
	if err != nil {
		return nil, err
	}

	tracker, err := submissions.NewTracker(cfg.SubmissionsDir(),
		submissions.WithLogger(logger),
		submissions.WithMetrics(o.metrics))
	if err != nil {
		reg.CloseAll()
		return nil, err
	}

	licOpts := append([]license.Option{license.WithLogger(logger)}, o.licenseOps...)
	licenses := license.NewValidator(cfg.CacheDir(), cfg.SpdxURL, licOpts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  o.metrics,
		Registry: reg,
		Tracker:  tracker,
		Licenses: licenses,
		Workflow: publishing.NewWorkflow(licenses, o.scanner, tracker,
			publishing.WithLogger(logger),
			publishing.WithMetrics(o.metrics)),
		Out: o.out,
	}, nil
}

// Close releases every broker
func (a *App) Close() error {
	if a.Registry == nil {
		return nil
	}
	return a.Registry.CloseAll()
}
