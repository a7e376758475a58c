package publishing

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
	"github.com/platinummonkey/skillmeat/pkg/license"
	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/security"
	"github.com/platinummonkey/skillmeat/pkg/submissions"
)

// LicenseChecker validates bundle and artifact licenses
type LicenseChecker interface {
	ValidateLicense(id string) (*license.ValidationResult, error)
	CheckCompatibility(bundleLicense string, artifactLicenses []string) *license.CompatibilityResult
}

// SubmissionRecorder stores the result of a successful publish
type SubmissionRecorder interface {
	CreateSubmission(result *marketplace.PublishResult, bundlePath, brokerName, bundleHash string, metadata marketplace.PublishMetadataFields) (*submissions.Submission, error)
}

// CheckOptions tune CheckRequirements
type CheckOptions struct {
	// SkipSecurity bypasses the security scan and marks its gate passed
	SkipSecurity bool
}

// PublishInput describes one publish attempt
type PublishInput struct {
	BundlePath string
	Broker     marketplace.Broker
	Metadata   marketplace.PublishMetadataFields
	Publisher  *marketplace.PublisherMetadata

	SkipSecurity bool
	// RejectWarnings refuses to submit a bundle whose report has warnings
	RejectWarnings bool
}

// Workflow validates bundles and submits them to a broker
type Workflow struct {
	licenses LicenseChecker
	scanner  security.Scanner
	tracker  SubmissionRecorder
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// Option configures a Workflow
type Option func(*Workflow)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithMetrics records publish attempts
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// NewWorkflow creates a publishing workflow
func NewWorkflow(licenses LicenseChecker, scanner security.Scanner, tracker SubmissionRecorder, opts ...Option) *Workflow {
	w := &Workflow{
		licenses: licenses,
		scanner:  scanner,
		tracker:  tracker,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logrus.New()
	}
	return w
}

// CheckRequirements opens the bundle and runs the integrity, metadata,
// license and security stages. Every stage runs even when an earlier one
// fails. Only a bundle that cannot be opened returns an error, a
// *BundleValidationError.
func (w *Workflow) CheckRequirements(ctx context.Context, bundlePath string, meta marketplace.PublishMetadataFields, opts CheckOptions) (*ValidationReport, *bundle.Bundle, error) {
	report := &ValidationReport{}

	b, err := w.prepare(ctx, bundlePath)
	if err != nil {
		report.AddError(err.Error())
		return report, nil, &BundleValidationError{Path: bundlePath, Errors: report.Errors}
	}

	w.stage(ctx, "integrity", report, func(context.Context) { w.checkIntegrity(b, report) })
	w.stage(ctx, "metadata", report, func(context.Context) { w.checkMetadata(meta, report) })
	w.stage(ctx, "license", report, func(context.Context) { w.checkLicense(b, meta, report) })
	w.stage(ctx, "security", report, func(ctx context.Context) { w.checkSecurity(ctx, b, opts, report) })

	return report, b, nil
}

// Publish validates the bundle and, when the report passes, submits it to
// the broker and starts tracking the submission. The broker is not
// contacted for a failed report.
func (w *Workflow) Publish(ctx context.Context, in PublishInput) (*submissions.Submission, *ValidationReport, error) {
	if in.Broker == nil {
		return nil, nil, errors.New("a broker is required")
	}
	logger := w.logger.WithFields(logrus.Fields{
		"broker": in.Broker.Name(),
		"bundle": in.BundlePath,
	})

	report, b, err := w.CheckRequirements(ctx, in.BundlePath, in.Metadata, CheckOptions{SkipSecurity: in.SkipSecurity})
	if err != nil {
		w.metrics.PublishAttempt("invalid")
		return nil, report, err
	}
	if !report.Passed() {
		w.metrics.PublishAttempt("invalid")
		logger.WithField("errors", len(report.Errors)).Warn("Bundle failed validation")
		return nil, report, &BundleValidationError{Path: in.BundlePath, Errors: report.Errors, Report: report}
	}
	if in.RejectWarnings && len(report.Warnings) > 0 {
		w.metrics.PublishAttempt("declined")
		return nil, report, &BundleValidationError{Path: in.BundlePath, Errors: report.Warnings, Report: report}
	}

	meta, err := marketplace.NewPublishMetadata(in.Metadata)
	if err != nil {
		w.metrics.PublishAttempt("invalid")
		return nil, report, err
	}

	ctx, span := observability.StartSpan(ctx, "publishing.submit",
		trace.WithAttributes(attribute.String("broker", in.Broker.Name())))
	result, err := in.Broker.Publish(ctx, b, &marketplace.PublishRequest{Metadata: meta, Publisher: in.Publisher})
	observability.EndSpan(span, err)
	if err != nil {
		w.metrics.PublishAttempt("failed")
		logger.WithError(err).Error("Broker refused bundle")
		return nil, report, err
	}

	sub, err := w.tracker.CreateSubmission(result, b.Path, in.Broker.Name(), b.Hash, in.Metadata)
	if err != nil {
		w.metrics.PublishAttempt("failed")
		return nil, report, err
	}

	w.metrics.PublishAttempt("submitted")
	logger.WithFields(logrus.Fields{
		"submission": sub.ID,
		"status":     sub.Status,
	}).Info("Bundle submitted")
	return sub, report, nil
}

func (w *Workflow) prepare(ctx context.Context, bundlePath string) (*bundle.Bundle, error) {
	_, span := observability.StartSpan(ctx, "publishing.prepare")
	b, err := bundle.Open(bundlePath)
	observability.EndSpan(span, err)
	return b, err
}

// stage runs fn inside a span and records how many errors it added
func (w *Workflow) stage(ctx context.Context, name string, report *ValidationReport, fn func(context.Context)) {
	ctx, span := observability.StartSpan(ctx, "publishing."+name)
	before := len(report.Errors)
	fn(ctx)

	added := len(report.Errors) - before
	span.SetAttributes(attribute.Int("errors", added))
	var err error
	if added > 0 {
		err = fmt.Errorf("%s stage recorded %d errors", name, added)
	}
	observability.EndSpan(span, err)
}

func (w *Workflow) checkIntegrity(b *bundle.Bundle, report *ValidationReport) {
	recorded := b.RecordedHash()
	switch {
	case recorded == "":
		report.AddWarning("Bundle has no recorded content digest; integrity cannot be confirmed")
		report.BundleValidated = true
	case recorded != b.Hash:
		report.AddError(fmt.Sprintf("Bundle digest mismatch: recorded %s, computed %s",
			bundle.ShortHash(recorded), bundle.ShortHash(b.Hash)))
	default:
		report.BundleValidated = true
	}
}

func (w *Workflow) checkMetadata(meta marketplace.PublishMetadataFields, report *ValidationReport) {
	err := marketplace.ValidatePublishMetadata(meta)
	if err == nil {
		report.MetadataValidated = true
		return
	}

	var mve *marketplace.MetadataValidationError
	if errors.As(err, &mve) {
		for _, v := range mve.Violations {
			report.AddError(v)
		}
		return
	}
	report.AddError(err.Error())
}

func (w *Workflow) checkLicense(b *bundle.Bundle, meta marketplace.PublishMetadataFields, report *ValidationReport) {
	before := len(report.Errors)

	declared := b.Manifest.License
	if declared == "" {
		declared = meta.License
	} else if meta.License != "" && meta.License != declared {
		report.AddWarning(fmt.Sprintf("Listing license %s differs from bundle license %s", meta.License, declared))
	}

	res, err := w.licenses.ValidateLicense(declared)
	if err != nil {
		report.AddError(err.Error())
	} else {
		for _, warning := range res.Warnings {
			report.AddWarning(warning)
		}
	}

	compat := w.licenses.CheckCompatibility(declared, b.ArtifactLicenses())
	for _, e := range compat.Errors {
		report.AddError(e)
	}
	for _, warning := range compat.Warnings {
		report.AddWarning(warning)
	}

	report.LicenseValidated = len(report.Errors) == before
}

func (w *Workflow) checkSecurity(ctx context.Context, b *bundle.Bundle, opts CheckOptions, report *ValidationReport) {
	if opts.SkipSecurity {
		w.logger.WithField("bundle", b.Path).Warn("SECURITY SCAN SKIPPED: bundle contents were not inspected for secrets or dangerous operations")
		report.SecurityValidated = true
		return
	}

	res, err := w.scanner.ScanBundle(ctx, b, b.Path)
	if err != nil {
		report.AddError(fmt.Sprintf("Security scan failed: %v", err))
		return
	}
	for _, v := range res.Violations {
		report.AddError(v)
	}
	for _, warning := range res.Warnings {
		report.AddWarning(warning)
	}
	report.SecurityValidated = res.Passed && len(res.Violations) == 0
}
