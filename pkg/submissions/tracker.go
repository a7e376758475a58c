package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/observability"
)

// FileName is the submission table inside the tracker directory
const FileName = "submissions.json"

// fileVersion is the only table layout understood
const fileVersion = 1

type table struct {
	Version     int           `json:"version"`
	Submissions []*Submission `json:"submissions"`
}

// Tracker persists submissions in a JSON file. Every mutation rewrites the
// whole file under a mutex.
type Tracker struct {
	path    string
	logger  *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithMetrics records pruned submissions
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker storing its table in dir
func NewTracker(dir string, opts ...Option) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, trackingError("cannot create %s: %v", dir, err)
	}
	t := &Tracker{
		path: filepath.Join(dir, FileName),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logrus.New()
	}
	return t, nil
}

// Path returns the table location
func (t *Tracker) Path() string {
	return t.path
}

// CreateSubmission records the result of a successful Broker.Publish
func (t *Tracker) CreateSubmission(result *marketplace.PublishResult, bundlePath, brokerName, bundleHash string, metadata marketplace.PublishMetadataFields) (*Submission, error) {
	if result == nil {
		return nil, trackingError("publish result is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, err := t.load()
	if err != nil {
		return nil, err
	}
	if find(tbl, result.SubmissionID()) != nil {
		return nil, trackingError("submission %s is already tracked", result.SubmissionID())
	}

	now := t.now().UTC()
	sub := &Submission{
		ID:          result.SubmissionID(),
		BundlePath:  bundlePath,
		BrokerName:  brokerName,
		Status:      fromPublishStatus(result.Status()),
		BundleHash:  bundleHash,
		Metadata:    metadata,
		SubmittedAt: now,
		UpdatedAt:   now,
		ListingURL:  result.ListingURL(),
		Errors:      result.Errors(),
		Warnings:    result.Warnings(),
	}
	if sub.IsTerminal() {
		sub.ReviewedAt = &now
		sub.Feedback = result.Message()
	}
	sub = sub.clone()

	tbl.Submissions = append(tbl.Submissions, sub)
	if err := t.save(tbl); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"submission": sub.ID,
		"broker":     brokerName,
		"status":     sub.Status,
	}).Info("Tracking submission")
	return sub.clone(), nil
}

// Get returns a copy of one submission
func (t *Tracker) Get(id string) (*Submission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, err := t.load()
	if err != nil {
		return nil, err
	}
	sub := find(tbl, id)
	if sub == nil {
		return nil, notFound(id)
	}
	return sub.clone(), nil
}

// List returns copies of the matching submissions, newest first
func (t *Tracker) List(filter Filter) ([]*Submission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, err := t.load()
	if err != nil {
		return nil, err
	}

	out := make([]*Submission, 0, len(tbl.Submissions))
	for _, sub := range tbl.Submissions {
		if filter.match(sub) {
			out = append(out, sub.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

// UpdateStatus moves a submission to status and merges opts. Every accepted
// update bumps updated_at; reviewed_at is set on the first terminal
// transition only. A terminal submission accepts its own status again,
// anything else is ErrInvalidTransition and leaves the record, updated_at
// included, untouched.
func (t *Tracker) UpdateStatus(id string, status Status, opts UpdateOptions) (*Submission, error) {
	if !status.Valid() {
		return nil, trackingError("invalid status %q", status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, err := t.load()
	if err != nil {
		return nil, err
	}
	sub := find(tbl, id)
	if sub == nil {
		return nil, notFound(id)
	}
	if sub.IsTerminal() && status != sub.Status {
		return nil, fmt.Errorf("%w: submission %s is already %s, cannot move to %s",
			ErrInvalidTransition, id, sub.Status, status)
	}

	now := t.now().UTC()
	previous := sub.Status
	sub.Status = status
	sub.UpdatedAt = now
	if status.IsTerminal() && sub.ReviewedAt == nil {
		sub.ReviewedAt = &now
	}
	if opts.Feedback != "" {
		sub.Feedback = opts.Feedback
	}
	if opts.ListingURL != "" {
		sub.ListingURL = opts.ListingURL
	}
	if len(opts.Errors) > 0 {
		sub.Errors = append([]string(nil), opts.Errors...)
	}
	if len(opts.Warnings) > 0 {
		sub.Warnings = append([]string(nil), opts.Warnings...)
	}

	if err := t.save(tbl); err != nil {
		return nil, err
	}

	if previous != status {
		t.logger.WithFields(logrus.Fields{
			"submission": id,
			"from":       previous,
			"to":         status,
		}).Info("Submission status changed")
	}
	return sub.clone(), nil
}

// PollBroker refreshes a submission from its broker. Terminal submissions
// are returned as stored without contacting the broker, as are submissions
// whose broker cannot report status.
func (t *Tracker) PollBroker(ctx context.Context, id string, broker marketplace.Broker) (*Submission, error) {
	sub, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return sub, nil
	}

	checker, ok := broker.(marketplace.StatusChecker)
	if !ok {
		t.logger.WithField("broker", broker.Name()).Debug("Broker cannot report submission status")
		return sub, nil
	}

	result, err := checker.SubmissionStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	status := fromPublishStatus(result.Status())
	if status == StatusPending {
		// the provider has no verdict yet, keep any local review state
		status = sub.Status
	}
	opts := UpdateOptions{
		ListingURL: result.ListingURL(),
		Errors:     result.Errors(),
		Warnings:   result.Warnings(),
	}
	if status.IsTerminal() {
		opts.Feedback = result.Message()
	}
	return t.UpdateStatus(id, status, opts)
}

// HandleRejection returns a *SubmissionRejectedError carrying the reviewer
// feedback. It fails with ErrSubmissionTracking unless the submission is
// rejected.
func (t *Tracker) HandleRejection(id string) error {
	sub, err := t.Get(id)
	if err != nil {
		return err
	}
	if sub.Status != StatusRejected {
		return trackingError("submission %s is %s, not rejected", id, sub.Status)
	}
	return &SubmissionRejectedError{
		ID:       sub.ID,
		Broker:   sub.BrokerName,
		Feedback: sub.Feedback,
		Errors:   sub.Errors,
	}
}

// CleanupOldSubmissions deletes terminal submissions last updated more than
// days ago and returns how many were removed
func (t *Tracker) CleanupOldSubmissions(days int) (int, error) {
	if days <= 0 {
		return 0, trackingError("retention must be positive, got %d days", days)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tbl, err := t.load()
	if err != nil {
		return 0, err
	}

	cutoff := t.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	kept := tbl.Submissions[:0]
	removed := 0
	for _, sub := range tbl.Submissions {
		if sub.IsTerminal() && sub.UpdatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	if removed == 0 {
		return 0, nil
	}

	tbl.Submissions = kept
	if err := t.save(tbl); err != nil {
		return 0, err
	}
	t.metrics.SubmissionsPruned(removed)
	t.logger.WithFields(logrus.Fields{
		"removed": removed,
		"days":    days,
	}).Info("Pruned old submissions")
	return removed, nil
}

// load reads the table; a missing file is an empty table
func (t *Tracker) load() (*table, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return &table{Version: fileVersion}, nil
	}
	if err != nil {
		return nil, trackingError("cannot read %s: %v", t.path, err)
	}

	var tbl table
	if err := json.Unmarshal(data, &tbl); err != nil {
		return nil, trackingError("malformed %s: %v", t.path, err)
	}
	if tbl.Version != fileVersion {
		return nil, trackingError("unsupported submissions file version %d", tbl.Version)
	}
	return &tbl, nil
}

// save rewrites the table through a temp file and rename
func (t *Tracker) save(tbl *table) error {
	if tbl.Submissions == nil {
		tbl.Submissions = []*Submission{}
	}
	data, err := json.MarshalIndent(tbl, "", "  ")
	if err != nil {
		return trackingError("cannot encode submissions: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), "."+FileName+".*")
	if err != nil {
		return trackingError("cannot write submissions: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trackingError("cannot write submissions: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return trackingError("cannot write submissions: %v", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return trackingError("cannot write submissions: %v", err)
	}
	return nil
}

func find(tbl *table, id string) *Submission {
	for _, sub := range tbl.Submissions {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrSubmissionNotFound, id)
}
