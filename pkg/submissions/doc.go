// Package submissions tracks publish attempts from creation to a terminal
// review outcome.
//
// # Overview
//
// A Tracker keeps every Submission in <dir>/submissions.json as
// {"version": 1, "submissions": [...]}. Each mutation reads the file, applies
// the change and rewrites it atomically while holding the tracker mutex.
//
// Lifecycle:
//
//	pending -> in_review -> approved | rejected
//	                     -> revision_requested -> in_review
//
// approved and rejected are terminal. reviewed_at is set once, on the first
// terminal transition, and PollBroker never contacts the broker again for a
// terminal submission.
//
// # Usage Example
//
//	tracker, err := submissions.NewTracker(cfg.SubmissionsDir(), submissions.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	sub, err := tracker.PollBroker(ctx, id, broker)
//	if err != nil {
//		return err
//	}
//	if sub.Status == submissions.StatusRejected {
//		return tracker.HandleRejection(id)
//	}
//
// # Related Packages
//
//   - pkg/publishing: Creates submissions after a successful publish
//   - pkg/marketplace: StatusChecker lets brokers report review state
package submissions
