// Package cli implements the skillmeat-market command-line interface.
//
// # Overview
//
// Every command works on an App, which owns the broker registry, the
// submission tracker, the license validator and the publishing workflow for
// one SKILLMEAT_HOME directory.
//
// # Commands
//
// listings: List bundles, fanning out to every enabled broker unless one is named
//
//	skillmeat-market listings -filter tag=python -page-size 50
//	skillmeat-market listings -broker skillmeat -json
//
// download: Download and verify a bundle
//
//	skillmeat-market download -broker skillmeat -id python-toolkit -dir ./bundles
//
// publish: Validate and submit a bundle
//
//	skillmeat-market publish \
//		-broker skillmeat \
//		-bundle ./review-kit.zip \
//		-title "Code Review Kit" \
//		-description "..." \
//		-tags development,testing \
//		-license MIT \
//		-publisher Acme -email dev@acme.test
//
// status: Show or poll submissions
//
//	skillmeat-market status
//	skillmeat-market status -id sub-42 -poll
//
// brokers: Manage marketplace.yaml
//
//	skillmeat-market brokers list
//	skillmeat-market brokers enable claudehub
//
// cleanup: Prune old approved and rejected submissions
//
//	skillmeat-market cleanup -days 30
//
// # Related Packages
//
//   - pkg/registry: Broker configuration
//   - pkg/publishing: Publish workflow
//   - pkg/submissions: Submission tracking
package cli
