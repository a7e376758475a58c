// Package publishing validates a bundle and submits it to a marketplace.
//
// # Overview
//
// A publish attempt runs these stages in order, each one feeding a single
// ValidationReport:
//
//  1. prepare: open the bundle archive
//  2. integrity: compare the recorded content digest with the computed one
//  3. metadata: apply every PublishMetadata rule
//  4. license: validate the bundle license and artifact compatibility
//  5. security: scan archive entries for secrets and risky operations
//
// CheckRequirements always runs stages 2 to 5 so one call reports every
// problem. Publish refuses to contact the broker unless the report passed,
// then records the broker's response with the submission tracker.
//
// # Usage Example
//
//	wf := publishing.NewWorkflow(validator, security.NewPatternScanner(logger), tracker,
//		publishing.WithLogger(logger))
//	sub, report, err := wf.Publish(ctx, publishing.PublishInput{
//		BundlePath: "review-kit.zip",
//		Broker:     broker,
//		Metadata:   meta,
//		Publisher:  publisher,
//	})
//	if err != nil {
//		fmt.Println(report.Summary())
//		return err
//	}
//
// # Related Packages
//
//   - pkg/license: License validation and compatibility
//   - pkg/security: Bundle content scanner
//   - pkg/submissions: Tracks the submission after a successful publish
package publishing
