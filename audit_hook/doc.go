// Package audithook is an extension that turns workflow, cron and guest
// lifecycle events into audit events.
//
// Each hook builds an AuditEvent with a severity (info for normal
// progress, warning for step failures, critical for failed runs) and
// hands it to a Recorder. LogRecorder writes the trail through slog.
//
//	eng, err := engine.Build(h,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder(logger))),
//	)
//
// WithActions narrows the trail:
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionWorkflowFailed,
//	        audithook.ActionGuestPromoted,
//	    ),
//	)
package audithook
