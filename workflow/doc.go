// Package workflow runs durable, multi-step functions.
//
// A workflow is an ordinary Go function that calls named steps on a
// [Workflow]. Every completed step is checkpointed. When a run resumes,
// in the same process or a different one, the function executes again
// from the top and completed steps return their saved result without
// running their effect a second time.
//
//	var Greet = workflow.NewWorkflow("greet", func(wf *workflow.Workflow, in Input) error {
//	    if err := wf.Do("send-hello", func(ctx context.Context) error {
//	        return mailer.Send(ctx, in.To, "hello")
//	    }); err != nil {
//	        return err
//	    }
//	    if err := wf.Sleep("wait-a-day", 24*time.Hour); err != nil {
//	        return err
//	    }
//	    return wf.Do("send-follow-up", func(ctx context.Context) error {
//	        return mailer.Send(ctx, in.To, "still there?")
//	    })
//	})
//
// # Suspension
//
// Sleeps do not block. The first time a sleep is reached its absolute
// wake-up instant is checkpointed; if that instant is in the future the
// run is persisted as sleeping and the handler returns. A worker that
// later claims the run (see [Runner.ClaimDue]) replays it and passes
// through the sleep once the instant has gone by.
//
// A failing Do step is not checkpointed. The run sleeps for a backoff
// delay and the step is attempted again on the next replay, up to the
// runner's attempt limit.
//
// # State machine
//
//	running  → sleeping → running → ... → completed
//	running  → failed     (attempts exhausted or handler error)
//	running  → canceled   (cancel observed at a step boundary)
//	sleeping → canceled
package workflow
