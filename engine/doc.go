// Package engine wires the sps subsystems together on top of an
// sps.Host: the extension registry, the workflow runner and its
// middleware chain, the worker pool that resumes due runs and the cron
// scheduler that starts new ones.
//
// The root sps package defines Entity and the error kinds, which every
// subsystem imports, so it cannot import them back. Engine sits above the
// subsystems and below the host process.
//
// # Building an Engine
//
//	h, err := sps.New(
//	    sps.WithStore(pgStore),
//	    sps.WithConcurrency(4),
//	)
//
//	eng, err := engine.Build(h,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Timeout(time.Minute)),
//	)
//
// # Registering Work
//
//	engine.Register(eng, lc.Definition())
//	eng.RegisterCron(ctx, lifecycle.WeeklyTrigger())
//
// # Starting Runs
//
//	run, err := engine.Start(ctx, eng, lifecycle.WorkflowName, in)
//
// h.Start launches the pool and the scheduler; h.Stop drains them, emits
// shutdown to the extensions and closes the store.
package engine
