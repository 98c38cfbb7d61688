// Package sps runs the Side Project Saturday event lifecycle: a durable,
// time-driven workflow that announces, opens and closes a recurring weekly
// event, next to single-writer actors that own event, guest and mailing
// list state.
//
// The root package holds what every subsystem shares: the Host that owns
// the store and the background loops, its Config, the common Entity
// timestamps and the error taxonomy. Subsystems live in their own packages
// and are wired together by package engine.
//
// # Quick Start
//
//	h, err := sps.New(
//	    sps.WithStore(memory.New()),
//	    sps.WithLogger(logger),
//	)
//	eng, err := engine.Build(h, engine.WithMailer(m), engine.WithDoor(d))
//	err = eng.Start(ctx)
//
// # Error kinds
//
// User-facing failures carry a Kind so callers can tell "Event not found"
// from "Invalid guest data" without matching strings:
//
//	if sps.IsNotFound(err) { ... }
//	switch sps.KindOf(err) { case sps.KindValidation: ... }
package sps
