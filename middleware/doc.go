// Package middleware wraps the execution of workflow steps. A middleware
// sees the step being run and the next handler in the chain; it can log,
// trace, time, bound or recover the call.
//
// Only the work of a Do step passes through the chain. Checkpoint lookups
// and durable sleeps never do.
package middleware
