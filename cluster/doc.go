// Package cluster tracks the sps processes sharing one store and elects
// a leader among them.
//
// Every process registers a [Worker] and heartbeats while it runs. One
// worker at a time holds a time-limited leadership lease; only the
// leader fires cron entries, so the weekly event workflow is started
// exactly once even when several hosts run. Workflow runs themselves
// need no leader: runs are claimed individually under their own lease.
package cluster
