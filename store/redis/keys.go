package redis

import "github.com/zephraph/sps/door"

// All keys are prefixed with "sps:" to avoid collisions.
const keyPrefix = "sps:"

// runKey holds a run as JSON: sps:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the set of all run IDs.
const runIDsKey = keyPrefix + "run_ids"

// runsDueKey is a sorted set of non-terminal run IDs scored by the unix
// millisecond at which they become claimable.
const runsDueKey = keyPrefix + "runs:due"

// checkpointsKey is a hash of step name to checkpoint JSON for a run.
func checkpointsKey(runID string) string { return keyPrefix + "ckpt:" + runID }

// checkpointOrderKey is a sorted set of step names scored by save order.
func checkpointOrderKey(runID string) string { return keyPrefix + "ckpt_order:" + runID }

// checkpointSeqKey hands out save-order scores.
const checkpointSeqKey = keyPrefix + "ckpt_seq"

// cronKey holds a cron entry as JSON: sps:cron:{id}
func cronKey(id string) string { return keyPrefix + "cron:" + id }

// cronLockKey holds the worker ID locking a cron entry, with a TTL.
func cronLockKey(id string) string { return keyPrefix + "cron_lock:" + id }

// cronIDsKey is the set of all cron IDs.
const cronIDsKey = keyPrefix + "cron_ids"

// cronNamesKey maps cron names to IDs.
const cronNamesKey = keyPrefix + "cron_names"

// workerKey holds a worker as JSON: sps:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the set of all worker IDs.
const workerIDsKey = keyPrefix + "worker_ids"

// leaderKey stores the leader's worker ID with the lease as TTL.
const leaderKey = keyPrefix + "leader"

// snapshotKey holds serialized actor state.
func snapshotKey(key string) string { return keyPrefix + "snapshot:" + key }

// doorKey holds "1" when the door is locked and "0" when open.
const doorKey = door.StateKey
