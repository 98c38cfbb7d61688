// Package cron fires recurring workflow runs.
//
// Entries live in the store and are fired only by the cluster leader, so
// a schedule fires once per tick even with several sps processes running.
// Each [Entry] names the workflow to start; its input is either the
// static Payload or, for registered [Definition]s, computed from the
// firing time.
//
// The weekly event entry runs every Monday at 14:00 UTC and starts the
// event-management workflow for the following Saturday.
package cron
