// Package postgres implements store.Store on PostgreSQL with pgx/v5 and
// raw SQL. Due runs are claimed with FOR UPDATE SKIP LOCKED, the cron
// leader lease is a single-row table, and the schema is managed by
// golang-migrate from SQL files embedded in the binary.
package postgres
