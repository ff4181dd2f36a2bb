// Package store defines the persistence interfaces of the task queue and the
// credit ledger. The Postgres implementations live in internal/platform/postgres;
// services only see these interfaces and the transaction helpers.
package store
