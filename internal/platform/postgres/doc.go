// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. It also owns the embedded schema
// migrations and the retrying transactor used by every multi-statement write.
package postgres
