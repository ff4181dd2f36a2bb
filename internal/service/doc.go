// Package service contains the admission and read use cases behind the HTTP
// API. Task creation charges credits and inserts the task in one transaction
// through the credit ledger; status reads project stored task state for
// polling clients.
package service
