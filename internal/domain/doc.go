// Package domain contains the core entities of the summary service: summary
// tasks, avatar tasks, the credit ledger records and the platform statistics
// that flow through the generation pipeline. It is independent of storage and
// transport.
package domain
