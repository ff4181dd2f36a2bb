// Package middleware provides the HTTP middleware of the API: session
// authentication, the processor trigger guard and request tracing.
package middleware
