// Package api is the HTTP surface of the service: chi routes for task and
// avatar admission, status polling, credits and coupons, and the trigger
// endpoints an external scheduler calls to run processor batches. Handlers
// translate requests into service calls and map domain errors to status
// codes with sanitized messages.
package api
