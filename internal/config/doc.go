// Package config loads the service settings from RECAP_* environment
// variables, an optional config.yaml and a local .env file, then validates
// them. Defaults cover everything except secrets and the database URL.
package config
