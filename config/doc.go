// Package config loads worker configuration.
//
// Values come from repository defaults, then an optional TOML file, then the
// environment. Variable names match the ones the GPU worker deployments
// already export (REDIS_URL, MODEL_TYPE, MAX_IDLE_SECONDS, R2_*, ...), so a
// worker can run without any file at all.
package config
