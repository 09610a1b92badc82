// Package config loads, normalizes, and validates proxima configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: socket locations, the mesh interface bring-up steps,
// routing daemon supervision, channel limits, history and metrics.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
