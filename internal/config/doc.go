// Package config loads, normalizes, and validates FileDrop configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FILEDROP_API_KEY. The Config type centralizes every knob the producer daemon,
// the collector, and the CLI need.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, endpoint defaults, and clear validation errors.
package config
