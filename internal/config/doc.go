// Package config loads, normalizes, and validates vidscale configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSCALE_INFERENCE_COMMAND. The Config type centralizes the workspace,
// artifact directory, media tool binaries, and collaborator commands so the
// coordinating process and its workers agree on one set of settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
