// Package config loads, normalizes, and validates etddepositor
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and derives the processing-tree
// subdirectory layout packages move through during a run. Always obtain
// settings through this package so downstream code receives sanitized
// paths, canonical log formats, and clear validation errors.
package config
