// Package config loads volley run settings from CLI flags and an optional
// JSON or YAML config file, applies defaults, and validates the result
// before any dispatch cycle starts.
//
// Precedence is defaults, then config file, then explicitly changed flags.
// Validate aggregates every problem into a single ValidationError.
package config
