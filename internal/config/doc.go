// Package config loads, normalizes, and validates jellysync configuration.
package config
