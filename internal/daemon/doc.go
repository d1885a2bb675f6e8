// Package daemon runs the consumer node: a single-instance background
// process that schedules reconciliation cycles and exposes a local status
// API over HTTP.
package daemon
