// Package history persists sync cycle reports in SQLite for the status API
// and CLI. It is a reporting surface only: reconciliation never consults it,
// so losing the database loses history but never content.
package history
