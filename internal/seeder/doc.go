// Package seeder supervises long-running seed processes on the curator node.
//
// One external transfer process is kept alive per seeded source path. The
// magnet address is not known at spawn time; it is discovered asynchronously
// from the process output and surfaced through polled status and a one-shot
// callback.
package seeder
