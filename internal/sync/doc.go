// Package sync turns a declarative manifest into a set of verified local
// files. The reconciler decides per item whether to skip, fetch, or
// quarantine; the scheduler drives cycles on a fixed interval or once.
package sync
