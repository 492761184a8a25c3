// Package memorystore provides the in-process sessions.Store used for
// single-instance deployments and tests. Per-session mutexes give Update the
// required per-key serialization without a global write lock; expired
// sessions are dropped lazily on access and proactively by a background
// sweeper.
package memorystore
