// Package sessions defines the dialog session model and the Store contract
// backing it. A session records where in the menu conversation a caller is
// (the persisted state plus fields collected so far) between the stateless
// request/response turns of a dialog.
//
// Store implementations must serialize Update calls for the same session ID:
// a caller cannot physically send two turns at once, but gateway
// retransmissions can arrive concurrently and must not interleave mutations.
// Updates for different session IDs must not block each other. Sessions
// expire after an inactivity window; an expired session is indistinguishable
// from an absent one and is never handed back to a caller as live.
//
// Two implementations ship with the module: memorystore (single process) and
// redisstore (shared across instances). The storetest package holds a
// conformance suite that both must pass; run it against any new backend.
package sessions
