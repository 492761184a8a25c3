// Package engine drives the menu dialog. Each inbound turn resolves the
// caller's persisted session, feeds the newest input fragment through a pure
// transition table, and produces the next prompt or a terminal message.
// Collaborator side effects (registration commit, alert dispatch) happen only
// on the edges into the terminal state, guarded so that gateway
// retransmissions of a confirmation never commit twice.
package engine
