// Package ussd defines the wire-level types of the USSD gateway protocol: the
// per-turn request delivered by the telecom gateway, the CON/END plain-text
// response, and the pure tokenization of the cumulative dialed string.
//
// The gateway re-sends the entire history of typed fragments on every turn,
// joined by "*". Splitting that history is total: any string yields zero or
// more tokens with no error case. Higher layers advance a persisted session
// by only the newest token; they never re-derive position from the full path.
package ussd
