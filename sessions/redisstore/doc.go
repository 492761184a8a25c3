// Package redisstore provides a Redis-backed sessions.Store for deployments
// where gateway callbacks land on multiple instances. Sessions are stored as
// JSON values with a native TTL, so expiry needs no sweeping; Update runs an
// optimistic WATCH/MULTI transaction per session key, which serializes
// concurrent mutations of one dialog without coordinating across dialogs.
package redisstore
