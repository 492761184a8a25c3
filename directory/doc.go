// Package directory defines the registered-user directory consumed by the
// dialog engine: lookup by phone, registration with duplicate protection, and
// the location index used to fan alerts out to a reporter's neighbors.
//
// Registration is write-once per phone number. A duplicate attempt fails with
// ErrDuplicateUser and leaves the existing record untouched; callers surface
// the conflict rather than merging or overwriting.
package directory
