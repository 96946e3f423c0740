// Package session defines the session value object, its versioned binary
// encoding, and an optional Redis-backed registry.
//
// A [Session] is owned by exactly one logical caller for its lifetime. The
// engine hands sessions out by pointer and mutates them on the caller's
// behalf; concurrent use of one session must be serialized by the caller.
// All cross-session shared state (hierarchy graphs, SoD sets) lives
// elsewhere, so sessions carry no locks.
//
// The [Store] exists for deployments that park sessions between requests or
// hand them across processes. The engine itself never requires it.
package session
