// Package directory is a Redis-backed reference implementation of the
// engine's entity store collaborator.
//
// Entities live as hashes and sets under a configurable key prefix, with
// temporal constraints stored in their legacy $-delimited raw form — the
// decode/encode pair stays at this boundary and never leaks typed
// constraint handling into storage. Any store satisfying
// [goRBAC.EntityStore] can replace this one; deployments backed by an
// actual directory server implement the same interface against LDAP.
package directory
