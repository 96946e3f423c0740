// Package goRBAC provides an embeddable role-based access control engine
// with delegated administration: a cycle-free role hierarchy with
// permission inheritance, static and dynamic separation-of-duty
// constraints, temporal constraint evaluation, and time-bounded session
// management.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. The one exception is sanctioned by the ownership model —
// a *Session belongs to exactly one logical caller, and concurrent
// operations on the same session must be serialized by that caller.
//
// # Architecture boundaries
//
// goRBAC is the public surface. It exposes [Engine], [Builder], [Config],
// the entity types, and the collaborator interfaces ([EntityStore],
// [CredentialVerifier], [AuditSink]). The engine performs no network I/O
// of its own and persists nothing: entities come from the entity store and
// administrative mutations go back through it. The directory and verifier
// subpackages are reference collaborator implementations, not
// requirements.
//
// # What this package must NOT do
//
//   - Store or hash credentials; the credential verifier owns proof.
//   - Downgrade a constraint or separation-of-duty failure to success;
//     every violation propagates with its originating code.
//   - Fail an operation because the audit sink failed; audit is
//     fire-and-forget through a buffered dispatcher.
//
// # Evaluation contract
//
// CheckAccess is the hot path: after the lazy session validity check it is
// a pure read over the hierarchy snapshot and the permission's authorized
// role set. Constraint evaluation order is fixed — lock window, calendar
// bounds, day-of-week, time-of-day, inactivity, activation ceiling — and
// the first violation is always the one surfaced to the caller.
package goRBAC
