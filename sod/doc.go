// Package sod implements separation-of-duty checking.
//
// A [Set] names roles that conflict and a cardinality n: a user may hold
// (static sets) or a session may activate (dynamic sets) at most n-1 roles
// from the set. Membership is hierarchy aware — a role counts toward a set
// when the role itself, any of its ascendants, or any of its descendants is
// a member, so activating a junior or senior alias of a restricted role
// cannot bypass the policy.
//
// Checks return a *[Violation] result rather than an error so constraint
// and policy chains compose without control-flow juggling; the engine maps
// a non-nil result onto its error taxonomy.
package sod
