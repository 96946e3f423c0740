package goRBAC

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/hierarchy"
	"github.com/MrEthical07/goRBAC/sod"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials is returned when the credential verifier
	// rejects a bind.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when the entity store has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned when the entity store has no such role.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is returned when the entity store has no such
	// permission.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrOrgUnitNotFound is returned when an org-unit reference does not
	// resolve in its tree.
	ErrOrgUnitNotFound = errors.New("org unit not found")
	// ErrNotFound is the generic storage miss an EntityStore maps its
	// own lookups onto.
	ErrNotFound = errors.New("entity not found")
	// ErrRoleNotAssigned is returned when a session operation names a
	// role the user does not hold.
	ErrRoleNotAssigned = errors.New("role not assigned to user")
	// ErrSessionExpired is returned once a session's lazy validity check
	// has failed; every subsequent operation fails the same way.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionTerminated is returned for operations on a session the
	// owner already ended.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSessionLimitExceeded is returned when parking a new session
	// would exceed the per-user registry cap.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrSessionUnauthenticated is returned for operations on a session
	// whose creation failed.
	ErrSessionUnauthenticated = errors.New("session unauthenticated")
	// ErrSessionNotFound is returned when a hand-off token names a
	// session the registry no longer holds.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid is returned when a hand-off token fails signature
	// or claim validation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrConstraint is the sentinel all temporal constraint violations
	// match via errors.Is.
	ErrConstraint = errors.New("constraint violation")
	// ErrSSDViolation is the sentinel for static separation-of-duty
	// failures.
	ErrSSDViolation = errors.New("static separation of duty violation")
	// ErrDSDViolation is the sentinel for dynamic separation-of-duty
	// failures.
	ErrDSDViolation = errors.New("dynamic separation of duty violation")
	// ErrAdminScope is returned when an administrative operation targets
	// an org-unit outside the acting role's pool.
	ErrAdminScope = errors.New("target outside administrative scope")
	// ErrStoreConflict is the storage collaborator's concurrent-update
	// failure.
	ErrStoreConflict = errors.New("storage conflict")
	// ErrStoreUnavailable is the storage collaborator's transport
	// failure.
	ErrStoreUnavailable = errors.New("storage unavailable")
	// ErrValidation is returned for malformed input before any
	// collaborator is consulted.
	ErrValidation = errors.New("invalid input")
)

// Hierarchy sentinels, re-exported so callers need only this package for
// errors.Is checks.
var (
	// ErrCycle matches edge mutations that would close a hierarchy cycle.
	ErrCycle = hierarchy.ErrCycle
	// ErrSelfParent matches edges from a role to itself.
	ErrSelfParent = hierarchy.ErrSelfParent
	// ErrUnknownRole matches hierarchy references that do not resolve.
	ErrUnknownRole = hierarchy.ErrUnknownRole
)

// ConstraintError carries which temporal dimension failed and, when the
// failure concerns a role activation, the role. It matches
// [ErrConstraint] via errors.Is.
type ConstraintError struct {
	Validity constraint.Validity
	Role     string
}

// Error renders the violation with its first failing dimension.
func (e *ConstraintError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("constraint violation: role %s: %s", e.Role, e.Validity)
	}
	return "constraint violation: " + e.Validity.String()
}

// Is reports a match against [ErrConstraint].
func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

// SoDError carries the violated separation-of-duty set. It matches
// [ErrSSDViolation] or [ErrDSDViolation] via errors.Is according to the
// set's kind.
type SoDError struct {
	Set  string
	Kind sod.Kind
}

// Error renders the violation with the set name.
func (e *SoDError) Error() string {
	return fmt.Sprintf("%s violation: set %s", e.Kind, e.Set)
}

// Is reports a match against the sentinel of the set's kind.
func (e *SoDError) Is(target error) bool {
	if e.Kind == sod.Dynamic {
		return target == ErrDSDViolation
	}
	return target == ErrSSDViolation
}

func constraintErr(v constraint.Validity, role string) error {
	return &ConstraintError{Validity: v, Role: role}
}

func sodErr(v *sod.Violation) error {
	return &SoDError{Set: v.Set, Kind: v.Kind}
}
