package session

import (
	"time"

	"github.com/MrEthical07/goRBAC/constraint"
)

// State is the lifecycle position of a session.
type State uint8

const (
	// Unauthenticated is a terminal state for sessions whose credential
	// or user-level constraint check failed at creation.
	Unauthenticated State = iota
	// Authenticated means the bind succeeded but no role is active.
	Authenticated
	// Active means at least one role is currently activated.
	Active
	// Expired means a lazy validity check failed after creation.
	Expired
	// Terminated means the owner ended the session explicitly.
	Terminated
)

// String names the state for logs and audit events.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Active:
		return "active"
	case Expired:
		return "expired"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WarningCode classifies a non-fatal condition attached to a session.
type WarningCode uint8

const (
	// WarnPasswordExpiring means the directory reported the password is
	// inside its expiry warning window.
	WarnPasswordExpiring WarningCode = iota + 1
	// WarnGraceLogin means the bind consumed one of the remaining grace
	// logins of an expired password.
	WarnGraceLogin
	// WarnRoleSkipped means an assigned role was not activated because
	// its constraint did not pass at creation time.
	WarnRoleSkipped
	// WarnRoleConflict means an assigned role was not activated because
	// activating it would have violated a dynamic SoD set.
	WarnRoleConflict
)

// Warning is a non-fatal condition surfaced on a session, either copied
// from the credential verifier's policy response or produced while
// activating roles.
type Warning struct {
	Code   WarningCode
	Role   string
	Detail string
}

// Assignment is a role assigned to the session's user together with the
// effective constraint for this user (role template merged with the
// per-assignment override).
type Assignment struct {
	Role       string
	Constraint constraint.Constraint
}

// ActiveRole is an activated role and the instant its activation lapses.
// A zero ExpiresAt means the activation is bounded only by the session.
type ActiveRole struct {
	Name        string
	ActivatedAt time.Time
	ExpiresAt   time.Time
}

// Session ties a user's authentication outcome to its assigned and active
// role sets. Mutated only through the engine; carries no internal locking.
type Session struct {
	ID     string
	UserID string
	State  State

	// UserConstraint is the user-level constraint, re-evaluated lazily
	// on every engine operation against LastAccess.
	UserConstraint constraint.Constraint

	Assigned      []Assignment
	Active        []ActiveRole
	AdminAssigned []Assignment
	AdminActive   []ActiveRole

	CreatedAt  time.Time
	LastAccess time.Time

	Warnings []Warning

	// LastViolation records the constraint outcome that most recently
	// denied an operation on this session, for caller diagnostics.
	LastViolation constraint.Validity
}

// IsActive reports whether the named ordinary role is currently active.
func (s *Session) IsActive(role string) bool {
	for _, a := range s.Active {
		if a.Name == role {
			return true
		}
	}
	return false
}

// IsAdminActive reports whether the named administrative role is active.
func (s *Session) IsAdminActive(role string) bool {
	for _, a := range s.AdminActive {
		if a.Name == role {
			return true
		}
	}
	return false
}

// ActiveNames returns the names of the active ordinary roles in
// activation order.
func (s *Session) ActiveNames() []string {
	out := make([]string, len(s.Active))
	for i, a := range s.Active {
		out[i] = a.Name
	}
	return out
}

// AdminActiveNames returns the names of the active administrative roles.
func (s *Session) AdminActiveNames() []string {
	out := make([]string, len(s.AdminActive))
	for i, a := range s.AdminActive {
		out[i] = a.Name
	}
	return out
}

// AssignedNames returns the names of the assigned ordinary roles.
func (s *Session) AssignedNames() []string {
	out := make([]string, len(s.Assigned))
	for i, a := range s.Assigned {
		out[i] = a.Role
	}
	return out
}

// Assignment returns the assignment for the named role, if present.
func (s *Session) Assignment(role string) (Assignment, bool) {
	for _, a := range s.Assigned {
		if a.Role == role {
			return a, true
		}
	}
	return Assignment{}, false
}

// Warn appends a warning to the session.
func (s *Session) Warn(code WarningCode, role, detail string) {
	s.Warnings = append(s.Warnings, Warning{Code: code, Role: role, Detail: detail})
}
