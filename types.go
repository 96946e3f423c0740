package goRBAC

import (
	"context"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/session"
	"github.com/MrEthical07/goRBAC/sod"
)

// Role is an ordinary role in the hierarchy. Parents are the direct
// ascendants (seniors), Children the direct descendants (juniors); the
// transitive closure of either relation must remain a strict partial
// order, which the engine enforces on every edge mutation.
type Role struct {
	Name        string
	Description string
	Parents     []string
	Children    []string

	// Constraint is the activation constraint template. A user-role
	// assignment may override individual dimensions of it.
	Constraint constraint.Constraint
}

// AdminRole is an administrative role: a Role evaluated on a separate
// graph, additionally scoped by the org-unit pools it may administer.
type AdminRole struct {
	Role

	// OSUPool lists the user org-units this role may administer.
	OSUPool []string
	// OSPPool lists the permission org-units this role may administer.
	OSPPool []string
}

// UserRole is an assignment edge from a user to an ordinary role. The
// constraint overrides dimensions of the role's template for this user
// only. RawData preserves the stored $-delimited form across a load/save
// round trip; engine code never reads it.
type UserRole struct {
	UserID     string
	Role       string
	Constraint constraint.Constraint
	RawData    string
}

// UserAdminRole is an assignment edge from a user to an administrative
// role, with the same constraint-override semantics as [UserRole].
type UserAdminRole struct {
	UserID     string
	Role       string
	Constraint constraint.Constraint
	RawData    string
}

// User is the entity the session manager authenticates and authorizes.
// Loaded from the entity store; the engine never persists it.
type User struct {
	ID          string
	Description string
	OrgUnit     string
	Constraint  constraint.Constraint
	Roles       []UserRole
	AdminRoles  []UserAdminRole
}

// Permission names an operation on an object and the roles authorized to
// exercise it. OrgUnit scopes which administrators may grant or revoke it.
type Permission struct {
	Object    string
	Operation string
	OrgUnit   string
	Roles     []string
}

// ID returns the canonical object.operation identifier.
func (p Permission) ID() string {
	return p.Object + "." + p.Operation
}

// OrgUnitType selects which org-unit tree an entry belongs to.
type OrgUnitType uint8

const (
	// UserOU is the tree scoping which users an admin role may manage.
	UserOU OrgUnitType = iota
	// PermOU is the tree scoping which permissions an admin role may manage.
	PermOU
)

// String names the org-unit tree.
func (t OrgUnitType) String() string {
	if t == PermOU {
		return "perm"
	}
	return "user"
}

// OrgUnit is a node in one of the two organizational-unit trees. Parents
// are walked upward during admin scope checks.
type OrgUnit struct {
	Name        string
	Type        OrgUnitType
	Description string
	Parents     []string
}

// Session is the session value object managed by the engine. Re-exported
// so callers rarely need to import the session package directly.
type Session = session.Session

// Warning is a non-fatal condition surfaced on a session.
type Warning = session.Warning

// Warning code aliases, re-exported from the session package.
const (
	WarnPasswordExpiring = session.WarnPasswordExpiring
	WarnGraceLogin       = session.WarnGraceLogin
	WarnRoleSkipped      = session.WarnRoleSkipped
	WarnRoleConflict     = session.WarnRoleConflict
)

// BindResult is what a credential verifier reports on a successful bind.
// Warnings carry directory policy conditions (password expiring, grace
// logins remaining) that the session manager surfaces unchanged.
type BindResult struct {
	Warnings []Warning
}

// CredentialVerifier proves a user's credential against whatever backs
// authentication. The engine treats it as opaque: a nil error means the
// bind succeeded, and any warnings are copied onto the session.
type CredentialVerifier interface {
	Bind(ctx context.Context, userID, secret string) (BindResult, error)
}

// EntityStore is the storage collaborator the engine reads entities from
// and writes administrative mutations back to. Implementations map their
// own failure modes onto [ErrNotFound], [ErrStoreConflict], and
// [ErrStoreUnavailable] so the engine's taxonomy stays closed.
type EntityStore interface {
	LoadUser(ctx context.Context, id string) (User, error)
	LoadRole(ctx context.Context, name string) (Role, error)
	LoadRoles(ctx context.Context) ([]Role, error)
	LoadAdminRole(ctx context.Context, name string) (AdminRole, error)
	LoadAdminRoles(ctx context.Context) ([]AdminRole, error)
	LoadPermission(ctx context.Context, object, operation string) (Permission, error)
	LoadPermissions(ctx context.Context) ([]Permission, error)
	LoadSSDSets(ctx context.Context) ([]sod.Set, error)
	LoadDSDSets(ctx context.Context) ([]sod.Set, error)
	LoadOrgUnits(ctx context.Context, t OrgUnitType) ([]OrgUnit, error)

	SaveRoleEdge(ctx context.Context, parent, child string, admin bool) error
	DeleteRoleEdge(ctx context.Context, parent, child string, admin bool) error
	SaveAssignment(ctx context.Context, ur UserRole) error
	DeleteAssignment(ctx context.Context, userID, role string) error
	SaveGrant(ctx context.Context, object, operation, role string) error
	DeleteGrant(ctx context.Context, object, operation, role string) error
}

// PoolKind selects which pool of an admin role a scope check runs
// against.
type PoolKind uint8

const (
	// OSUPool checks against the user org-unit pool.
	OSUPool PoolKind = iota
	// OSPPool checks against the permission org-unit pool.
	OSPPool
)

// String names the pool kind for logs and audit events.
func (k PoolKind) String() string {
	switch k {
	case OSUPool:
		return "osu"
	case OSPPool:
		return "osp"
	default:
		return "unknown"
	}
}
