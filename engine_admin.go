package goRBAC

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goRBAC/hierarchy"
)

// CanAdminister reports whether the session's active administrative roles
// may manage the target org-unit. The target matches a pool directly or
// through any of its ancestors in the org-unit tree, so pool membership at
// a parent unit delegates the whole subtree.
func (e *Engine) CanAdminister(ctx context.Context, s *Session, targetOU string, kind PoolKind) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if !e.config.Admin.Enabled {
		return false, nil
	}
	if err := e.revalidate(ctx, s, e.now()); err != nil {
		return false, err
	}
	return e.inScope(s, targetOU, kind)
}

// AssignUser assigns a role to a user on behalf of an administrator. The
// target user's org-unit must be inside the acting session's OSU pools,
// and the assignment must survive static separation-of-duty screening
// against the roles the user already holds.
func (e *Engine) AssignUser(ctx context.Context, admin *Session, ur UserRole) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	if ur.UserID == "" || ur.Role == "" {
		return fmt.Errorf("%w: assignment needs user and role", ErrValidation)
	}
	if !e.roleGraph.Contains(ur.Role) {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, ur.Role)
	}

	target, err := e.store.LoadUser(ctx, ur.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return e.storeErr("load user", err)
	}

	if err := e.requireScope(ctx, admin, target.OrgUnit, OSUPool, AuditAdminAssign); err != nil {
		return err
	}

	assigned := make([]string, 0, len(target.Roles))
	for _, existing := range target.Roles {
		if existing.Role == ur.Role {
			return fmt.Errorf("%w: %s already assigned", ErrStoreConflict, ur.Role)
		}
		assigned = append(assigned, existing.Role)
	}
	violation, err := e.sodRegistry.CheckSSD(ur.Role, assigned, e.roleGraph)
	if err != nil {
		return err
	}
	if violation != nil {
		e.metricInc(MetricSSDViolation)
		return sodErr(violation)
	}

	if err := e.store.SaveAssignment(ctx, ur); err != nil {
		return e.storeErr("save assignment", err)
	}
	e.adminApplied(ctx, admin, AuditAdminAssign, map[string]string{
		"target_user": ur.UserID,
		"role":        ur.Role,
	})
	return nil
}

// DeassignUser removes a role assignment from a user, subject to the same
// OSU scope check as AssignUser. Deassigning an absent assignment maps to
// the store's not-found outcome.
func (e *Engine) DeassignUser(ctx context.Context, admin *Session, userID, role string) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	target, err := e.store.LoadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return e.storeErr("load user", err)
	}
	if err := e.requireScope(ctx, admin, target.OrgUnit, OSUPool, AuditAdminDeassign); err != nil {
		return err
	}
	if err := e.store.DeleteAssignment(ctx, userID, role); err != nil {
		return e.storeErr("delete assignment", err)
	}
	e.adminApplied(ctx, admin, AuditAdminDeassign, map[string]string{
		"target_user": userID,
		"role":        role,
	})
	return nil
}

// GrantPermission authorizes a role for a permission. The permission's
// org-unit must be inside the acting session's OSP pools.
func (e *Engine) GrantPermission(ctx context.Context, admin *Session, object, operation, role string) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	if !e.roleGraph.Contains(role) {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	perm, err := e.store.LoadPermission(ctx, object, operation)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s.%s", ErrPermissionNotFound, object, operation)
		}
		return e.storeErr("load permission", err)
	}
	if err := e.requireScope(ctx, admin, perm.OrgUnit, OSPPool, AuditAdminGrant); err != nil {
		return err
	}
	if err := e.store.SaveGrant(ctx, object, operation, role); err != nil {
		return e.storeErr("save grant", err)
	}
	e.adminApplied(ctx, admin, AuditAdminGrant, map[string]string{
		"permission": perm.ID(),
		"role":       role,
	})
	return nil
}

// RevokePermission removes a role from a permission's authorized set,
// under the same OSP scope rule as GrantPermission.
func (e *Engine) RevokePermission(ctx context.Context, admin *Session, object, operation, role string) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	perm, err := e.store.LoadPermission(ctx, object, operation)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s.%s", ErrPermissionNotFound, object, operation)
		}
		return e.storeErr("load permission", err)
	}
	if err := e.requireScope(ctx, admin, perm.OrgUnit, OSPPool, AuditAdminRevoke); err != nil {
		return err
	}
	if err := e.store.DeleteGrant(ctx, object, operation, role); err != nil {
		return e.storeErr("delete grant", err)
	}
	e.adminApplied(ctx, admin, AuditAdminRevoke, map[string]string{
		"permission": perm.ID(),
		"role":       role,
	})
	return nil
}

// AddInheritance links parent above child in the ordinary role hierarchy.
// The cycle check runs on the in-memory graph before the store is
// touched; a store failure rolls the edge back so graph and store stay in
// step.
func (e *Engine) AddInheritance(ctx context.Context, admin *Session, parent, child string) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	if err := e.requireInheritanceScope(ctx, admin); err != nil {
		return err
	}
	if err := e.roleGraph.AddEdge(parent, child); err != nil {
		return err
	}
	if err := e.store.SaveRoleEdge(ctx, parent, child, false); err != nil {
		_ = e.roleGraph.RemoveEdge(parent, child)
		return e.storeErr("save role edge", err)
	}
	e.adminApplied(ctx, admin, AuditAdminInherit, map[string]string{
		"parent": parent,
		"child":  child,
	})
	return nil
}

// RemoveInheritance unlinks parent from child in the ordinary role
// hierarchy and persists the removal.
func (e *Engine) RemoveInheritance(ctx context.Context, admin *Session, parent, child string) error {
	if err := e.adminPrecheck(ctx, admin); err != nil {
		return err
	}
	if err := e.requireInheritanceScope(ctx, admin); err != nil {
		return err
	}
	if err := e.roleGraph.RemoveEdge(parent, child); err != nil {
		return err
	}
	if err := e.store.DeleteRoleEdge(ctx, parent, child, false); err != nil {
		return e.storeErr("delete role edge", err)
	}
	e.adminApplied(ctx, admin, AuditAdminUninherit, map[string]string{
		"parent": parent,
		"child":  child,
	})
	return nil
}

func (e *Engine) adminPrecheck(ctx context.Context, admin *Session) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.Admin.Enabled {
		return ErrAdminScope
	}
	return e.revalidate(ctx, admin, e.now())
}

// requireScope enforces the pool check and audits a denial.
func (e *Engine) requireScope(ctx context.Context, admin *Session, targetOU string, kind PoolKind, op string) error {
	ok, err := e.inScope(admin, targetOU, kind)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricAdminScopeDenied)
		e.emit(ctx, AuditEvent{
			EventType: AuditAdminScopeDeny,
			UserID:    admin.UserID,
			SessionID: admin.ID,
			Metadata: map[string]string{
				"operation": op,
				"target_ou": targetOU,
				"pool":      kind.String(),
			},
		})
		return fmt.Errorf("%w: org unit %s", ErrAdminScope, targetOU)
	}
	return nil
}

// requireInheritanceScope gates hierarchy edge mutations. Edges have no
// single target org-unit; with UnscopedInheritance any active admin role
// suffices, otherwise the acting session needs a pool containing the
// org-unit tree root, which only top-level administrators hold.
func (e *Engine) requireInheritanceScope(ctx context.Context, admin *Session) error {
	if len(admin.AdminActive) == 0 {
		e.metricInc(MetricAdminScopeDenied)
		return fmt.Errorf("%w: no active administrative role", ErrAdminScope)
	}
	if e.config.Admin.UnscopedInheritance {
		return nil
	}
	pools := e.activePools(admin, OSUPool)
	for _, root := range e.ouRoots(UserOU) {
		if _, ok := pools[root]; ok {
			return nil
		}
	}
	e.metricInc(MetricAdminScopeDenied)
	e.emit(ctx, AuditEvent{
		EventType: AuditAdminScopeDeny,
		UserID:    admin.UserID,
		SessionID: admin.ID,
		Metadata:  map[string]string{"operation": AuditAdminInherit},
	})
	return fmt.Errorf("%w: hierarchy mutation requires root scope", ErrAdminScope)
}

// inScope walks the org-unit tree upward from the target looking for any
// unit contained in the session's active pools.
func (e *Engine) inScope(s *Session, targetOU string, kind PoolKind) (bool, error) {
	if targetOU == "" {
		return false, fmt.Errorf("%w: empty org unit", ErrValidation)
	}
	pools := e.activePools(s, kind)
	if len(pools) == 0 {
		return false, nil
	}
	if _, ok := pools[targetOU]; ok {
		return true, nil
	}

	tree := e.ouUser
	if kind == OSPPool {
		tree = e.ouPerm
	}
	ancestors, err := tree.Ascendants(targetOU)
	if err != nil {
		if errors.Is(err, hierarchy.ErrUnknownRole) {
			return false, fmt.Errorf("%w: %s", ErrOrgUnitNotFound, targetOU)
		}
		return false, err
	}
	for unit := range ancestors {
		if _, ok := pools[unit]; ok {
			return true, nil
		}
	}
	return false, nil
}

// activePools unions the requested pool of every active admin role,
// including pools inherited from descendant admin roles.
func (e *Engine) activePools(s *Session, kind PoolKind) map[string]struct{} {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()

	out := make(map[string]struct{})
	add := func(role string) {
		pools, ok := e.adminPools[role]
		if !ok {
			return
		}
		src := pools.osu
		if kind == OSPPool {
			src = pools.osp
		}
		for unit := range src {
			out[unit] = struct{}{}
		}
	}

	for _, a := range s.AdminActive {
		add(a.Name)
		if desc, err := e.adminGraph.Descendants(a.Name); err == nil {
			for junior := range desc {
				add(junior)
			}
		}
	}
	return out
}

func (e *Engine) ouRoots(t OrgUnitType) []string {
	tree := e.ouUser
	if t == PermOU {
		tree = e.ouPerm
	}
	var roots []string
	for _, name := range tree.Roles() {
		parents, err := tree.Parents(name)
		if err == nil && len(parents) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

func (e *Engine) adminApplied(ctx context.Context, admin *Session, eventType string, meta map[string]string) {
	e.metricInc(MetricAdminMutation)
	e.emit(ctx, AuditEvent{
		EventType: eventType,
		UserID:    admin.UserID,
		SessionID: admin.ID,
		Success:   true,
		Metadata:  meta,
	})
}
