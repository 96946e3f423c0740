package goRBAC

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/goRBAC/hierarchy"
)

// CheckAccess decides whether the session may exercise the named
// operation on the named object. Each active role is expanded through the
// hierarchy — a senior role inherits the permissions granted to its
// juniors — and tested against the permission's authorized role set. The
// first match allows; no match denies with a false result, not an error.
//
// CheckAccess is a pure read on the session: it never changes the active
// set or the last-access timestamp. The one sanctioned state change is the
// lazy expiry transition, which happens before the permission is even
// loaded.
func (e *Engine) CheckAccess(ctx context.Context, s *Session, object, operation string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	start := e.now()
	if err := e.revalidate(ctx, s, start); err != nil {
		return false, err
	}
	if object == "" || operation == "" {
		return false, fmt.Errorf("%w: empty permission reference", ErrValidation)
	}

	perm, err := e.store.LoadPermission(ctx, object, operation)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("%w: %s.%s", ErrPermissionNotFound, object, operation)
		}
		return false, e.storeErr("load permission", err)
	}

	authorized, err := e.authorizedSet(perm)
	if err != nil {
		return false, err
	}

	allowed := false
	for _, a := range s.Active {
		if !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(start) {
			// Lapsed activation; skipped, not pruned, so the check
			// stays read-only.
			continue
		}
		if _, ok := authorized[a.Name]; ok {
			allowed = true
			break
		}
	}

	if allowed {
		e.metricInc(MetricAccessAllowed)
	} else {
		e.metricInc(MetricAccessDenied)
	}
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricCheckAccessLatency, time.Since(start))
	}
	e.emit(ctx, AuditEvent{
		EventType: AuditAccessCheck,
		UserID:    s.UserID,
		SessionID: s.ID,
		Object:    object,
		Operation: operation,
		Success:   allowed,
	})
	return allowed, nil
}

// AuthorizedRoleSet returns every role that may exercise the permission:
// the directly granted roles plus all their ascendants, sorted.
func (e *Engine) AuthorizedRoleSet(ctx context.Context, object, operation string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	perm, err := e.store.LoadPermission(ctx, object, operation)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s.%s", ErrPermissionNotFound, object, operation)
		}
		return nil, e.storeErr("load permission", err)
	}
	authorized, err := e.authorizedSet(perm)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(authorized))
	for name := range authorized {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// SessionRoles returns the names of the session's active roles after the
// lazy validity check.
func (e *Engine) SessionRoles(ctx context.Context, s *Session) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.revalidate(ctx, s, e.now()); err != nil {
		return nil, err
	}
	return s.ActiveNames(), nil
}

// SessionPermissions returns every permission the session may currently
// exercise, the review-side counterpart of CheckAccess.
func (e *Engine) SessionPermissions(ctx context.Context, s *Session) ([]Permission, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()
	if err := e.revalidate(ctx, s, now); err != nil {
		return nil, err
	}

	perms, err := e.store.LoadPermissions(ctx)
	if err != nil {
		return nil, e.storeErr("load permissions", err)
	}

	active := make(map[string]struct{}, len(s.Active))
	for _, a := range s.Active {
		if !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now) {
			continue
		}
		active[a.Name] = struct{}{}
	}

	var out []Permission
	for _, perm := range perms {
		authorized, err := e.authorizedSet(perm)
		if err != nil {
			return nil, err
		}
		for name := range active {
			if _, ok := authorized[name]; ok {
				out = append(out, perm)
				break
			}
		}
	}
	return out, nil
}

// authorizedSet expands a permission's granted roles with their
// ascendants. Granted roles missing from the hierarchy still authorize
// themselves; a grant may outlive its role's edges.
func (e *Engine) authorizedSet(perm Permission) (map[string]struct{}, error) {
	authorized := make(map[string]struct{}, len(perm.Roles)*2)
	for _, granted := range perm.Roles {
		authorized[granted] = struct{}{}
		asc, err := e.roleGraph.Ascendants(granted)
		if err != nil {
			if errors.Is(err, hierarchy.ErrUnknownRole) {
				continue
			}
			return nil, err
		}
		for name := range asc {
			authorized[name] = struct{}{}
		}
	}
	return authorized, nil
}
