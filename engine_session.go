package goRBAC

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/internal"
	"github.com/MrEthical07/goRBAC/session"
)

// CreateSession authenticates the user through the credential verifier,
// evaluates the user-level constraint, and activates roles. With an
// explicit requested list every named role must be assigned, pass its
// merged constraint, and pass DSD screening, or the whole call fails with
// the first violation. Without one, every assigned role whose constraint
// passes is activated when the config says so, and roles that do not pass
// are skipped with a session warning instead.
//
// On a constraint failure the returned session is non-nil, terminal in
// state Unauthenticated, and carries the violation code alongside the
// returned error.
func (e *Engine) CreateSession(ctx context.Context, userID, secret string, requestedRoles ...string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.verifier == nil {
		return nil, fmt.Errorf("%w: no credential verifier configured", ErrEngineNotReady)
	}
	return e.createSession(ctx, userID, secret, requestedRoles, false)
}

// CreateSessionTrusted creates a session without credential proof, for
// callers that authenticated the user upstream. The constraint and
// separation-of-duty path is identical to [Engine.CreateSession].
func (e *Engine) CreateSessionTrusted(ctx context.Context, userID string, requestedRoles ...string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	return e.createSession(ctx, userID, "", requestedRoles, true)
}

func (e *Engine) createSession(ctx context.Context, userID, secret string, requested []string, trusted bool) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrValidation)
	}

	user, err := e.store.LoadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.denySession(ctx, userID, "", ErrUserNotFound)
			return nil, ErrUserNotFound
		}
		return nil, e.storeErr("load user", err)
	}

	var warnings []Warning
	if !trusted {
		bind, err := e.verifier.Bind(ctx, userID, secret)
		if err != nil {
			e.denySession(ctx, userID, "", err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		warnings = bind.Warnings
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := e.now()
	s := &session.Session{
		ID:             sid,
		UserID:         userID,
		State:          session.Authenticated,
		UserConstraint: e.effectiveUserConstraint(user.Constraint),
		CreatedAt:      now,
		LastAccess:     now,
		Warnings:       warnings,
	}

	if v := constraint.Evaluate(s.UserConstraint, now, constraint.Usage{}); v != constraint.Valid {
		s.State = session.Unauthenticated
		s.LastViolation = v
		err := constraintErr(v, "")
		e.denySession(ctx, userID, s.ID, err)
		return s, err
	}

	s.Assigned = e.assignments(user.Roles)
	s.AdminAssigned = e.adminAssignments(user.AdminRoles)

	if len(requested) > 0 {
		for _, name := range requested {
			if _, err := e.activate(ctx, s, name, now); err != nil {
				e.denySession(ctx, userID, s.ID, err)
				return nil, err
			}
		}
	} else if e.config.Session.ActivateOnCreate {
		for _, a := range s.Assigned {
			_, err := e.activate(ctx, s, a.Role, now)
			switch {
			case err == nil:
			case errors.Is(err, ErrConstraint):
				s.Warn(session.WarnRoleSkipped, a.Role, violationDetail(err))
			case errors.Is(err, ErrDSDViolation):
				s.Warn(session.WarnRoleConflict, a.Role, err.Error())
			default:
				return nil, err
			}
		}
	}

	if e.config.Admin.Enabled {
		e.activateAdminRoles(s, now)
	}

	if len(s.Active) > 0 || len(s.AdminActive) > 0 {
		s.State = session.Active
	}

	if err := e.parkSession(ctx, s); err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionCreate,
		UserID:    userID,
		SessionID: s.ID,
		Success:   true,
		Metadata: map[string]string{
			"active_roles": fmt.Sprint(len(s.Active)),
			"trusted":      fmt.Sprint(trusted),
		},
	})
	return s, nil
}

// AddActiveRole activates an assigned role on an existing session. The
// session is lazily revalidated first; the role must be assigned, its
// merged constraint must pass now, and the resulting active set must
// satisfy every dynamic separation-of-duty set. Adding a role that is
// already active refreshes the session's activity and nothing else.
func (e *Engine) AddActiveRole(ctx context.Context, s *Session, role string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	now := e.now()
	if err := e.revalidate(ctx, s, now); err != nil {
		return err
	}

	activated, err := e.activate(ctx, s, role, now)
	if err != nil {
		return err
	}
	s.LastAccess = now
	if !activated {
		return nil
	}
	s.State = session.Active

	if err := e.parkSession(ctx, s); err != nil {
		return err
	}
	e.metricInc(MetricRoleActivated)
	e.emit(ctx, AuditEvent{
		EventType: AuditRoleActivate,
		UserID:    s.UserID,
		SessionID: s.ID,
		Role:      role,
		Success:   true,
	})
	return nil
}

// DropActiveRole deactivates a role. Dropping a role that is not active is
// a no-op, not an error.
func (e *Engine) DropActiveRole(ctx context.Context, s *Session, role string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.now()
	if err := e.revalidate(ctx, s, now); err != nil {
		return err
	}

	kept := s.Active[:0]
	dropped := false
	for _, a := range s.Active {
		if a.Name == role {
			dropped = true
			continue
		}
		kept = append(kept, a)
	}
	s.Active = kept
	s.LastAccess = now
	if len(s.Active) == 0 && len(s.AdminActive) == 0 {
		s.State = session.Authenticated
	}
	if !dropped {
		return nil
	}

	if err := e.parkSession(ctx, s); err != nil {
		return err
	}
	e.metricInc(MetricRoleDeactivated)
	e.emit(ctx, AuditEvent{
		EventType: AuditRoleDeactivate,
		UserID:    s.UserID,
		SessionID: s.ID,
		Role:      role,
		Success:   true,
	})
	return nil
}

// EndSession terminates a session and removes it from the registry when
// one is configured. Terminating an already expired session is allowed.
func (e *Engine) EndSession(ctx context.Context, s *Session) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrValidation)
	}
	if s.State == session.Terminated {
		return nil
	}
	s.State = session.Terminated
	s.Active = nil
	s.AdminActive = nil

	if e.sessions != nil && e.config.Store.RegistrySessions {
		if err := e.sessions.Delete(ctx, s.ID, s.UserID); err != nil {
			return err
		}
	}
	e.metricInc(MetricSessionEnded)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionEnd,
		UserID:    s.UserID,
		SessionID: s.ID,
		Success:   true,
	})
	return nil
}

// activate appends one role to the active set after the full check chain
// and reports whether the set actually grew. Activating an already active
// role is a no-op.
func (e *Engine) activate(ctx context.Context, s *Session, role string, now time.Time) (bool, error) {
	a, ok := s.Assignment(role)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrRoleNotAssigned, role)
	}
	if s.IsActive(role) {
		return false, nil
	}

	usage := constraint.Usage{
		LastAccess:  s.LastAccess,
		Activations: len(s.Active),
	}
	if v := constraint.Evaluate(a.Constraint, now, usage); v != constraint.Valid {
		s.LastViolation = v
		e.metricInc(MetricConstraintViolation)
		return false, constraintErr(v, role)
	}

	candidate := append(s.ActiveNames(), role)
	violation, err := e.sodRegistry.CheckDSD(candidate, e.roleGraph)
	if err != nil {
		return false, err
	}
	if violation != nil {
		e.metricInc(MetricDSDViolation)
		return false, sodErr(violation)
	}

	expiry := constraint.EarliestExpiry(
		constraint.ExpiryAfter(a.Constraint, now),
		s.CreatedAt.Add(e.config.Session.TTL),
	)
	s.Active = append(s.Active, session.ActiveRole{
		Name:        role,
		ActivatedAt: now,
		ExpiresAt:   expiry,
	})
	return true, nil
}

// activateAdminRoles turns on every assigned admin role whose constraint
// passes. Admin activation is always implicit; failures become warnings.
func (e *Engine) activateAdminRoles(s *Session, now time.Time) {
	for _, a := range s.AdminAssigned {
		usage := constraint.Usage{
			LastAccess:  s.LastAccess,
			Activations: len(s.AdminActive),
		}
		if v := constraint.Evaluate(a.Constraint, now, usage); v != constraint.Valid {
			s.Warn(session.WarnRoleSkipped, a.Role, v.String())
			continue
		}
		s.AdminActive = append(s.AdminActive, session.ActiveRole{
			Name:        a.Role,
			ActivatedAt: now,
			ExpiresAt: constraint.EarliestExpiry(
				constraint.ExpiryAfter(a.Constraint, now),
				s.CreatedAt.Add(e.config.Session.TTL),
			),
		})
	}
}

// revalidate is the lazy self-invalidation every session operation runs
// first: terminal states short-circuit, then the user-level constraint is
// re-evaluated against the session's last access. A failure transitions
// the session to Expired and the operation fails with ErrSessionExpired
// carrying the violation.
func (e *Engine) revalidate(ctx context.Context, s *Session, now time.Time) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrValidation)
	}
	switch s.State {
	case session.Terminated:
		return ErrSessionTerminated
	case session.Unauthenticated:
		return ErrSessionUnauthenticated
	case session.Expired:
		return ErrSessionExpired
	}

	v := constraint.Valid
	if now.Sub(s.CreatedAt) > e.config.Session.TTL {
		v = constraint.Expired
	} else {
		v = constraint.Evaluate(s.UserConstraint, now, constraint.Usage{LastAccess: s.LastAccess})
	}
	if v == constraint.Valid {
		return nil
	}

	s.State = session.Expired
	s.LastViolation = v
	e.metricInc(MetricSessionExpired)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionExpire,
		UserID:    s.UserID,
		SessionID: s.ID,
		Error:     v.String(),
	})
	return errors.Join(ErrSessionExpired, constraintErr(v, ""))
}

func (e *Engine) effectiveUserConstraint(c constraint.Constraint) constraint.Constraint {
	if c.TimeoutMinutes == 0 && e.config.Session.DefaultTimeoutMinutes > 0 {
		c.TimeoutMinutes = e.config.Session.DefaultTimeoutMinutes
	}
	return c
}

func (e *Engine) assignments(urs []UserRole) []session.Assignment {
	out := make([]session.Assignment, 0, len(urs))
	for _, ur := range urs {
		out = append(out, session.Assignment{
			Role:       ur.Role,
			Constraint: constraint.Override(e.roleTemplate(ur.Role, false), ur.Constraint),
		})
	}
	return out
}

func (e *Engine) adminAssignments(urs []UserAdminRole) []session.Assignment {
	out := make([]session.Assignment, 0, len(urs))
	for _, ur := range urs {
		out = append(out, session.Assignment{
			Role:       ur.Role,
			Constraint: constraint.Override(e.roleTemplate(ur.Role, true), ur.Constraint),
		})
	}
	return out
}

func (e *Engine) parkSession(ctx context.Context, s *Session) error {
	if e.sessions == nil || !e.config.Store.RegistrySessions {
		return nil
	}
	if max := e.config.Session.MaxPerUser; max > 0 {
		count, err := e.sessions.Count(ctx, s.UserID)
		if err != nil {
			return err
		}
		if count >= int64(max) {
			if _, parked := e.parkedAlready(ctx, s); !parked {
				return ErrSessionLimitExceeded
			}
		}
	}
	return e.sessions.Save(ctx, s, e.config.Session.TTL)
}

func (e *Engine) parkedAlready(ctx context.Context, s *Session) (*Session, bool) {
	existing, err := e.sessions.Load(ctx, s.ID)
	if err != nil {
		return nil, false
	}
	return existing, true
}

func (e *Engine) denySession(ctx context.Context, userID, sessionID string, cause error) {
	e.metricInc(MetricSessionDenied)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionDenied,
		UserID:    userID,
		SessionID: sessionID,
		Error:     cause.Error(),
	})
}

func violationDetail(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Validity.String()
	}
	return err.Error()
}
