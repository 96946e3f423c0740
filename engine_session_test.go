package goRBAC

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/session"
)

func TestCreateSessionActivatesAssignedRoles(t *testing.T) {
	h := newEngineHarness(t, nil)

	s := h.session(t, "alice", "alice-secret")
	if s.State != session.Active {
		t.Fatalf("state = %v, want Active", s.State)
	}
	if !s.IsActive("manager") {
		t.Fatalf("manager not active: %v", s.ActiveNames())
	}
	if len(s.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", s.Warnings)
	}
	if s.UserID != "alice" || s.ID == "" {
		t.Fatalf("bad identity: %q / %q", s.UserID, s.ID)
	}
}

func TestCreateSessionRejectsBadCredential(t *testing.T) {
	h := newEngineHarness(t, nil)

	_, err := h.engine.CreateSession(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	_, err = h.engine.CreateSession(context.Background(), "nobody", "x")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}

	_, err = h.engine.CreateSession(context.Background(), "", "x")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreateSessionTrustedSkipsBind(t *testing.T) {
	h := newEngineHarness(t, nil)

	s, err := h.engine.CreateSessionTrusted(context.Background(), "alice")
	if err != nil {
		t.Fatalf("trusted create: %v", err)
	}
	if !s.IsActive("manager") {
		t.Fatalf("manager not active: %v", s.ActiveNames())
	}
}

func TestCreateSessionSkipsRoleOutsideTimeWindow(t *testing.T) {
	h := newEngineHarness(t, nil)

	// 10:00 is outside the 22:00-06:00 night-auditor window.
	s := h.session(t, "grace", "grace-secret")
	if s.State != session.Authenticated {
		t.Fatalf("state = %v, want Authenticated", s.State)
	}
	if len(s.Active) != 0 {
		t.Fatalf("active = %v, want none", s.ActiveNames())
	}
	if len(s.Warnings) != 1 || s.Warnings[0].Code != WarnRoleSkipped || s.Warnings[0].Role != "night-auditor" {
		t.Fatalf("warnings = %+v", s.Warnings)
	}

	// The same role requested explicitly fails the whole call.
	_, err := h.engine.CreateSession(context.Background(), "grace", "grace-secret", "night-auditor")
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}

	// Inside the window the role activates normally.
	h.clock.Set(time.Date(2024, 6, 11, 23, 0, 0, 0, time.UTC))
	s = h.session(t, "grace", "grace-secret", "night-auditor")
	if !s.IsActive("night-auditor") {
		t.Fatalf("active = %v, want night-auditor", s.ActiveNames())
	}
}

func TestCreateSessionDSDConflict(t *testing.T) {
	h := newEngineHarness(t, nil)

	// Implicit activation keeps the first role and warns about the
	// conflicting one.
	s := h.session(t, "bob", "bob-secret")
	if !s.IsActive("trader") || s.IsActive("risk-officer") {
		t.Fatalf("active = %v", s.ActiveNames())
	}
	if len(s.Warnings) != 1 || s.Warnings[0].Code != WarnRoleConflict {
		t.Fatalf("warnings = %+v", s.Warnings)
	}

	// Requesting both explicitly fails the whole call.
	_, err := h.engine.CreateSession(context.Background(), "bob", "bob-secret", "trader", "risk-officer")
	if !errors.Is(err, ErrDSDViolation) {
		t.Fatalf("err = %v, want ErrDSDViolation", err)
	}
	var sodE *SoDError
	if !errors.As(err, &sodE) || sodE.Set != "trading" {
		t.Fatalf("sod error = %+v", err)
	}
}

func TestCreateSessionRequestedRoleNotAssigned(t *testing.T) {
	h := newEngineHarness(t, nil)

	_, err := h.engine.CreateSession(context.Background(), "alice", "alice-secret", "ceo")
	if !errors.Is(err, ErrRoleNotAssigned) {
		t.Fatalf("err = %v, want ErrRoleNotAssigned", err)
	}
}

func TestCreateSessionUserConstraintDenied(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.store.mu.Lock()
	u := h.store.users["alice"]
	u.Constraint = constraint.Constraint{BeginTime: 22 * 60, EndTime: 6 * 60}
	h.store.users["alice"] = u
	h.store.mu.Unlock()

	s, err := h.engine.CreateSession(context.Background(), "alice", "alice-secret")
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}
	if s == nil {
		t.Fatal("denied session should still be returned")
	}
	if s.State != session.Unauthenticated {
		t.Fatalf("state = %v, want Unauthenticated", s.State)
	}
	if s.LastViolation != constraint.TimeOfDayDenied {
		t.Fatalf("violation = %v", s.LastViolation)
	}
	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); !errors.Is(err, ErrSessionUnauthenticated) {
		t.Fatalf("op on denied session: %v", err)
	}
}

func TestCreateSessionSurfacesBindWarnings(t *testing.T) {
	st := fixtureStore()
	clock := newTestClock()

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	v := &memVerifier{
		secrets:  testSecrets(),
		warnings: []Warning{{Code: WarnPasswordExpiring, Detail: "password expires in 48h"}},
	}
	e, err := New().
		WithConfig(cfg).
		WithEntityStore(st).
		WithCredentialVerifier(v).
		WithClock(clock.Now).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	s, err := e.CreateSession(context.Background(), "alice", "alice-secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(s.Warnings) != 1 || s.Warnings[0].Code != WarnPasswordExpiring {
		t.Fatalf("warnings = %+v", s.Warnings)
	}
}

func TestAddAndDropActiveRole(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.ActivateOnCreate = false
	})

	s := h.session(t, "alice", "alice-secret")
	if s.State != session.Authenticated || len(s.Active) != 0 {
		t.Fatalf("state = %v active = %v", s.State, s.ActiveNames())
	}

	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.State != session.Active || !s.IsActive("manager") {
		t.Fatalf("state = %v active = %v", s.State, s.ActiveNames())
	}

	// Activating an already active role is a no-op.
	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if len(s.Active) != 1 {
		t.Fatalf("active = %v", s.ActiveNames())
	}

	if err := h.engine.AddActiveRole(context.Background(), s, "ceo"); !errors.Is(err, ErrRoleNotAssigned) {
		t.Fatalf("unassigned add: %v", err)
	}

	// Dropping an absent role is a no-op.
	if err := h.engine.DropActiveRole(context.Background(), s, "ghost"); err != nil {
		t.Fatalf("absent drop: %v", err)
	}

	if err := h.engine.DropActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if s.State != session.Authenticated || len(s.Active) != 0 {
		t.Fatalf("state = %v active = %v", s.State, s.ActiveNames())
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	h := newEngineHarness(t, nil)

	s := h.session(t, "alice", "alice-secret")
	if err := h.engine.EndSession(context.Background(), s); err != nil {
		t.Fatalf("end: %v", err)
	}
	if s.State != session.Terminated || s.Active != nil {
		t.Fatalf("state = %v active = %v", s.State, s.Active)
	}
	if err := h.engine.EndSession(context.Background(), s); err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("op on terminated session: %v", err)
	}
}

func TestSessionExpiresAfterInactivity(t *testing.T) {
	h := newEngineHarness(t, nil)

	s := h.session(t, "alice", "alice-secret")

	// Default inactivity timeout is 30 minutes.
	h.clock.Advance(31 * time.Minute)
	err := h.engine.AddActiveRole(context.Background(), s, "manager")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want joined constraint violation", err)
	}
	if s.State != session.Expired || s.LastViolation != constraint.InactivityTimeout {
		t.Fatalf("state = %v violation = %v", s.State, s.LastViolation)
	}

	// Expired is terminal: the next operation fails the same way without
	// re-evaluating anything.
	if err := h.engine.DropActiveRole(context.Background(), s, "manager"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("second op: %v", err)
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.TTL = time.Hour
	})

	s := h.session(t, "alice", "alice-secret")

	// Stay under the inactivity timeout while crossing the ceiling.
	for i := 0; i < 5; i++ {
		h.clock.Advance(14 * time.Minute)
		if err := h.engine.AddActiveRole(context.Background(), s, "manager"); err != nil {
			if i >= 4 {
				if !errors.Is(err, ErrSessionExpired) {
					t.Fatalf("err = %v, want ErrSessionExpired", err)
				}
				if s.LastViolation != constraint.Expired {
					t.Fatalf("violation = %v, want Expired", s.LastViolation)
				}
				return
			}
			t.Fatalf("round %d: %v", i, err)
		}
	}
	t.Fatal("session never hit the activation ceiling")
}

func TestActiveRoleExpiryCapsAtWindowEnd(t *testing.T) {
	h := newEngineHarness(t, nil)

	h.clock.Set(time.Date(2024, 6, 11, 23, 0, 0, 0, time.UTC))
	s := h.session(t, "grace", "grace-secret", "night-auditor")

	a := s.Active[0]
	want := time.Date(2024, 6, 12, 6, 0, 0, 0, time.UTC)
	if !a.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want window end %v", a.ExpiresAt, want)
	}
}

func TestReaddActiveRoleIsInert(t *testing.T) {
	h := newEngineHarness(t, nil)

	s := h.session(t, "alice", "alice-secret")
	if got := h.engine.MetricsSnapshot().Counters[MetricRoleActivated]; got != 0 {
		t.Fatalf("activated counter = %d, want 0", got)
	}

	// Re-adding the creation-time role must not be recorded as a new
	// activation.
	h.clock.Advance(time.Minute)
	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if len(s.Active) != 1 {
		t.Fatalf("active = %v", s.ActiveNames())
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRoleActivated]; got != 0 {
		t.Fatalf("activated counter = %d, want 0", got)
	}
	if !s.LastAccess.Equal(h.clock.Now()) {
		t.Fatalf("last access = %v, want %v", s.LastAccess, h.clock.Now())
	}

	// A genuine activation still counts.
	if err := h.engine.DropActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := h.engine.AddActiveRole(context.Background(), s, "manager"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRoleActivated]; got != 1 {
		t.Fatalf("activated counter = %d, want 1", got)
	}
}

func TestAddActiveRoleHonorsActivationCeiling(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.ActivateOnCreate = false
	})

	s := h.session(t, "oscar", "oscar-secret")
	if err := h.engine.AddActiveRole(context.Background(), s, "analyst"); err != nil {
		t.Fatalf("add analyst: %v", err)
	}

	// batch-runner caps the active set at one role.
	err := h.engine.AddActiveRole(context.Background(), s, "batch-runner")
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Validity != constraint.MaxActivationsExceeded {
		t.Fatalf("err = %v, want MaxActivationsExceeded", err)
	}

	if err := h.engine.DropActiveRole(context.Background(), s, "analyst"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := h.engine.AddActiveRole(context.Background(), s, "batch-runner"); err != nil {
		t.Fatalf("add with room: %v", err)
	}
	if !s.IsActive("batch-runner") {
		t.Fatalf("active = %v", s.ActiveNames())
	}
}
