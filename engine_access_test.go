package goRBAC

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestCheckAccessInheritsThroughHierarchy(t *testing.T) {
	h := newEngineHarness(t, nil)

	// report.read is granted to analyst; alice holds manager, a senior
	// of analyst.
	s := h.session(t, "alice", "alice-secret")
	ok, err := h.engine.CheckAccess(context.Background(), s, "report", "read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatal("manager should inherit analyst's grant")
	}

	ok, err = h.engine.CheckAccess(context.Background(), s, "trade", "execute")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("manager is not in trade.execute's authorized set")
	}
}

func TestCheckAccessDirectGrant(t *testing.T) {
	h := newEngineHarness(t, nil)

	s := h.session(t, "frank", "frank-secret")
	ok, err := h.engine.CheckAccess(context.Background(), s, "report", "read")
	if err != nil || !ok {
		t.Fatalf("direct grant: ok=%v err=%v", ok, err)
	}
}

func TestCheckAccessValidatesInput(t *testing.T) {
	h := newEngineHarness(t, nil)
	s := h.session(t, "alice", "alice-secret")

	if _, err := h.engine.CheckAccess(context.Background(), s, "", "read"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty object: %v", err)
	}
	if _, err := h.engine.CheckAccess(context.Background(), s, "report", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty operation: %v", err)
	}
	if _, err := h.engine.CheckAccess(context.Background(), s, "missing", "op"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("unknown permission: %v", err)
	}
}

func TestCheckAccessDoesNotRefreshActivity(t *testing.T) {
	h := newEngineHarness(t, nil)
	s := h.session(t, "alice", "alice-secret")

	// Repeated checks never move LastAccess, so inactivity still
	// accumulates underneath them.
	for i := 0; i < 5; i++ {
		h.clock.Advance(5 * time.Minute)
		if ok, err := h.engine.CheckAccess(context.Background(), s, "report", "read"); err != nil || !ok {
			t.Fatalf("round %d: ok=%v err=%v", i, ok, err)
		}
	}
	h.clock.Advance(6 * time.Minute)
	if _, err := h.engine.CheckAccess(context.Background(), s, "report", "read"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestCheckAccessSkipsLapsedActivation(t *testing.T) {
	h := newEngineHarness(t, nil)

	h.clock.Set(time.Date(2024, 6, 11, 23, 0, 0, 0, time.UTC))
	h.store.mu.Lock()
	p := h.store.perms["report.read"]
	p.Roles = append(p.Roles, "night-auditor")
	h.store.perms["report.read"] = p
	h.store.mu.Unlock()

	s := h.session(t, "grace", "grace-secret", "night-auditor")
	if ok, _ := h.engine.CheckAccess(context.Background(), s, "report", "read"); !ok {
		t.Fatal("in-window activation should allow")
	}

	// Move well past the 06:00 activation expiry while keeping the
	// session itself alive with role churn.
	for h.clock.Now().Hour() != 7 {
		h.clock.Advance(20 * time.Minute)
		if err := h.engine.DropActiveRole(context.Background(), s, "none"); err != nil {
			t.Fatalf("keepalive: %v", err)
		}
	}

	ok, err := h.engine.CheckAccess(context.Background(), s, "report", "read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("lapsed activation should not authorize")
	}
	// Lapsed, not pruned.
	if !s.IsActive("night-auditor") {
		t.Fatal("lapsed activation should stay on the session")
	}
}

func TestAuthorizedRoleSet(t *testing.T) {
	h := newEngineHarness(t, nil)

	got, err := h.engine.AuthorizedRoleSet(context.Background(), "report", "read")
	if err != nil {
		t.Fatalf("authorized role set: %v", err)
	}
	want := []string{"analyst", "ceo", "manager"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := h.engine.AuthorizedRoleSet(context.Background(), "missing", "op"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("unknown permission: %v", err)
	}
}

func TestAuthorizedRoleSetToleratesGhostGrant(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.store.mu.Lock()
	p := h.store.perms["report.read"]
	p.Roles = append(p.Roles, "ghost")
	h.store.perms["report.read"] = p
	h.store.mu.Unlock()

	got, err := h.engine.AuthorizedRoleSet(context.Background(), "report", "read")
	if err != nil {
		t.Fatalf("authorized role set: %v", err)
	}
	want := []string{"analyst", "ceo", "ghost", "manager"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSessionRolesAndPermissions(t *testing.T) {
	h := newEngineHarness(t, nil)
	s := h.session(t, "alice", "alice-secret")

	roles, err := h.engine.SessionRoles(context.Background(), s)
	if err != nil {
		t.Fatalf("session roles: %v", err)
	}
	if !reflect.DeepEqual(roles, []string{"manager"}) {
		t.Fatalf("roles = %v", roles)
	}

	perms, err := h.engine.SessionPermissions(context.Background(), s)
	if err != nil {
		t.Fatalf("session permissions: %v", err)
	}
	if len(perms) != 1 || perms[0].ID() != "report.read" {
		t.Fatalf("perms = %+v", perms)
	}
}
