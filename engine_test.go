package goRBAC

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/sod"
)

// memStore is an in-memory EntityStore used across the engine tests.
type memStore struct {
	mu         sync.Mutex
	users      map[string]User
	roles      map[string]Role
	adminRoles map[string]AdminRole
	perms      map[string]Permission
	ssd        []sod.Set
	dsd        []sod.Set
	userOUs    []OrgUnit
	permOUs    []OrgUnit

	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]User),
		roles:      make(map[string]Role),
		adminRoles: make(map[string]AdminRole),
		perms:      make(map[string]Permission),
	}
}

func (m *memStore) takeFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) LoadUser(_ context.Context, id string) (User, error) {
	if err := m.takeFailure(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) LoadRole(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) LoadRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) LoadAdminRole(_ context.Context, name string) (AdminRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adminRoles[name]
	if !ok {
		return AdminRole{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) LoadAdminRoles(context.Context) ([]AdminRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AdminRole, 0, len(m.adminRoles))
	for _, r := range m.adminRoles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) LoadPermission(_ context.Context, object, operation string) (Permission, error) {
	if err := m.takeFailure(); err != nil {
		return Permission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[object+"."+operation]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) LoadPermissions(context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) LoadSSDSets(context.Context) ([]sod.Set, error) { return m.ssd, nil }
func (m *memStore) LoadDSDSets(context.Context) ([]sod.Set, error) { return m.dsd, nil }

func (m *memStore) LoadOrgUnits(_ context.Context, t OrgUnitType) ([]OrgUnit, error) {
	if t == PermOU {
		return m.permOUs, nil
	}
	return m.userOUs, nil
}

func (m *memStore) SaveRoleEdge(_ context.Context, parent, child string, admin bool) error {
	return m.takeFailure()
}

func (m *memStore) DeleteRoleEdge(_ context.Context, parent, child string, admin bool) error {
	return m.takeFailure()
}

func (m *memStore) SaveAssignment(_ context.Context, ur UserRole) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[ur.UserID]
	if !ok {
		return ErrNotFound
	}
	u.Roles = append(u.Roles, ur)
	m.users[ur.UserID] = u
	return nil
}

func (m *memStore) DeleteAssignment(_ context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	kept := u.Roles[:0]
	found := false
	for _, ur := range u.Roles {
		if ur.Role == role {
			found = true
			continue
		}
		kept = append(kept, ur)
	}
	if !found {
		return ErrNotFound
	}
	u.Roles = kept
	m.users[userID] = u
	return nil
}

func (m *memStore) SaveGrant(_ context.Context, object, operation, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[object+"."+operation]
	if !ok {
		return ErrNotFound
	}
	p.Roles = append(p.Roles, role)
	m.perms[object+"."+operation] = p
	return nil
}

func (m *memStore) DeleteGrant(_ context.Context, object, operation, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[object+"."+operation]
	if !ok {
		return ErrNotFound
	}
	kept := p.Roles[:0]
	for _, r := range p.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	p.Roles = kept
	m.perms[object+"."+operation] = p
	return nil
}

// memVerifier proves secrets against a plain map.
type memVerifier struct {
	secrets  map[string]string
	warnings []Warning
}

func (v *memVerifier) Bind(_ context.Context, userID, secret string) (BindResult, error) {
	want, ok := v.secrets[userID]
	if !ok || want != secret {
		return BindResult{}, fmt.Errorf("bind rejected for %s", userID)
	}
	return BindResult{Warnings: v.warnings}, nil
}

// testClock is a mutable time source the tests advance by hand.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Tuesday 2024-06-11 10:00 UTC.
	return &testClock{now: time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fixtureStore builds the policy the engine scenarios share: a three-level
// hierarchy, an SSD and a DSD set, two org-unit trees, an office-hours
// role, and users exercising each corner.
func fixtureStore() *memStore {
	st := newMemStore()

	st.roles["ceo"] = Role{Name: "ceo"}
	st.roles["manager"] = Role{Name: "manager", Parents: []string{"ceo"}}
	st.roles["analyst"] = Role{Name: "analyst", Parents: []string{"manager"}}
	st.roles["trader"] = Role{Name: "trader"}
	st.roles["risk-officer"] = Role{Name: "risk-officer"}
	st.roles["cashier"] = Role{Name: "cashier"}
	st.roles["auditor"] = Role{Name: "auditor"}
	st.roles["batch-runner"] = Role{
		Name: "batch-runner",
		Constraint: constraint.Constraint{
			Name:           "batch-runner",
			MaxActivations: 1,
		},
	}
	st.roles["night-auditor"] = Role{
		Name: "night-auditor",
		Constraint: constraint.Constraint{
			Name:      "night-auditor",
			BeginTime: 22 * 60,
			EndTime:   6 * 60,
		},
	}

	st.adminRoles["help-admin"] = AdminRole{
		Role:    Role{Name: "help-admin"},
		OSUPool: []string{"eng"},
		OSPPool: []string{"app"},
	}
	st.adminRoles["super-admin"] = AdminRole{
		Role:    Role{Name: "super-admin"},
		OSUPool: []string{"org"},
		OSPPool: []string{"app"},
	}

	st.perms["report.read"] = Permission{
		Object: "report", Operation: "read", OrgUnit: "app", Roles: []string{"analyst"},
	}
	st.perms["trade.execute"] = Permission{
		Object: "trade", Operation: "execute", OrgUnit: "app", Roles: []string{"trader"},
	}

	st.ssd = []sod.Set{{
		Name: "payments", Members: []string{"cashier", "auditor"}, Cardinality: 2,
	}}
	st.dsd = []sod.Set{{
		Name: "trading", Members: []string{"trader", "risk-officer"}, Cardinality: 2,
	}}

	st.userOUs = []OrgUnit{
		{Name: "org", Type: UserOU},
		{Name: "eng", Type: UserOU, Parents: []string{"org"}},
		{Name: "fin", Type: UserOU, Parents: []string{"org"}},
	}
	st.permOUs = []OrgUnit{
		{Name: "app", Type: PermOU},
		{Name: "app-reports", Type: PermOU, Parents: []string{"app"}},
	}

	st.users["alice"] = User{
		ID: "alice", OrgUnit: "eng",
		Roles: []UserRole{{UserID: "alice", Role: "manager"}},
	}
	st.users["bob"] = User{
		ID: "bob", OrgUnit: "fin",
		Roles: []UserRole{
			{UserID: "bob", Role: "trader"},
			{UserID: "bob", Role: "risk-officer"},
		},
	}
	st.users["carol"] = User{
		ID: "carol", OrgUnit: "eng",
		Roles: []UserRole{{UserID: "carol", Role: "cashier"}},
	}
	st.users["dave"] = User{
		ID: "dave", OrgUnit: "eng",
		AdminRoles: []UserAdminRole{{UserID: "dave", Role: "help-admin"}},
	}
	st.users["root"] = User{
		ID: "root", OrgUnit: "org",
		AdminRoles: []UserAdminRole{{UserID: "root", Role: "super-admin"}},
	}
	st.users["frank"] = User{
		ID: "frank", OrgUnit: "fin",
		Roles: []UserRole{{UserID: "frank", Role: "analyst"}},
	}
	st.users["grace"] = User{
		ID: "grace", OrgUnit: "eng",
		Roles: []UserRole{{UserID: "grace", Role: "night-auditor"}},
	}
	st.users["oscar"] = User{
		ID: "oscar", OrgUnit: "eng",
		Roles: []UserRole{
			{UserID: "oscar", Role: "analyst"},
			{UserID: "oscar", Role: "batch-runner"},
		},
	}

	return st
}

func testSecrets() map[string]string {
	return map[string]string{
		"alice": "alice-secret",
		"bob":   "bob-secret",
		"carol": "carol-secret",
		"dave":  "dave-secret",
		"root":  "root-secret",
		"frank": "frank-secret",
		"grace": "grace-secret",
		"oscar": "oscar-secret",
	}
}

type engineHarness struct {
	engine *Engine
	store  *memStore
	clock  *testClock
}

func newEngineHarness(t *testing.T, mutate func(*Config)) *engineHarness {
	t.Helper()

	st := fixtureStore()
	clock := newTestClock()

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New().
		WithConfig(cfg).
		WithEntityStore(st).
		WithCredentialVerifier(&memVerifier{secrets: testSecrets()}).
		WithClock(clock.Now).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)

	return &engineHarness{engine: e, store: st, clock: clock}
}

func (h *engineHarness) session(t *testing.T, userID, secret string, roles ...string) *Session {
	t.Helper()
	s, err := h.engine.CreateSession(context.Background(), userID, secret, roles...)
	if err != nil {
		t.Fatalf("create session for %s: %v", userID, err)
	}
	return s
}
