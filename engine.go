package goRBAC

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRBAC/constraint"
	"github.com/MrEthical07/goRBAC/hierarchy"
	"github.com/MrEthical07/goRBAC/session"
	"github.com/MrEthical07/goRBAC/sod"
	"github.com/MrEthical07/goRBAC/token"
)

// Engine is the authorization engine: role hierarchy, separation-of-duty
// policy, temporal constraints, and session lifecycle behind one façade.
// Build it with [Builder]; after Build every method is safe for concurrent
// use, except that operations on one *Session must be serialized by its
// owner.
type Engine struct {
	config   Config
	store    EntityStore
	verifier CredentialVerifier

	roleGraph  *hierarchy.Graph
	adminGraph *hierarchy.Graph
	ouUser     *hierarchy.Graph
	ouPerm     *hierarchy.Graph

	// policyMu guards the two lookup maps below, which are swapped
	// wholesale on reload so readers never see a half-built policy.
	policyMu       sync.RWMutex
	roleTemplates  map[string]constraint.Constraint
	adminTemplates map[string]constraint.Constraint
	adminPools     map[string]poolPair

	sodRegistry *sod.Registry
	sessions    *session.Store
	audit       *auditDispatcher
	metrics     *Metrics
	tokens      *token.Manager
	clock       func() time.Time
}

type poolPair struct {
	osu map[string]struct{}
	osp map[string]struct{}
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's metric registry for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ReloadPolicy rebuilds the hierarchy graphs, org-unit trees, SoD sets,
// and constraint template caches from the entity store. Each structure is
// swapped atomically; concurrent readers see either the old policy or the
// new one, never a mixture within one lookup.
func (e *Engine) ReloadPolicy(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	roles, err := e.store.LoadRoles(ctx)
	if err != nil {
		return e.storeErr("load roles", err)
	}
	adminRoles, err := e.store.LoadAdminRoles(ctx)
	if err != nil {
		return e.storeErr("load admin roles", err)
	}
	userOUs, err := e.store.LoadOrgUnits(ctx, UserOU)
	if err != nil {
		return e.storeErr("load user org units", err)
	}
	permOUs, err := e.store.LoadOrgUnits(ctx, PermOU)
	if err != nil {
		return e.storeErr("load perm org units", err)
	}
	ssd, err := e.store.LoadSSDSets(ctx)
	if err != nil {
		return e.storeErr("load ssd sets", err)
	}
	dsd, err := e.store.LoadDSDSets(ctx)
	if err != nil {
		return e.storeErr("load dsd sets", err)
	}

	roleNodes := make([]hierarchy.Node, 0, len(roles))
	roleTemplates := make(map[string]constraint.Constraint, len(roles))
	for _, r := range roles {
		roleNodes = append(roleNodes, hierarchy.Node{Name: r.Name, Parents: r.Parents})
		roleTemplates[r.Name] = r.Constraint
	}
	if err := e.roleGraph.Rebuild(roleNodes); err != nil {
		return fmt.Errorf("rebuild role graph: %w", err)
	}

	adminNodes := make([]hierarchy.Node, 0, len(adminRoles))
	adminTemplates := make(map[string]constraint.Constraint, len(adminRoles))
	adminPools := make(map[string]poolPair, len(adminRoles))
	for _, r := range adminRoles {
		adminNodes = append(adminNodes, hierarchy.Node{Name: r.Name, Parents: r.Parents})
		adminTemplates[r.Name] = r.Constraint
		adminPools[r.Name] = poolPair{
			osu: toSet(r.OSUPool),
			osp: toSet(r.OSPPool),
		}
	}
	if err := e.adminGraph.Rebuild(adminNodes); err != nil {
		return fmt.Errorf("rebuild admin graph: %w", err)
	}

	if err := e.ouUser.Rebuild(ouNodes(userOUs)); err != nil {
		return fmt.Errorf("rebuild user org unit tree: %w", err)
	}
	if err := e.ouPerm.Rebuild(ouNodes(permOUs)); err != nil {
		return fmt.Errorf("rebuild perm org unit tree: %w", err)
	}

	if err := e.sodRegistry.ReplaceSSD(ssd); err != nil {
		return fmt.Errorf("replace ssd sets: %w", err)
	}
	if err := e.sodRegistry.ReplaceDSD(dsd); err != nil {
		return fmt.Errorf("replace dsd sets: %w", err)
	}

	e.policyMu.Lock()
	e.roleTemplates = roleTemplates
	e.adminTemplates = adminTemplates
	e.adminPools = adminPools
	e.policyMu.Unlock()

	e.metricInc(MetricPolicyReload)
	e.emit(ctx, AuditEvent{
		EventType: AuditPolicyReload,
		Success:   true,
		Metadata: map[string]string{
			"roles":       fmt.Sprint(len(roles)),
			"admin_roles": fmt.Sprint(len(adminRoles)),
			"ssd_sets":    fmt.Sprint(len(ssd)),
			"dsd_sets":    fmt.Sprint(len(dsd)),
		},
	})
	return nil
}

// Ascendants exposes the transitive seniors of a role from the current
// hierarchy snapshot.
func (e *Engine) Ascendants(role string) (map[string]struct{}, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.roleGraph.Ascendants(role)
}

// Descendants exposes the transitive juniors of a role from the current
// hierarchy snapshot.
func (e *Engine) Descendants(role string) (map[string]struct{}, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.roleGraph.Descendants(role)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) storeErr(op string, err error) error {
	e.metricInc(MetricStoreError)
	return fmt.Errorf("%s: %w", op, err)
}

func (e *Engine) roleTemplate(name string, admin bool) constraint.Constraint {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	if admin {
		return e.adminTemplates[name]
	}
	return e.roleTemplates[name]
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func ouNodes(ous []OrgUnit) []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(ous))
	for _, ou := range ous {
		out = append(out, hierarchy.Node{Name: ou.Name, Parents: ou.Parents})
	}
	return out
}
