package internaldefs

import (
	goRBAC "github.com/MrEthical07/goRBAC"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   goRBAC.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   goRBAC.MetricID
	Name string
	Help string
}

// CounterDefs is the full set of exported counters, in snapshot order.
var CounterDefs = []CounterDef{
	{ID: goRBAC.MetricSessionCreated, Name: "gorbac_session_created_total", Help: "Created sessions."},
	{ID: goRBAC.MetricSessionDenied, Name: "gorbac_session_denied_total", Help: "Session creation attempts denied."},
	{ID: goRBAC.MetricSessionExpired, Name: "gorbac_session_expired_total", Help: "Sessions expired on revalidation."},
	{ID: goRBAC.MetricSessionEnded, Name: "gorbac_session_ended_total", Help: "Sessions ended by their owner."},
	{ID: goRBAC.MetricSessionResumed, Name: "gorbac_session_resumed_total", Help: "Sessions resumed from a hand-off token."},
	{ID: goRBAC.MetricRoleActivated, Name: "gorbac_role_activated_total", Help: "Role activations."},
	{ID: goRBAC.MetricRoleDeactivated, Name: "gorbac_role_deactivated_total", Help: "Role deactivations."},
	{ID: goRBAC.MetricAccessAllowed, Name: "gorbac_access_allowed_total", Help: "Access checks that allowed."},
	{ID: goRBAC.MetricAccessDenied, Name: "gorbac_access_denied_total", Help: "Access checks that denied."},
	{ID: goRBAC.MetricConstraintViolation, Name: "gorbac_constraint_violation_total", Help: "Temporal constraint violations."},
	{ID: goRBAC.MetricSSDViolation, Name: "gorbac_ssd_violation_total", Help: "Static separation-of-duty rejections."},
	{ID: goRBAC.MetricDSDViolation, Name: "gorbac_dsd_violation_total", Help: "Dynamic separation-of-duty rejections."},
	{ID: goRBAC.MetricAdminScopeDenied, Name: "gorbac_admin_scope_denied_total", Help: "Administrative operations denied by scope."},
	{ID: goRBAC.MetricAdminMutation, Name: "gorbac_admin_mutation_total", Help: "Administrative mutations applied."},
	{ID: goRBAC.MetricPolicyReload, Name: "gorbac_policy_reload_total", Help: "Policy reloads."},
	{ID: goRBAC.MetricStoreError, Name: "gorbac_store_error_total", Help: "Entity store failures."},
}

// HistogramDefs is the full set of exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: goRBAC.MetricCheckAccessLatency, Name: "gorbac_check_access_latency_seconds", Help: "CheckAccess latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's internal histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OTel instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exposition formats want.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
