package goRBAC

import (
	"errors"
	"time"
)

// Config defines engine behavior. Construct with [DefaultConfig], adjust,
// and hand to [Builder.WithConfig]; the engine treats its copy as
// immutable after Build.
type Config struct {
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
	Admin   AdminConfig
	Store   StoreConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds session lifetimes and the activation policy at
// creation time.
type SessionConfig struct {
	// TTL caps a session's total life regardless of constraint windows.
	TTL time.Duration

	// DefaultTimeoutMinutes is the inactivity timeout applied when the
	// user-level constraint sets none. Zero disables the fallback.
	DefaultTimeoutMinutes int

	// ActivateOnCreate activates every assigned role whose constraint
	// passes when CreateSession is called without an explicit role list.
	// When false such calls produce an Authenticated session with an
	// empty active set.
	ActivateOnCreate bool

	// MaxPerUser caps parked sessions per user in the registry. Zero
	// means unlimited. Only enforced when a registry is configured.
	MaxPerUser int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events instead of blocking the calling operation
	// when the buffer is full. Dropped events are counted.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
ADMIN CONFIG
====================================
*/

// AdminConfig controls the administrative (ARBAC) surface.
type AdminConfig struct {
	// Enabled gates every administrative operation. A disabled admin
	// surface fails them with ErrAdminScope.
	Enabled bool

	// UnscopedInheritance lets any active admin role mutate hierarchy
	// edges without an org-unit check. Edge mutations have no single
	// target org-unit, so the alternative is requiring the acting role's
	// OSU pool to contain the root unit.
	UnscopedInheritance bool
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the optional Redis session registry.
type StoreConfig struct {
	// KeyPrefix namespaces registry keys.
	KeyPrefix string

	// RegistrySessions parks every created session in the registry and
	// deletes it on termination.
	RegistrySessions bool
}

// DefaultConfig returns the configuration the Builder starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:                   8 * time.Hour,
			DefaultTimeoutMinutes: 30,
			ActivateOnCreate:      true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Admin: AdminConfig{
			Enabled: true,
		},
		Store: StoreConfig{
			KeyPrefix: "gorbac",
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All sections are value types today; the copy is the clone.
	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if cfg.Session.DefaultTimeoutMinutes < 0 {
		return errors.New("default timeout cannot be negative")
	}
	if cfg.Session.MaxPerUser < 0 {
		return errors.New("max sessions per user cannot be negative")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}
