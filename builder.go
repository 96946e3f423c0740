package goRBAC

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRBAC/hierarchy"
	"github.com/MrEthical07/goRBAC/session"
	"github.com/MrEthical07/goRBAC/sod"
	"github.com/MrEthical07/goRBAC/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; the one
// I/O step is the initial policy load during [Builder.Build].
type Builder struct {
	config Config
	redis  *redis.Client

	store    EntityStore
	verifier CredentialVerifier
	sink     AuditSink
	tokens   *token.Manager
	clock    func() time.Time

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the optional session registry.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithEntityStore supplies the storage collaborator. Required.
func (b *Builder) WithEntityStore(store EntityStore) *Builder {
	b.store = store
	return b
}

// WithCredentialVerifier supplies the bind collaborator. Without one only
// trusted session creation is available.
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink supplies the audit collaborator. Without one, audit events
// go to a [NoOpSink] when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithTokenManager supplies the hand-off token collaborator. Without one
// [Engine.IssueHandoff] and [Engine.ResumeSession] are unavailable.
func (b *Builder) WithTokenManager(m *token.Manager) *Builder {
	b.tokens = m
	return b
}

// WithClock overrides the engine's time source. Tests use this to pin
// constraint evaluation to a known instant.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration, performs the initial policy load from
// the entity store, and returns the ready engine. A builder builds once.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("entity store is required")
	}
	if b.config.Store.RegistrySessions && b.redis == nil {
		return nil, errors.New("session registry requires a redis client")
	}

	e := &Engine{
		config:      b.config,
		store:       b.store,
		verifier:    b.verifier,
		roleGraph:   hierarchy.New(),
		adminGraph:  hierarchy.New(),
		ouUser:      hierarchy.New(),
		ouPerm:      hierarchy.New(),
		sodRegistry: sod.NewRegistry(),
		metrics:     NewMetrics(b.config.Metrics),
		tokens:      b.tokens,
		clock:       b.clock,
	}
	if b.redis != nil {
		e.sessions = session.NewStore(b.redis, b.config.Store.KeyPrefix)
	}
	e.audit = newAuditDispatcher(b.config.Audit, b.sink)

	if err := e.ReloadPolicy(ctx); err != nil {
		e.Close()
		return nil, err
	}

	b.built = true
	return e, nil
}
