package goRBAC

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuildRequiresEntityStore(t *testing.T) {
	_, err := New().Build(context.Background())
	if err == nil || !strings.Contains(err.Error(), "entity store") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildRequiresRedisForRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.RegistrySessions = true

	_, err := New().
		WithConfig(cfg).
		WithEntityStore(newMemStore()).
		Build(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"negative ttl", func(c *Config) { c.Session.TTL = -time.Hour }},
		{"negative timeout", func(c *Config) { c.Session.DefaultTimeoutMinutes = -1 }},
		{"negative session cap", func(c *Config) { c.Session.MaxPerUser = -1 }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := New().
				WithConfig(cfg).
				WithEntityStore(newMemStore()).
				Build(context.Background())
			if err == nil {
				t.Fatal("expected a config validation error")
			}
		})
	}
}

func TestBuilderBuildsOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false

	b := New().WithConfig(cfg).WithEntityStore(fixtureStore())
	e, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close()

	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("second build should fail")
	}
}

func TestBuildRunsInitialPolicyLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false

	e, err := New().WithConfig(cfg).WithEntityStore(fixtureStore()).Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	asc, err := e.Ascendants("analyst")
	if err != nil {
		t.Fatalf("ascendants: %v", err)
	}
	if _, ok := asc["ceo"]; !ok {
		t.Fatalf("hierarchy not loaded: %v", asc)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricPolicyReload] != 1 {
		t.Fatalf("policy reload counter = %d", snap.Counters[MetricPolicyReload])
	}
}

func TestCreateSessionWithoutVerifier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false

	e, err := New().WithConfig(cfg).WithEntityStore(fixtureStore()).Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	if _, err := e.CreateSession(context.Background(), "alice", "x"); err == nil {
		t.Fatal("password login without a verifier should fail")
	}
	if _, err := e.CreateSessionTrusted(context.Background(), "alice"); err != nil {
		t.Fatalf("trusted login: %v", err)
	}
}
