package goRBAC

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine.
const (
	AuditSessionCreate  = "session.create"
	AuditSessionDenied  = "session.denied"
	AuditSessionExpire  = "session.expire"
	AuditSessionEnd     = "session.end"
	AuditSessionResume  = "session.resume"
	AuditRoleActivate   = "role.activate"
	AuditRoleDeactivate = "role.deactivate"
	AuditAccessCheck    = "access.check"
	AuditAdminAssign    = "admin.assign"
	AuditAdminDeassign  = "admin.deassign"
	AuditAdminGrant     = "admin.grant"
	AuditAdminRevoke    = "admin.revoke"
	AuditAdminInherit   = "admin.inherit"
	AuditAdminUninherit = "admin.uninherit"
	AuditAdminScopeDeny = "admin.scope_denied"
	AuditPolicyReload   = "policy.reload"
)

// AuditEvent describes one engine decision for the audit trail. Fields
// irrelevant to an event type stay empty and are omitted from JSON.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	Object    string            `json:"object,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives engine audit events. Emit must never block longer
// than the context allows; the engine treats the sink as fire-and-forget
// and no operation fails because a sink fails.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel for custom consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit forwards the event, giving up when the context is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the consuming end of the channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes events as newline-delimited JSON.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps a writer. The sink serializes writes itself, so
// the writer needs no locking of its own.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit marshals and writes the event. Marshal and write failures are
// swallowed; audit must not fail the operation that produced the event.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
