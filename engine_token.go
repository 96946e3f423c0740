package goRBAC

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goRBAC/session"
)

// IssueHandoff signs a hand-off token for a live session so another
// process can resume it through the registry. The session is lazily
// revalidated first; an expired or terminated session cannot mint a
// token.
func (e *Engine) IssueHandoff(ctx context.Context, s *Session) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.tokens == nil {
		return "", fmt.Errorf("%w: no token manager configured", ErrEngineNotReady)
	}
	if err := e.revalidate(ctx, s, e.now()); err != nil {
		return "", err
	}
	return e.tokens.Issue(s)
}

// ResumeSession validates a hand-off token and loads the session it names
// from the registry. The registry copy wins over the token: a session that
// expired, was ended, or was never parked cannot be resumed no matter how
// fresh the token is. The resumed session is revalidated before it is
// returned, so the caller always receives an operable session or an error.
func (e *Engine) ResumeSession(ctx context.Context, tokenStr string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.tokens == nil {
		return nil, fmt.Errorf("%w: no token manager configured", ErrEngineNotReady)
	}
	if e.sessions == nil || !e.config.Store.RegistrySessions {
		return nil, fmt.Errorf("%w: session registry required to resume", ErrEngineNotReady)
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	s, err := e.sessions.Load(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, e.storeErr("load session", err)
	}
	if s.UserID != claims.UID {
		return nil, fmt.Errorf("%w: identity mismatch", ErrTokenInvalid)
	}

	if err := e.revalidate(ctx, s, e.now()); err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionResumed)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionResume,
		UserID:    s.UserID,
		SessionID: s.ID,
		Success:   true,
	})
	return s, nil
}
