// Package token issues and parses signed hand-off tokens for engine
// sessions.
//
// A hand-off token lets a service that created a session pass a compact
// proof to another service that shares the same session registry. The
// token carries the session ID, the user ID, and the role names that
// were active at issue time. The receiving side parses the token, then
// loads the authoritative session from the registry; the role claim is
// a hint for routing and display, never a substitute for the registry
// copy.
//
// Ed25519 is the default signing method. HS256 is supported for
// single-tenant deployments that prefer a shared secret. Key rotation
// works through a kid header resolved against a verify-key set.
package token
