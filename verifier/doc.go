// Package verifier provides an in-memory argon2id credential verifier
// suitable for tests, examples, and deployments that keep their own
// account records.
//
// The verifier is one implementation of the engine's credential
// collaborator. It stores PHC-encoded argon2id hashes plus a minimal
// password policy per account: an optional expiry date and a grace
// login allowance once the password has expired. Binds succeed inside
// the warning window but carry the policy conditions as session
// warnings, matching how directory servers surface expiring-password
// and grace-login controls.
//
// # What this package must NOT do
//
//   - Decide authorization. A successful bind proves the credential,
//     nothing more.
//   - Lock accounts or rate-limit. Callers own abuse controls.
package verifier
