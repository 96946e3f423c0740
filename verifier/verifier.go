package verifier

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"

	goRBAC "github.com/MrEthical07/goRBAC"
	"github.com/MrEthical07/goRBAC/session"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minSecretBytes        = 8
	algorithmID           = "argon2id"
)

// Sentinel errors for the verifier. ErrBadCredential deliberately does
// not distinguish unknown user from wrong secret.
var (
	ErrBadCredential   = errors.New("verifier: bad credential")
	ErrPasswordExpired = errors.New("verifier: password expired")
	ErrWeakSecret      = errors.New("verifier: secret too short")
)

// Params are the argon2id cost parameters used when hashing.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns moderate interactive-login costs.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Policy is the per-account password policy the verifier enforces.
// Zero values disable each control.
type Policy struct {
	// ExpiresAt is when the password stops being valid. Binds after
	// this instant consume grace logins, if any remain.
	ExpiresAt time.Time
	// WarnBefore is how far ahead of ExpiresAt binds start carrying a
	// password-expiring warning.
	WarnBefore time.Duration
	// GraceLogins is how many binds are honored after expiry. Each
	// successful post-expiry bind decrements it.
	GraceLogins int
}

type account struct {
	hash   string
	policy Policy
}

// Verifier implements [goRBAC.CredentialVerifier] against an in-memory
// account table with argon2id hashing. Safe for concurrent use.
type Verifier struct {
	params Params
	clock  func() time.Time

	mu       sync.Mutex
	accounts map[string]*account
}

// New builds a verifier with the given cost parameters.
func New(params Params) (*Verifier, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return &Verifier{
		params:   params,
		clock:    time.Now,
		accounts: make(map[string]*account),
	}, nil
}

// SetClock overrides the time source. Test hook.
func (v *Verifier) SetClock(clock func() time.Time) {
	v.clock = clock
}

// SetCredential hashes and stores a secret for userID under the given
// policy, replacing any previous credential.
func (v *Verifier) SetCredential(userID, secret string, policy Policy) error {
	if userID == "" {
		return errors.New("verifier: empty user id")
	}
	hash, err := v.hash(secret)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.accounts[userID] = &account{hash: hash, policy: policy}
	v.mu.Unlock()
	return nil
}

// RemoveCredential drops an account. Removing an unknown account is a
// no-op.
func (v *Verifier) RemoveCredential(userID string) {
	v.mu.Lock()
	delete(v.accounts, userID)
	v.mu.Unlock()
}

// Bind proves the secret for userID. A bind inside the expiry warning
// window succeeds with a password-expiring warning; a bind after expiry
// consumes one grace login and warns, until none remain, at which point
// it fails with ErrPasswordExpired.
func (v *Verifier) Bind(ctx context.Context, userID, secret string) (goRBAC.BindResult, error) {
	if err := ctx.Err(); err != nil {
		return goRBAC.BindResult{}, err
	}

	v.mu.Lock()
	acct, ok := v.accounts[userID]
	var hash string
	if ok {
		hash = acct.hash
	}
	v.mu.Unlock()

	if !ok {
		// Burn comparable work for unknown users so timing does not
		// reveal account existence.
		argon2.IDKey([]byte(secret), make([]byte, v.params.SaltLength),
			v.params.Time, v.params.Memory, v.params.Parallelism, v.params.KeyLength)
		return goRBAC.BindResult{}, ErrBadCredential
	}

	match, err := verifyPHC(secret, hash)
	if err != nil {
		return goRBAC.BindResult{}, err
	}
	if !match {
		return goRBAC.BindResult{}, ErrBadCredential
	}

	return v.applyPolicy(userID)
}

func (v *Verifier) applyPolicy(userID string) (goRBAC.BindResult, error) {
	now := v.clock()

	v.mu.Lock()
	defer v.mu.Unlock()

	acct, ok := v.accounts[userID]
	if !ok {
		return goRBAC.BindResult{}, ErrBadCredential
	}
	p := &acct.policy

	if p.ExpiresAt.IsZero() {
		return bindResult(nil), nil
	}

	if now.Before(p.ExpiresAt) {
		if p.WarnBefore > 0 && !now.Before(p.ExpiresAt.Add(-p.WarnBefore)) {
			left := p.ExpiresAt.Sub(now).Round(time.Minute)
			return bindResult([]goRBAC.Warning{{
				Code:   session.WarnPasswordExpiring,
				Detail: fmt.Sprintf("password expires in %s", left),
			}}), nil
		}
		return bindResult(nil), nil
	}

	if p.GraceLogins <= 0 {
		return goRBAC.BindResult{}, ErrPasswordExpired
	}
	p.GraceLogins--
	return bindResult([]goRBAC.Warning{{
		Code:   session.WarnGraceLogin,
		Detail: fmt.Sprintf("password expired, %d grace logins remaining", p.GraceLogins),
	}}), nil
}

func bindResult(w []goRBAC.Warning) goRBAC.BindResult {
	return goRBAC.BindResult{Warnings: w}
}

/* ==== PHC ENCODING ==== */

func (v *Verifier) hash(secret string) (string, error) {
	// Secret bytes are used exactly as provided, no normalization.
	if len(secret) < minSecretBytes {
		return "", ErrWeakSecret
	}

	salt := make([]byte, v.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt,
		v.params.Time, v.params.Memory, v.params.Parallelism, v.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		v.params.Memory, v.params.Time, v.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func verifyPHC(secret, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), parsed.salt,
		parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}
	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, errors.New("invalid hash")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}
	return &params, nil
}

func validateParams(p Params) error {
	if p.Memory < minMemoryKB {
		return errors.New("verifier: memory must be >= 8192 KB")
	}
	if p.Time < minTimeCost {
		return errors.New("verifier: time must be >= 1")
	}
	if p.Parallelism < minParallelism {
		return errors.New("verifier: parallelism must be >= 1")
	}
	if p.SaltLength < minSaltLength {
		return errors.New("verifier: salt length must be >= 16")
	}
	if p.KeyLength < minKeyLength {
		return errors.New("verifier: key length must be >= 16")
	}
	return nil
}
