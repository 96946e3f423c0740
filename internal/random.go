// Package internal holds unexported helpers shared by the engine.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

const sessionIDBytes = 16

// NewSessionID returns a 128-bit random identifier in compact base64url
// form without padding.
func NewSessionID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidSessionID reports whether a string looks like a NewSessionID
// product: right length, right alphabet.
func ValidSessionID(id string) error {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return err
	}
	if len(raw) != sessionIDBytes {
		return errors.New("session id has wrong length")
	}
	if strings.ContainsAny(id, "+/=") {
		return errors.New("session id not base64url")
	}
	return nil
}
