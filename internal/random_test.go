package internal

import (
	"testing"
)

func TestNewSessionIDShape(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID: %v", err)
		}
		if err := ValidSessionID(id); err != nil {
			t.Fatalf("generated id %q rejected: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidSessionIDRejectsGarbage(t *testing.T) {
	for _, bad := range []string{
		"",
		"short",
		"has/slash+and=pad",
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", // wrong decoded length
	} {
		if err := ValidSessionID(bad); err == nil {
			t.Fatalf("ValidSessionID accepted %q", bad)
		}
	}
}
