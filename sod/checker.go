package sod

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrEthical07/goRBAC/hierarchy"
)

// Kind distinguishes static (assignment-time) from dynamic
// (activation-time) separation-of-duty sets.
type Kind uint8

const (
	// Static sets bound how many conflicting roles one user may hold.
	Static Kind = iota
	// Dynamic sets bound how many conflicting roles one session may
	// have active at once.
	Dynamic
)

// String names the kind for logs and audit events.
func (k Kind) String() string {
	if k == Dynamic {
		return "dsd"
	}
	return "ssd"
}

// Set is a separation-of-duty policy: at most Cardinality-1 of Members may
// be held or active together. A cardinality below 2 can never be satisfied
// together with holding any member and is rejected by [Registry.ReplaceSSD]
// and [Registry.ReplaceDSD].
type Set struct {
	Name        string
	Kind        Kind
	Members     []string
	Cardinality int
}

// Violation reports which set a candidate assignment or activation broke.
// It is a result value, not an error; nil means the check passed.
type Violation struct {
	Set  string
	Kind Kind
}

// Expander resolves hierarchy closures for set-membership expansion.
// *hierarchy.Graph satisfies it.
type Expander interface {
	Ascendants(name string) (map[string]struct{}, error)
	Descendants(name string) (map[string]struct{}, error)
}

// Registry holds the process-wide SSD and DSD collections. Reads are
// lock-shared; wholesale replacement during a policy reload is the only
// mutation, so readers never observe a half-updated set.
type Registry struct {
	mu  sync.RWMutex
	ssd []Set
	dsd []Set
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// ReplaceSSD swaps the static set collection atomically.
func (r *Registry) ReplaceSSD(sets []Set) error {
	return r.replace(sets, Static)
}

// ReplaceDSD swaps the dynamic set collection atomically.
func (r *Registry) ReplaceDSD(sets []Set) error {
	return r.replace(sets, Dynamic)
}

func (r *Registry) replace(sets []Set, kind Kind) error {
	cloned := make([]Set, 0, len(sets))
	for _, s := range sets {
		if s.Name == "" {
			return errors.New("sod set with empty name")
		}
		if s.Cardinality < 2 {
			return fmt.Errorf("sod set %q: cardinality %d below 2", s.Name, s.Cardinality)
		}
		if len(s.Members) == 0 {
			return fmt.Errorf("sod set %q: no members", s.Name)
		}
		c := s
		c.Kind = kind
		c.Members = append([]string(nil), s.Members...)
		cloned = append(cloned, c)
	}

	r.mu.Lock()
	if kind == Static {
		r.ssd = cloned
	} else {
		r.dsd = cloned
	}
	r.mu.Unlock()
	return nil
}

// SSDSets returns a copy of the static collection.
func (r *Registry) SSDSets() []Set {
	return r.snapshot(Static)
}

// DSDSets returns a copy of the dynamic collection.
func (r *Registry) DSDSets() []Set {
	return r.snapshot(Dynamic)
}

func (r *Registry) snapshot(kind Kind) []Set {
	r.mu.RLock()
	src := r.ssd
	if kind == Dynamic {
		src = r.dsd
	}
	out := make([]Set, len(src))
	copy(out, src)
	r.mu.RUnlock()
	for i := range out {
		out[i].Members = append([]string(nil), out[i].Members...)
	}
	return out
}

// CheckSSD screens a candidate role assignment. For every static set whose
// hierarchy-expanded membership touches the candidate, the roles of
// assigned plus the candidate that intersect the expansion are counted; a
// count at or above the set's cardinality is a violation. The first
// violating set is returned.
func (r *Registry) CheckSSD(candidate string, assigned []string, g Expander) (*Violation, error) {
	held := append(append(make([]string, 0, len(assigned)+1), assigned...), candidate)
	return r.check(Static, candidate, held, g)
}

// CheckDSD screens a session's would-be active role set, candidate
// included. Same law as CheckSSD applied to activations instead of
// assignments.
func (r *Registry) CheckDSD(active []string, g Expander) (*Violation, error) {
	return r.check(Dynamic, "", active, g)
}

func (r *Registry) check(kind Kind, candidate string, held []string, g Expander) (*Violation, error) {
	r.mu.RLock()
	sets := r.ssd
	if kind == Dynamic {
		sets = r.dsd
	}
	r.mu.RUnlock()

	for _, set := range sets {
		expanded, err := expandMembers(set.Members, g)
		if err != nil {
			return nil, err
		}
		if candidate != "" {
			if _, touches := expanded[candidate]; !touches {
				continue
			}
		}
		count := 0
		seen := make(map[string]struct{}, len(held))
		for _, role := range held {
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			if _, ok := expanded[role]; ok {
				count++
			}
		}
		if count >= set.Cardinality {
			return &Violation{Set: set.Name, Kind: kind}, nil
		}
	}
	return nil, nil
}

// expandMembers unions each member with its ascendants and descendants.
// Members without a node in the hierarchy still count as themselves; a set
// may reference a role that was never linked into the graph.
func expandMembers(members []string, g Expander) (map[string]struct{}, error) {
	expanded := make(map[string]struct{}, len(members)*2)
	for _, m := range members {
		expanded[m] = struct{}{}
		if g == nil {
			continue
		}
		asc, err := g.Ascendants(m)
		if err != nil {
			if errors.Is(err, hierarchy.ErrUnknownRole) {
				continue
			}
			return nil, err
		}
		for name := range asc {
			expanded[name] = struct{}{}
		}
		desc, err := g.Descendants(m)
		if err != nil {
			return nil, err
		}
		for name := range desc {
			expanded[name] = struct{}{}
		}
	}
	return expanded, nil
}
