// Package strategy defines the independent response-generation strategies
// raced by the dispatcher. A strategy is a function of (prompt, task) that
// returns a response or an error; strategies share no mutable state.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names a strategy.
type Kind string

const (
	KindUltraFast       Kind = "ultra_fast"
	KindStaticKnowledge Kind = "static_knowledge"
	KindBackendFast     Kind = "ollama_fast"
	KindBackendStandard Kind = "ollama_standard"
	KindTemplate        Kind = "template"
	KindHeuristic       Kind = "heuristic"
)

// Built-in priorities. Higher values launch and log first.
const (
	PriorityUltraFast       = 10
	PriorityStaticKnowledge = 5
	PriorityBackendFast     = 3
	PriorityBackendStandard = 2
	PriorityTemplate        = 1
	PriorityHeuristic       = 0
)

// Func produces a response for prompt and task. It must honor ctx and keep
// no state shared with other strategies.
type Func func(ctx context.Context, prompt, task string) (string, error)

// Descriptor pairs a strategy with its identity and priority.
type Descriptor struct {
	Kind     Kind
	Priority int
	Run      Func
}

// Set is an immutable, priority-ordered list of strategies.
type Set struct {
	items []Descriptor
}

// NewSet validates ds and orders it by priority descending. Equal
// priorities keep their given order.
func NewSet(ds ...Descriptor) (*Set, error) {
	if len(ds) == 0 {
		return nil, errors.New("strategy set is empty")
	}
	seen := make(map[Kind]struct{}, len(ds))
	items := make([]Descriptor, 0, len(ds))
	for i, d := range ds {
		if strings.TrimSpace(string(d.Kind)) == "" {
			return nil, fmt.Errorf("strategy %d has no kind", i)
		}
		if d.Run == nil {
			return nil, fmt.Errorf("strategy %s has no func", d.Kind)
		}
		if _, dup := seen[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate strategy %s", d.Kind)
		}
		seen[d.Kind] = struct{}{}
		items = append(items, d)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority > items[j].Priority })
	return &Set{items: items}, nil
}

// MustSet is NewSet that panics on error. Intended for static wiring.
func MustSet(ds ...Descriptor) *Set {
	s, err := NewSet(ds...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of strategies.
func (s *Set) Len() int { return len(s.items) }

// Descriptors returns a priority-ordered copy.
func (s *Set) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.items))
	copy(out, s.items)
	return out
}

// Kinds returns strategy kinds in priority order.
func (s *Set) Kinds() []Kind {
	out := make([]Kind, len(s.items))
	for i, d := range s.items {
		out[i] = d.Kind
	}
	return out
}
