// Package quality decides whether a record carries enough identity to be
// forwarded downstream.
package quality

import "strings"

type EntityType string

const (
	// Prospect is a discovery-stage record straight from a listing page.
	Prospect EntityType = "prospect"
	// Lead is a record that went through detail enrichment.
	Lead EntityType = "lead"
)

type Gate interface {
	Meaningful(fields map[string]string) bool
}

// IdentityGate passes a record when at least one identity field is
// non-blank.
type IdentityGate struct {
	Fields []string
}

func (g IdentityGate) Meaningful(fields map[string]string) bool {
	for _, f := range g.Fields {
		if strings.TrimSpace(fields[f]) != "" {
			return true
		}
	}
	return false
}

var (
	ProspectGate = IdentityGate{Fields: []string{"event_name", "name", "full_name", "company", "organizer_name"}}
	LeadGate     = IdentityGate{Fields: []string{"name", "full_name", "company", "email"}}
)

// Registry holds one gate per entity type. Unknown types never pass.
type Registry struct {
	gates map[EntityType]Gate
}

func NewRegistry() *Registry {
	return &Registry{gates: map[EntityType]Gate{
		Prospect: ProspectGate,
		Lead:     LeadGate,
	}}
}

func (r *Registry) Set(t EntityType, g Gate) {
	r.gates[t] = g
}

func (r *Registry) Gate(t EntityType) Gate {
	if g, ok := r.gates[t]; ok {
		return g
	}
	return IdentityGate{}
}

func (r *Registry) Meaningful(t EntityType, fields map[string]string) bool {
	return r.Gate(t).Meaningful(fields)
}
