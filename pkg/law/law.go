// Package law holds the scope-tiered law records and the registry that
// parses, caches, and evaluates them.
package law

import (
	"github.com/cartorio-ai/cartorio/pkg/decision"
)

// Scope is the tier a law is declared at. Precedence is ordered data:
// ScopeOrder below, highest precedence first.
type Scope string

const (
	// ScopeMiniConstitution laws are absolute: no lower-scoped law and no
	// structured policy may override an effect they produce.
	ScopeMiniConstitution Scope = "mini_constitution"
	ScopeSuperior         Scope = "superior"
	ScopeApp              Scope = "app"
	ScopeTenant           Scope = "tenant"
	ScopeUser             Scope = "user"
)

// ScopeOrder lists every law scope from highest to lowest precedence.
var ScopeOrder = []Scope{
	ScopeMiniConstitution,
	ScopeSuperior,
	ScopeApp,
	ScopeTenant,
	ScopeUser,
}

// Valid reports whether s names a known tier.
func (s Scope) Valid() bool {
	for _, known := range ScopeOrder {
		if s == known {
			return true
		}
	}
	return false
}

// Tier maps the law scope onto the resolver's shared precedence ladder.
func (s Scope) Tier() decision.Tier {
	switch s {
	case ScopeMiniConstitution:
		return decision.TierConstitution
	case ScopeSuperior:
		return decision.TierSuperior
	case ScopeApp:
		return decision.TierApp
	case ScopeTenant:
		return decision.TierTenant
	case ScopeUser:
		return decision.TierUser
	}
	return decision.TierUser
}

// Law is one law record as persisted by the host application. Content is the
// verbatim DSL text; it is parsed on load, never at evaluation time.
type Law struct {
	ID      string `json:"id"`
	Scope   Scope  `json:"scope"`
	// TargetID narrows the law to one subject within its tier; empty means
	// the law applies to every subject in the tier.
	TargetID string `json:"target_id,omitempty"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Active   bool   `json:"is_active"`
	Version  string `json:"version"`
}

// Subject identifies the entity being evaluated, one id per tier it occupies.
// Tiers absent from the map only match laws with no target.
type Subject map[Scope]string

// AppliesTo reports whether the law governs the given subject.
func (l *Law) AppliesTo(subject Subject) bool {
	if !l.Active {
		return false
	}
	if l.TargetID == "" {
		return true
	}
	return subject[l.Scope] == l.TargetID
}
