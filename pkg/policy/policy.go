// Package policy evaluates structured attribute-based policy records against
// a fact context, sharing the law engine's decision model.
package policy

import (
	"github.com/cartorio-ai/cartorio/pkg/decision"
)

// Scope is the level a structured policy is declared at.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeTenant   Scope = "tenant"
	ScopeApp      Scope = "app"
	ScopeTool     Scope = "tool"
	ScopeWorkflow Scope = "workflow"
	ScopeAgent    Scope = "agent"
)

// ChainOrder is the order scopes are collected along a subject's hierarchy:
// global first, then the subject-specific scopes, then app, then tenant.
var ChainOrder = []Scope{ScopeGlobal, ScopeAgent, ScopeTool, ScopeWorkflow, ScopeApp, ScopeTenant}

// Valid reports whether s names a known policy scope.
func (s Scope) Valid() bool {
	for _, known := range ChainOrder {
		if s == known {
			return true
		}
	}
	return false
}

// Tier maps the policy scope onto the resolver's shared precedence ladder.
func (s Scope) Tier() decision.Tier {
	switch s {
	case ScopeGlobal:
		return decision.TierGlobal
	case ScopeApp:
		return decision.TierApp
	case ScopeTenant:
		return decision.TierTenant
	case ScopeTool, ScopeWorkflow, ScopeAgent:
		return decision.TierSubject
	}
	return decision.TierSubject
}

// Effect is the outcome a policy produces when its expression matches.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectRequireApproval Effect = "require_approval"
	EffectModify          Effect = "modify"
)

// Valid reports whether e names a known effect.
func (e Effect) Valid() bool {
	switch e {
	case EffectAllow, EffectDeny, EffectRequireApproval, EffectModify:
		return true
	}
	return false
}

// Policy is one structured policy record.
type Policy struct {
	ID      string `json:"id"`
	Scope   Scope  `json:"scope"`
	// ScopeID narrows the policy to one subject at its scope; empty applies
	// to every subject there.
	ScopeID string `json:"scope_id,omitempty"`
	// RuleExpr is a CEL boolean expression over bare fact names.
	RuleExpr string `json:"rule_expr"`
	Effect   Effect `json:"effect"`
	// Priority orders evaluation; lower evaluates first.
	Priority int  `json:"priority"`
	Enabled  bool `json:"enabled"`

	// Reason annotates deny/require_approval decisions.
	Reason string `json:"reason,omitempty"`
	// Patch is the payload applied when Effect is modify.
	Patch map[string]any `json:"patch,omitempty"`
}

// Decision converts the policy's effect into the shared decision model.
func (p *Policy) Decision() decision.Decision {
	switch p.Effect {
	case EffectAllow:
		return decision.Allow()
	case EffectDeny:
		return decision.Deny(p.Reason)
	case EffectRequireApproval:
		return decision.RequireApproval(p.Reason)
	case EffectModify:
		return decision.Modify(p.Patch)
	}
	// Unknown effects fail closed.
	return decision.Deny("unknown policy effect " + string(p.Effect))
}

// ScopeRef is one link of a subject's scope chain.
type ScopeRef struct {
	Scope Scope
	ID    string
}

// Matches reports whether the policy binds at the given chain link.
func (p *Policy) Matches(ref ScopeRef) bool {
	if !p.Enabled || p.Scope != ref.Scope {
		return false
	}
	return p.ScopeID == "" || p.ScopeID == ref.ID
}
