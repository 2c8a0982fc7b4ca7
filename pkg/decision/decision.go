// Package decision defines the single decision model shared by the law
// engine and the structured policy evaluator, and the resolver that collapses
// their raw decisions into one deterministic verdict.
package decision

import "fmt"

// Kind enumerates the closed set of decision variants. The resolver switches
// exhaustively over this set; adding a variant without teaching the resolver
// its severity is a compile-time-visible change, not a silent one.
type Kind string

const (
	KindAllow           Kind = "ALLOW"
	KindDeny            Kind = "DENY"
	KindRequireApproval Kind = "REQUIRE_APPROVAL"
	KindModify          Kind = "MODIFY"
	KindHold            Kind = "HOLD"
	KindRevoke          Kind = "REVOKE"
	KindPenalize        Kind = "PENALIZE"
)

// Decision is the unified outcome of rule evaluation.
type Decision struct {
	Kind Kind `json:"kind"`

	// Reason carries the hold reason, or a human-readable explanation for
	// the other variants.
	Reason string `json:"reason,omitempty"`

	// Patch holds the modification payload for KindModify.
	Patch map[string]any `json:"patch,omitempty"`

	// AmountCents holds the penalty amount for KindPenalize. Zero means
	// "compute from the subject's fee schedule".
	AmountCents int64 `json:"amount_cents,omitempty"`
}

// Allow returns the permissive decision.
func Allow() Decision { return Decision{Kind: KindAllow} }

// Deny returns a blocking decision with the given reason.
func Deny(reason string) Decision { return Decision{Kind: KindDeny, Reason: reason} }

// RequireApproval parks the action pending an external approval signal.
func RequireApproval(reason string) Decision {
	return Decision{Kind: KindRequireApproval, Reason: reason}
}

// Modify returns a decision carrying a patch the caller must apply.
func Modify(patch map[string]any) Decision { return Decision{Kind: KindModify, Patch: patch} }

// Hold blocks the action with a reason the caller surfaces verbatim.
func Hold(reason string) Decision { return Decision{Kind: KindHold, Reason: reason} }

// Revoke withdraws the subject's standing.
func Revoke(reason string) Decision { return Decision{Kind: KindRevoke, Reason: reason} }

// Penalize levies a penalty. amountCents may be zero, in which case the
// lifecycle engine derives the amount from the contract's fee schedule.
func Penalize(amountCents int64) Decision {
	return Decision{Kind: KindPenalize, AmountCents: amountCents}
}

// Blocking reports whether the decision stops the attempted action.
func (d Decision) Blocking() bool {
	switch d.Kind {
	case KindDeny, KindHold, KindRevoke, KindPenalize:
		return true
	case KindAllow, KindRequireApproval, KindModify:
		return false
	}
	return true // unknown kinds fail closed
}

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d.Kind {
	case KindPenalize:
		return fmt.Sprintf("%s(%d)", d.Kind, d.AmountCents)
	case KindHold:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Reason)
	default:
		return string(d.Kind)
	}
}

// severity ranks decision kinds; lower outranks higher. The order is part of
// the resolver contract: Deny > Revoke > Penalize > Hold > RequireApproval >
// Modify > Allow.
func severity(k Kind) int {
	switch k {
	case KindDeny:
		return 0
	case KindRevoke:
		return 1
	case KindPenalize:
		return 2
	case KindHold:
		return 3
	case KindRequireApproval:
		return 4
	case KindModify:
		return 5
	case KindAllow:
		return 6
	}
	// Unknown kinds rank alongside Deny so a corrupted record can never
	// weaken the verdict.
	return 0
}
