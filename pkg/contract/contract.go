// Package contract implements the registry contract state machine. Every
// transition is driven by a resolved decision and paired with exactly one
// append-only history row; the current state of a contract is always
// reconstructable by replaying its history from Draft.
package contract

import (
	"time"

	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
)

// State is a contract lifecycle state.
type State string

const (
	StateDraft         State = "Draft"
	StateActive        State = "Active"
	StateCompleted     State = "Completed"
	StateDisputed      State = "Disputed"
	StateDefensePeriod State = "DefensePeriod"
	StatePenalized     State = "Penalized"
	StateExpired       State = "Expired"
	StateCancelled     State = "Cancelled"
)

// Terminal reports whether the state admits no further transitions for this
// version of the contract. Re-negotiation produces a new contract that
// references the old one as parent.
func (s State) Terminal() bool {
	switch s {
	case StatePenalized, StateCompleted, StateCancelled:
		return true
	}
	return false
}

// edges is the reachability relation of the state machine. A requested
// transition outside this relation is an IllegalTransition, rejected before
// any rule is consulted.
var edges = map[State][]State{
	StateDraft:         {StateActive, StateCancelled},
	StateActive:        {StateCompleted, StateDisputed, StateExpired, StateCancelled},
	StateDisputed:      {StateDefensePeriod},
	StateDefensePeriod: {StateActive, StatePenalized},
	StateExpired:       {StatePenalized},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to State) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FeeKind selects the late-fee schedule shape.
type FeeKind string

const (
	// FeeFixed levies a flat amount.
	FeeFixed FeeKind = "fixed"
	// FeeDailyPercent levies a daily percentage of the contract value, with
	// an optional cap.
	FeeDailyPercent FeeKind = "daily_percent"
)

// FeeSchedule describes how a penalty amount is computed.
type FeeSchedule struct {
	Kind         FeeKind `json:"kind"`
	FixedCents   int64   `json:"fixed_cents,omitempty"`
	DailyPercent float64 `json:"daily_percent,omitempty"`
	CapCents     int64   `json:"cap_cents,omitempty"`
}

// Penalty computes the penalty in cents for a contract of the given value
// that is daysLate days past its deadline.
func (f FeeSchedule) Penalty(valueCents int64, daysLate int) int64 {
	switch f.Kind {
	case FeeFixed:
		return f.FixedCents
	case FeeDailyPercent:
		if daysLate < 0 {
			daysLate = 0
		}
		amount := int64(float64(valueCents) * f.DailyPercent / 100.0 * float64(daysLate))
		if f.CapCents > 0 && amount > f.CapCents {
			return f.CapCents
		}
		return amount
	}
	return 0
}

// RegistryContract is the mutable contract row. The lifecycle engine owns
// mutation exclusively; everything else reads.
type RegistryContract struct {
	ID string `json:"id"`

	// Parties.
	Author       identifier.Identifier `json:"author"`
	Counterparty identifier.Identifier `json:"counterparty"`
	Witness      identifier.Identifier `json:"witness,omitempty"`

	// Financial terms. Values are integer cents; no floats hold money.
	TotalValueCents int64       `json:"valor_total_cents"`
	Currency        string      `json:"currency"`
	Fees            FeeSchedule `json:"fees"`

	// Temporal terms.
	StartDate    time.Time `json:"data_inicio"`
	DurationDays int       `json:"duracao_dias"`
	Deadline     time.Time `json:"data_limite"`

	State State `json:"estado_atual"`

	// Delivery and approvals, recorded by the host application.
	Delivered      bool `json:"delivered"`
	ApproversCount int  `json:"approvers_count"`

	// Dispute fields.
	DisputeReason         string     `json:"questionamento_razao,omitempty"`
	DisputedAt            *time.Time `json:"questionamento_em,omitempty"`
	DefenseWindowDays     int        `json:"periodo_defesa_dias,omitempty"`
	Justification         string     `json:"justificativa,omitempty"`
	JustificationAccepted *bool      `json:"justificativa_aceita,omitempty"`

	// Penalty fields.
	PenaltyCents int64      `json:"penalidade_aplicada_cents,omitempty"`
	PenalizedAt  *time.Time `json:"penalizado_em,omitempty"`

	// Lineage.
	IdeaID           string `json:"idea_id,omitempty"`
	ParentContractID string `json:"parent_contract_id,omitempty"`

	// Version supports optimistic concurrency; stores reject a write whose
	// version does not match the stored row.
	Version int64 `json:"version"`
}

// Expired reports whether the contract is past its hard deadline without a
// recorded delivery.
func (c *RegistryContract) Expired(now time.Time) bool {
	return !c.Deadline.IsZero() && now.After(c.Deadline) && !c.Delivered
}

// DaysLate reports how many whole days past the deadline now is.
func (c *RegistryContract) DaysLate(now time.Time) int {
	if c.Deadline.IsZero() || !now.After(c.Deadline) {
		return 0
	}
	return int(now.Sub(c.Deadline).Hours() / 24)
}

// DefenseWindowEnd reports when the defense window closes; zero when the
// contract was never disputed.
func (c *RegistryContract) DefenseWindowEnd() time.Time {
	if c.DisputedAt == nil {
		return time.Time{}
	}
	return c.DisputedAt.Add(time.Duration(c.DefenseWindowDays) * 24 * time.Hour)
}

// Facts assembles the flat fact context evaluations over this contract use.
// Caller-supplied facts (agent_balance and anything run-scoped) are merged
// on top by the engine.
func (c *RegistryContract) Facts(now time.Time) facts.Context {
	fc := facts.Context{
		"contract_state":      string(c.State),
		"contract_value":      c.TotalValueCents,
		"currency":            c.Currency,
		"contract_expired":    c.Expired(now),
		"not_delivered":       !c.Delivered,
		"delivered":           c.Delivered,
		"approvers_count":     c.ApproversCount,
		"days_late":           c.DaysLate(now),
		"disputed":            c.DisputedAt != nil,
		"defense_window_days": c.DefenseWindowDays,
	}
	if c.DisputedAt != nil {
		end := c.DefenseWindowEnd()
		fc["defense_window_expired"] = now.After(end)
		fc["justification_submitted"] = c.Justification != ""
		fc["justification_accepted"] = c.JustificationAccepted != nil && *c.JustificationAccepted
	}
	return fc
}
