package contract

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
)

// Store persists contracts and their history. ApplyTransition is the only
// write path for transitions and must persist the contract mutation and the
// history row as one atomic unit: no transition without its row, no row
// without its transition.
type Store interface {
	Get(ctx context.Context, id string) (*RegistryContract, error)
	Create(ctx context.Context, c *RegistryContract) error
	// ApplyTransition writes the mutated contract and appends the history
	// row atomically. It fails with ErrConcurrentTransition when the stored
	// version no longer equals expectVersion.
	ApplyTransition(ctx context.Context, c *RegistryContract, expectVersion int64, row *HistoryRow) error
	History(ctx context.Context, contractID string) ([]HistoryRow, error)
	LastHistory(ctx context.Context, contractID string) (*HistoryRow, error)
}

// Resolver produces the final decision for a fact context. The gate service
// implements it by running both rule mechanisms and merging their output.
type Resolver interface {
	Resolve(ctx context.Context, fc facts.Context) (decision.Resolution, error)
}

// Transition names a requested state change.
type Transition string

const (
	// TransitionAuto asks the engine to derive the transition from deadlines
	// and dispute fields; an external scheduler calls it with fresh facts.
	TransitionAuto     Transition = "auto"
	TransitionActivate Transition = "activate"
	TransitionComplete Transition = "complete"
	TransitionDispute  Transition = "dispute"
	TransitionDefend   Transition = "defend"
	TransitionCancel   Transition = "cancel"
)

// TransitionRequest is one attempted state change.
type TransitionRequest struct {
	ContractID string
	Transition Transition
	Actor      identifier.Identifier

	// Overrides are caller-supplied facts merged over the contract's own
	// (agent_balance and anything run-scoped lives here).
	Overrides facts.Context

	Reason string

	// DisputeReason is recorded on a dispute transition.
	DisputeReason string
	// Justification and JustificationAccepted are recorded on a defend
	// transition; acceptance is the external approval signal.
	Justification         string
	JustificationAccepted *bool
}

// TransitionResult reports a completed (or parked) transition.
type TransitionResult struct {
	Contract *RegistryContract
	NewState State
	Applied  decision.Decision
	// HistoryRowID identifies the appended row; empty when the contract was
	// parked by a RequireApproval decision.
	HistoryRowID string
	// Parked is set when a RequireApproval decision left the contract in
	// its current state pending an external approval signal.
	Parked bool
}

// lockStripes sizes the engine's lock table; contracts hashing to the same
// stripe serialize against each other.
const lockStripes = 64

// Engine drives contract transitions. It is the one component with mutable
// shared state: transitions on the same contract are serialized in-process
// by a striped per-contract lock, and across processes by the store's
// version check.
type Engine struct {
	store    Store
	resolver Resolver
	clock    func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewEngine creates a lifecycle engine.
func NewEngine(store Store, resolver Resolver) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &e.locks[h.Sum32()%lockStripes]
}

// Transition attempts one state change. The read-resolve-write sequence is a
// single logical unit per contract: concurrent attempts on the same contract
// are serialized, and a racing writer that got there first surfaces as
// ErrConcurrentTransition to retry against fresh state.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	lock := e.lockFor(req.ContractID)
	lock.Lock()
	defer lock.Unlock()

	c, err := e.store.Get(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if c.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrIllegalTransition, c.ID, c.State)
	}

	now := e.clock()
	target, autoReason, err := e.resolveTarget(c, req, now)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.State, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.State, target)
	}

	fc := c.Facts(now).Merge(req.Overrides)
	fc["requested_state"] = string(target)

	res := decision.Resolution{Decision: decision.Allow()}
	if e.resolver != nil {
		res, err = e.resolver.Resolve(ctx, fc)
		if err != nil {
			return nil, fmt.Errorf("contract: resolve transition decision: %w", err)
		}
	}

	next := *c
	switch res.Decision.Kind {
	case decision.KindDeny, decision.KindHold, decision.KindRevoke:
		return nil, &BlockedError{Decision: res.Decision}
	case decision.KindRequireApproval:
		return &TransitionResult{Contract: c, NewState: c.State, Applied: res.Decision, Parked: true}, nil
	case decision.KindPenalize:
		// The verdict lands the contract in Penalized in one step. A hop
		// through the requested target collapses: an expiring Active
		// contract records a single Active -> Penalized row.
		if !CanTransition(c.State, StatePenalized) && !CanTransition(target, StatePenalized) {
			return nil, &BlockedError{Decision: res.Decision}
		}
		target = StatePenalized
	case decision.KindAllow, decision.KindModify:
		// Proceed with the requested transition. A Modify patch is returned
		// to the caller in Applied; the engine does not rewrite terms.
	}

	e.apply(&next, target, req, res.Decision, now)
	next.State = target
	next.Version = c.Version + 1

	reason := firstNonEmpty(res.Decision.Reason, req.Reason, autoReason)
	row := &HistoryRow{
		ID:         uuid.NewString(),
		ContractID: c.ID,
		PrevState:  c.State,
		NewState:   target,
		Reason:     reason,
		Actor:      string(req.Actor),
		Metadata: map[string]any{
			"decision":    string(res.Decision.Kind),
			"requested":   string(req.Transition),
			"rules_fired": res.RulesFired,
		},
		// UTC so the canonical row hash survives storage round trips.
		CreatedAt: now.UTC(),
	}
	prev, err := e.store.LastHistory(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if err := Chain(prev, row); err != nil {
		return nil, err
	}
	if err := e.store.ApplyTransition(ctx, &next, c.Version, row); err != nil {
		return nil, err
	}

	return &TransitionResult{
		Contract:     &next,
		NewState:     target,
		Applied:      res.Decision,
		HistoryRowID: row.ID,
	}, nil
}

// resolveTarget maps the request onto a target state.
func (e *Engine) resolveTarget(c *RegistryContract, req TransitionRequest, now time.Time) (State, string, error) {
	switch req.Transition {
	case TransitionActivate:
		return StateActive, "", nil
	case TransitionComplete:
		return StateCompleted, "", nil
	case TransitionDispute:
		if req.DisputeReason == "" {
			return "", "", fmt.Errorf("%w: dispute requires a reason", ErrIllegalTransition)
		}
		return StateDisputed, "", nil
	case TransitionCancel:
		// Mutual consent; not governed by law.
		return StateCancelled, "cancelled by mutual consent", nil
	case TransitionDefend:
		return e.defenseOutcome(c, req, now)
	case TransitionAuto:
		return e.autoTarget(c, req, now)
	}
	return "", "", fmt.Errorf("%w: unknown transition %q", ErrIllegalTransition, req.Transition)
}

// defenseOutcome decides where a defend request lands: an accepted
// justification inside the window returns the contract to Active, anything
// else routes to Penalized.
func (e *Engine) defenseOutcome(c *RegistryContract, req TransitionRequest, now time.Time) (State, string, error) {
	if c.State != StateDefensePeriod {
		return "", "", fmt.Errorf("%w: defend from %s", ErrIllegalTransition, c.State)
	}
	accepted := req.JustificationAccepted != nil && *req.JustificationAccepted
	if accepted && !now.After(c.DefenseWindowEnd()) {
		return StateActive, "justification accepted within defense window", nil
	}
	if now.After(c.DefenseWindowEnd()) {
		return StatePenalized, "defense window expired", nil
	}
	return StatePenalized, "justification rejected", nil
}

// autoTarget derives the deadline- and dispute-driven transition, if any.
func (e *Engine) autoTarget(c *RegistryContract, req TransitionRequest, now time.Time) (State, string, error) {
	switch c.State {
	case StateActive:
		if c.Expired(now) {
			return StateExpired, "deadline passed without delivery", nil
		}
	case StateExpired:
		return StatePenalized, "expired without delivery", nil
	case StateDisputed:
		return StateDefensePeriod, "defense window opened", nil
	case StateDefensePeriod:
		if c.JustificationAccepted != nil && *c.JustificationAccepted && !now.After(c.DefenseWindowEnd()) {
			return StateActive, "justification accepted within defense window", nil
		}
		if now.After(c.DefenseWindowEnd()) {
			return StatePenalized, "defense window expired without accepted justification", nil
		}
	}
	return "", "", fmt.Errorf("%w: no automatic transition applicable from %s", ErrIllegalTransition, c.State)
}

// apply records the side fields a target state carries.
func (e *Engine) apply(next *RegistryContract, target State, req TransitionRequest, d decision.Decision, now time.Time) {
	switch target {
	case StateDisputed:
		next.DisputeReason = req.DisputeReason
		t := now
		next.DisputedAt = &t
	case StateCompleted:
		next.Delivered = true
	case StateActive:
		if req.Transition == TransitionDefend || req.Transition == TransitionAuto {
			if req.Justification != "" {
				next.Justification = req.Justification
			}
			if req.JustificationAccepted != nil {
				next.JustificationAccepted = req.JustificationAccepted
			}
		}
	case StatePenalized:
		amount := d.AmountCents
		if amount == 0 {
			amount = next.Fees.Penalty(next.TotalValueCents, next.DaysLate(now))
		}
		next.PenaltyCents = amount
		t := now
		next.PenalizedAt = &t
		if req.Justification != "" {
			next.Justification = req.Justification
		}
		if req.JustificationAccepted != nil {
			next.JustificationAccepted = req.JustificationAccepted
		}
	}
}

// Replay reconstructs the contract's state from its full history.
func (e *Engine) Replay(ctx context.Context, contractID string) (State, error) {
	rows, err := e.store.History(ctx, contractID)
	if err != nil {
		return "", err
	}
	if err := VerifyChain(rows); err != nil {
		return "", err
	}
	return Replay(rows)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
