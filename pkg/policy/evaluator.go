package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
)

// DefaultRuleID is the synthetic rule id reported when no policy matched and
// the evaluator's default decision applied.
const DefaultRuleID = "default"

// Evaluator compiles and runs policy rule expressions. Expressions are
// parsed without a declared environment: fact names resolve dynamically from
// the fact context at evaluation time, and an expression that references an
// absent fact simply does not match. Fail closed, never error.
type Evaluator struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program

	defaultDecision decision.Decision
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithDefaultDecision overrides the open-by-default Allow applied when no
// policy matches. Hosts that want default-deny set it here (or through
// config); the default is deliberately not hard-coded into evaluation.
func WithDefaultDecision(d decision.Decision) Option {
	return func(e *Evaluator) { e.defaultDecision = d }
}

// NewEvaluator creates a policy evaluator.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	e := &Evaluator{
		env:             env,
		cache:           make(map[string]cel.Program),
		defaultDecision: decision.Allow(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultDecision reports the decision applied when nothing matches.
func (e *Evaluator) DefaultDecision() decision.Decision { return e.defaultDecision }

// Compile checks that an expression parses and builds a program for it,
// warming the cache. Pack loaders call this to reject malformed records at
// load time.
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Double check
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: parse %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000), // hard limit on computational complexity
	)
	if err != nil {
		return nil, fmt.Errorf("policy: program %q: %w", expr, err)
	}
	e.cache[expr] = prg
	return prg, nil
}

// matches runs one expression against the facts. Evaluation errors (missing
// fact, type mismatch, cost overrun) are treated as no-match.
func (e *Evaluator) matches(expr string, fc facts.Context) bool {
	prg, err := e.program(expr)
	if err != nil {
		return false
	}
	out, _, err := prg.Eval(map[string]any(fc))
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Evaluate collects the enabled policies bound along the subject's scope
// chain, orders them by ascending priority then creation order, and returns
// the raw decision of the first whose expression matches. When nothing
// matches, the evaluator's default decision is returned under DefaultRuleID.
//
// The policies slice is the caller's view of persisted records in creation
// order; it is never mutated.
func (e *Evaluator) Evaluate(chain []ScopeRef, policies []Policy, fc facts.Context) decision.Raw {
	type candidate struct {
		policy Policy
		order  int
	}
	var candidates []candidate
	for i, p := range policies {
		for _, ref := range chain {
			if p.Matches(ref) {
				candidates = append(candidates, candidate{policy: p, order: i})
				break
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].policy.Priority != candidates[b].policy.Priority {
			return candidates[a].policy.Priority < candidates[b].policy.Priority
		}
		return candidates[a].order < candidates[b].order
	})

	for _, c := range candidates {
		if e.matches(c.policy.RuleExpr, fc) {
			return decision.Raw{
				Decision:  c.policy.Decision(),
				Mechanism: decision.MechanismPolicy,
				RuleID:    c.policy.ID,
				Tier:      c.policy.Scope.Tier(),
				Priority:  c.policy.Priority,
				Order:     c.order,
			}
		}
	}

	return decision.Raw{
		Decision:  e.defaultDecision,
		Mechanism: decision.MechanismPolicy,
		RuleID:    DefaultRuleID,
		Tier:      decision.TierUser,
	}
}
