package decision

import "fmt"

// Mechanism names the rule system a raw decision came from.
type Mechanism string

const (
	MechanismLaw    Mechanism = "law"
	MechanismPolicy Mechanism = "policy"
)

// Raw is a decision as produced by one rule, before resolution. The source
// fields exist solely to make resolution a total order: adding a rule can
// change which decision wins, never leave two candidates unordered.
type Raw struct {
	Decision Decision

	Mechanism Mechanism
	// RuleID identifies the law or policy that fired.
	RuleID string
	// Tier is the precedence rank of the rule's scope.
	Tier Tier
	// Priority is the structured policy's priority; laws carry zero.
	Priority int
	// Order is the rule's creation order (laws: clause order within load
	// order). Used as the final tiebreak.
	Order int
	// Constitutional marks decisions from the mini-constitution tier.
	Constitutional bool
}

// Resolution is the outcome of collapsing all raw decisions.
type Resolution struct {
	Decision Decision
	// Winner is the raw decision that determined the verdict; nil when no
	// rule fired and the default applied.
	Winner *Raw
	// RulesFired lists every rule that contributed a raw decision, in input
	// order, for the audit trace.
	RulesFired []string
}

// Resolve merges raw decisions from every applicable scope tier into one
// final decision.
//
//  1. A constitutional Deny, Revoke, or Penalize wins unconditionally; the
//     first such decision in input (clause) order if several fire.
//  2. Otherwise decisions are ranked by severity.
//  3. Severity ties prefer the higher-precedence tier, then the lower
//     structured priority, then creation order.
//
// An empty input resolves to the supplied default.
func Resolve(raws []Raw, defaultDecision Decision) Resolution {
	res := Resolution{
		Decision:   defaultDecision,
		RulesFired: make([]string, 0, len(raws)),
	}
	for i := range raws {
		res.RulesFired = append(res.RulesFired, fmt.Sprintf("%s.%s", raws[i].Mechanism, raws[i].RuleID))
	}

	// Step 1: constitutional short-circuit.
	for i := range raws {
		r := &raws[i]
		if !r.Constitutional {
			continue
		}
		switch r.Decision.Kind {
		case KindDeny, KindRevoke, KindPenalize:
			res.Decision = r.Decision
			res.Winner = r
			return res
		}
	}

	// Steps 2-3: total order over the remaining candidates.
	var winner *Raw
	for i := range raws {
		if winner == nil || outranks(&raws[i], winner) {
			winner = &raws[i]
		}
	}
	if winner != nil {
		res.Decision = winner.Decision
		res.Winner = winner
	}
	return res
}

// outranks reports whether a beats b in the resolver's total order.
func outranks(a, b *Raw) bool {
	if sa, sb := severity(a.Decision.Kind), severity(b.Decision.Kind); sa != sb {
		return sa < sb
	}
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Order < b.Order
}
