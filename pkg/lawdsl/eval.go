package lawdsl

import (
	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
)

// Firing records one clause whose condition held.
type Firing struct {
	// ClauseIndex is the position of the clause within the law, which is
	// also the resolver's clause-order tiebreak.
	ClauseIndex int
	Decision    decision.Decision
}

// Evaluate runs every clause against the fact context. A law with several
// true clauses contributes several firings. Evaluation is pure: no side
// effects, no errors. Conditions the facts cannot answer are simply false.
func (d *Document) Evaluate(fc facts.Context) []Firing {
	var fired []Firing
	for i, clause := range d.Clauses {
		if clause.Cond.Eval(fc) {
			fired = append(fired, Firing{ClauseIndex: i, Decision: clause.Action.Decision()})
		}
	}
	return fired
}
