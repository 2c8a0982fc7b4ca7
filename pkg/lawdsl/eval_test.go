package lawdsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
)

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse(src)
	require.NoError(t, err)
	return doc
}

func TestEvaluateFiresTrueClauses(t *testing.T) {
	doc := mustParse(t, `law late:1: mini_constitution:
  if contract_expired and not_delivered then penalize
  if contract_value > 500000 then hold(high value)
`)
	fired := doc.Evaluate(facts.Context{
		"contract_expired": true,
		"not_delivered":    true,
		"contract_value":   750000,
	})
	require.Len(t, fired, 2)
	assert.Equal(t, 0, fired[0].ClauseIndex)
	assert.Equal(t, decision.KindPenalize, fired[0].Decision.Kind)
	assert.Equal(t, decision.KindHold, fired[1].Decision.Kind)
	assert.Equal(t, "high value", fired[1].Decision.Reason)
}

func TestEvaluateMissingFactsFailClosed(t *testing.T) {
	doc := mustParse(t, `law late:1: superior:
  if contract_expired and not_delivered then penalize
  if agent_balance < 0 then revoke
  if not suspended then deny
`)
	// Empty facts: every comparison and bare fact is false; only the negated
	// clause fires (not false == true), which is exactly why laws may be
	// loaded before their facts exist.
	fired := doc.Evaluate(facts.New())
	require.Len(t, fired, 1)
	assert.Equal(t, decision.KindDeny, fired[0].Decision.Kind)
}

func TestEvaluateComparisons(t *testing.T) {
	cases := []struct {
		name  string
		cond  string
		facts facts.Context
		want  bool
	}{
		{"number gt", "contract_value > 100", facts.Context{"contract_value": 150}, true},
		{"number gt false", "contract_value > 100", facts.Context{"contract_value": 50}, false},
		{"number gte boundary", "approvers_count >= 2", facts.Context{"approvers_count": 2}, true},
		{"number from int64", "agent_balance <= 0", facts.Context{"agent_balance": int64(-10)}, true},
		{"string equality", "risk == high", facts.Context{"risk": "high"}, true},
		{"string inequality", "risk != high", facts.Context{"risk": "low"}, true},
		{"quoted string", `currency == "BRL"`, facts.Context{"currency": "BRL"}, true},
		{"bool literal", "delivered == false", facts.Context{"delivered": false}, true},
		{"fact vs fact", "agent_balance >= contract_value", facts.Context{"agent_balance": 100, "contract_value": 90}, true},
		{"missing left fact", "ghost > 0", facts.Context{"other": 1}, false},
		{"relational on string fact", "risk > 1", facts.Context{"risk": "high"}, false},
		{"type mismatch", "contract_value == high", facts.Context{"contract_value": 100}, false},
		{"bare bool fact", "contract_expired", facts.Context{"contract_expired": true}, true},
		{"bare non-bool fact", "contract_value", facts.Context{"contract_value": 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustParse(t, "law t:1: user:\n  if "+tc.cond+" then deny\n")
			fired := doc.Evaluate(tc.facts)
			assert.Equal(t, tc.want, len(fired) == 1)
		})
	}
}

func TestEvaluateConnectivePrecedence(t *testing.T) {
	// and binds tighter than or: a or b and c == a or (b and c)
	doc := mustParse(t, "law t:1: user:\n  if a or b and c then deny\n")
	assert.Len(t, doc.Evaluate(facts.Context{"a": true, "b": false, "c": false}), 1)
	assert.Len(t, doc.Evaluate(facts.Context{"a": false, "b": true, "c": false}), 0)
	assert.Len(t, doc.Evaluate(facts.Context{"a": false, "b": true, "c": true}), 1)
}

func TestEvaluateIsPure(t *testing.T) {
	doc := mustParse(t, "law t:1: user:\n  if n > 1 then deny\n")
	fc := facts.Context{"n": 5}
	first := doc.Evaluate(fc)
	second := doc.Evaluate(fc)
	assert.Equal(t, first, second)
	assert.Equal(t, facts.Context{"n": 5}, fc)
}
