package gate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
	"github.com/cartorio-ai/cartorio/pkg/law"
	"github.com/cartorio-ai/cartorio/pkg/policy"
)

func testService(t *testing.T, laws []law.Law, policies []policy.Policy, opts ...Option) *Service {
	t.Helper()
	registry := law.NewRegistry()
	require.Empty(t, registry.Replace(laws))
	evaluator, err := policy.NewEvaluator()
	require.NoError(t, err)

	opts = append(opts, WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}))
	s := New(registry, evaluator, opts...)
	s.SetPolicies(policies)
	return s
}

func constitutionLaw() law.Law {
	return law.Law{
		ID:      "law-penalty",
		Scope:   law.ScopeMiniConstitution,
		Name:    "penalidade_atraso",
		Version: "1.0.0",
		Active:  true,
		Content: "law penalidade_atraso:1.0.0: mini_constitution:\n" +
			"  if contract_expired and not_delivered then penalize(5000)\n",
	}
}

func TestEvaluateDefaultAllow(t *testing.T) {
	s := testService(t, nil, nil)

	rec, err := s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Facts:   facts.Context{},
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindAllow, rec.Decision.Kind)
	assert.Empty(t, rec.Winner)
	assert.Empty(t, rec.RulesFired)
}

func TestEvaluateConstitutionalLawWins(t *testing.T) {
	allowAll := policy.Policy{
		ID: "pol-open", Scope: policy.ScopeGlobal, RuleExpr: "true",
		Effect: policy.EffectAllow, Enabled: true,
	}
	s := testService(t, []law.Law{constitutionLaw()}, []policy.Policy{allowAll})

	rec, err := s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Chain:   []policy.ScopeRef{{Scope: policy.ScopeGlobal}},
		Facts:   facts.Context{"contract_expired": true, "not_delivered": true},
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindPenalize, rec.Decision.Kind)
	assert.Equal(t, int64(5000), rec.Decision.AmountCents)
	assert.Equal(t, "law.penalidade_atraso.0", rec.Winner)
	assert.Contains(t, rec.RulesFired, "policy.pol-open")
}

func TestEvaluatePolicyMechanism(t *testing.T) {
	deny := policy.Policy{
		ID: "pol-risk", Scope: policy.ScopeAgent, ScopeID: "agent-7",
		RuleExpr: "risk == 'high'", Effect: policy.EffectDeny,
		Reason: "high risk blocked", Enabled: true,
	}
	s := testService(t, nil, []policy.Policy{deny})

	rec, err := s.Evaluate(context.Background(), Request{
		Chain: []policy.ScopeRef{
			{Scope: policy.ScopeGlobal},
			{Scope: policy.ScopeAgent, ID: "agent-7"},
		},
		Facts: facts.Context{"risk": "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindDeny, rec.Decision.Kind)
	assert.Equal(t, "high risk blocked", rec.Decision.Reason)
	assert.Equal(t, "policy.pol-risk", rec.Winner)
}

func TestEvaluateCrossMechanismTierOrder(t *testing.T) {
	userLaw := law.Law{
		ID: "law-user", Scope: law.ScopeUser, TargetID: "u1",
		Name: "bloqueio_usuario", Version: "1.0.0", Active: true,
		Content: "law bloqueio_usuario:1.0.0: user:\n" +
			"  if suspended then deny\n",
	}
	globalDeny := policy.Policy{
		ID: "pol-global", Scope: policy.ScopeGlobal, RuleExpr: "suspended",
		Effect: policy.EffectDeny, Reason: "globally blocked", Enabled: true,
	}
	s := testService(t, []law.Law{userLaw}, []policy.Policy{globalDeny})

	// Both mechanisms produce a Deny; the global tier outranks the user tier.
	rec, err := s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Chain:   []policy.ScopeRef{{Scope: policy.ScopeGlobal}},
		Facts:   facts.Context{"suspended": true},
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindDeny, rec.Decision.Kind)
	assert.Equal(t, "policy.pol-global", rec.Winner)
	assert.Len(t, rec.RulesFired, 2)
}

func TestEvaluateRecordIDDeterministic(t *testing.T) {
	s := testService(t, nil, nil)
	req := Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Facts:   facts.Context{"contract_value": 100},
	}

	a, err := s.Evaluate(context.Background(), req)
	require.NoError(t, err)
	b, err := s.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.InputsHash, b.InputsHash)

	req.Facts["contract_value"] = 200
	c, err := s.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
	assert.True(t, strings.HasPrefix(a.InputsHash, "sha256:"))
}

func TestEvaluateEmptySubjectUsesDefault(t *testing.T) {
	s := testService(t, nil, nil)

	// No subject and no chain means no rules apply, not an error.
	rec, err := s.Evaluate(context.Background(), Request{Facts: facts.Context{}})
	require.NoError(t, err)
	assert.Equal(t, decision.KindAllow, rec.Decision.Kind)
	assert.Empty(t, rec.RulesFired)
}

func TestEvaluateEmptySubjectStillBoundByUntargetedLaws(t *testing.T) {
	s := testService(t, []law.Law{constitutionLaw()}, nil)

	rec, err := s.Evaluate(context.Background(), Request{
		Facts: facts.Context{"contract_expired": true, "not_delivered": true},
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindPenalize, rec.Decision.Kind)
	assert.Equal(t, "law.penalidade_atraso.0", rec.Winner)
}

func TestEvaluateRejectsMalformedSubject(t *testing.T) {
	s := testService(t, nil, nil)

	_, err := s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: ""},
	})
	require.ErrorIs(t, err, ErrUnresolvedSubject)

	_, err = s.Evaluate(context.Background(), Request{
		Chain: []policy.ScopeRef{{Scope: policy.Scope("cosmos")}},
	})
	require.ErrorIs(t, err, ErrUnresolvedSubject)
}

func TestEvaluateValidatesActor(t *testing.T) {
	const secret = "gate-secret"
	actor, err := identifier.Mint(identifier.NamespacePerson, "SP", 2026, 42, secret)
	require.NoError(t, err)

	s := testService(t, nil, nil, WithIdentifierSecret(secret))

	_, err = s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Actor:   actor,
	})
	require.NoError(t, err)

	// Flip the last checksum character so validation must fail.
	raw := []byte(actor)
	if raw[len(raw)-1] == '0' {
		raw[len(raw)-1] = '1'
	} else {
		raw[len(raw)-1] = '0'
	}
	tampered := identifier.Identifier(raw)
	_, err = s.Evaluate(context.Background(), Request{
		Subject: law.Subject{law.ScopeUser: "u1"},
		Actor:   tampered,
	})
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestBoundResolver(t *testing.T) {
	s := testService(t, []law.Law{constitutionLaw()}, nil)
	bound := s.Bind(law.Subject{law.ScopeUser: "u1"}, nil, "")

	res, err := bound.Resolve(context.Background(), facts.Context{
		"contract_expired": true,
		"not_delivered":    true,
	})
	require.NoError(t, err)
	assert.Equal(t, decision.KindPenalize, res.Decision.Kind)
	assert.Equal(t, []string{"law.penalidade_atraso.0"}, res.RulesFired)
}
