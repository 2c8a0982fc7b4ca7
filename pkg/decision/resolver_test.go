package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func law(id string, tier Tier, d Decision, order int) Raw {
	return Raw{
		Decision:       d,
		Mechanism:      MechanismLaw,
		RuleID:         id,
		Tier:           tier,
		Order:          order,
		Constitutional: tier == TierConstitution,
	}
}

func policy(id string, tier Tier, d Decision, priority, order int) Raw {
	return Raw{Decision: d, Mechanism: MechanismPolicy, RuleID: id, Tier: tier, Priority: priority, Order: order}
}

func TestResolveEmptyUsesDefault(t *testing.T) {
	res := Resolve(nil, Allow())
	assert.Equal(t, KindAllow, res.Decision.Kind)
	assert.Nil(t, res.Winner)

	res = Resolve(nil, Deny("default deny"))
	assert.Equal(t, KindDeny, res.Decision.Kind)
}

func TestConstitutionalDenyWinsUnconditionally(t *testing.T) {
	raws := []Raw{
		policy("p-allow", TierGlobal, Allow(), 1, 0),
		law("lei-expirada", TierConstitution, Penalize(0), 1),
		law("user-allow", TierUser, Allow(), 2),
		policy("p-deny", TierTenant, Deny("tenant says no"), 1, 3),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, KindPenalize, res.Decision.Kind)
	assert.Equal(t, "lei-expirada", res.Winner.RuleID)
}

func TestConstitutionalFirstByClauseOrder(t *testing.T) {
	raws := []Raw{
		law("c1", TierConstitution, Deny("first"), 0),
		law("c2", TierConstitution, Revoke("second"), 1),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, "c1", res.Winner.RuleID)
	assert.Equal(t, "first", res.Decision.Reason)
}

func TestConstitutionalAllowDoesNotShortCircuit(t *testing.T) {
	// Only Deny/Revoke/Penalize are absolute; a constitutional Hold competes
	// on severity like anything else.
	raws := []Raw{
		law("c-hold", TierConstitution, Hold("waiting"), 0),
		law("s-deny", TierSuperior, Deny("no"), 1),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, KindDeny, res.Decision.Kind)
	assert.Equal(t, "s-deny", res.Winner.RuleID)
}

func TestSeverityRanking(t *testing.T) {
	raws := []Raw{
		policy("p-mod", TierGlobal, Modify(map[string]any{"cap": 10}), 1, 0),
		law("l-hold", TierUser, Hold("review"), 1),
		policy("p-appr", TierApp, RequireApproval("large value"), 2, 2),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, KindHold, res.Decision.Kind)
}

func TestSeverityTieBrokenByTier(t *testing.T) {
	raws := []Raw{
		law("user-deny", TierUser, Deny("user law"), 0),
		law("superior-deny", TierSuperior, Deny("superior law"), 1),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, "superior-deny", res.Winner.RuleID)
}

func TestTierTieBrokenByPriorityThenOrder(t *testing.T) {
	raws := []Raw{
		policy("p2", TierTenant, Deny("b"), 2, 0),
		policy("p1", TierTenant, Deny("a"), 1, 1),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, "p1", res.Winner.RuleID)

	raws = []Raw{
		policy("later", TierTenant, Deny("b"), 1, 5),
		policy("earlier", TierTenant, Deny("a"), 1, 2),
	}
	res = Resolve(raws, Allow())
	assert.Equal(t, "earlier", res.Winner.RuleID)
}

func TestRulesFiredPreservesInputOrder(t *testing.T) {
	raws := []Raw{
		law("a", TierUser, Allow(), 0),
		policy("b", TierGlobal, Deny("x"), 1, 1),
	}
	res := Resolve(raws, Allow())
	assert.Equal(t, []string{"law.a", "policy.b"}, res.RulesFired)
}

func TestBlocking(t *testing.T) {
	assert.True(t, Deny("x").Blocking())
	assert.True(t, Hold("x").Blocking())
	assert.True(t, Revoke("x").Blocking())
	assert.True(t, Penalize(100).Blocking())
	assert.False(t, Allow().Blocking())
	assert.False(t, RequireApproval("x").Blocking())
	assert.False(t, Modify(nil).Blocking())
}
