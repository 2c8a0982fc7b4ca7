//go:build property
// +build property

package decision

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConstitutionalDominance verifies the absolute-tier invariant.
// Property: a constitutional Deny survives any number of lower-tier Allow
// policies, whatever their priorities and ordering.
func TestConstitutionalDominance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("constitutional deny outranks random allow policies", prop.ForAll(
		func(priorities []int, insertAt int) bool {
			raws := make([]Raw, 0, len(priorities)+1)
			for i, p := range priorities {
				raws = append(raws, Raw{
					Decision:  Allow(),
					Mechanism: MechanismPolicy,
					RuleID:    "p",
					Tier:      Tier(2 + i%5), // everything below superior
					Priority:  p,
					Order:     i,
				})
			}
			pos := 0
			if len(raws) > 0 {
				pos = insertAt % (len(raws) + 1)
			}
			constitutional := Raw{
				Decision:       Deny("constitutional"),
				Mechanism:      MechanismLaw,
				RuleID:         "c",
				Tier:           TierConstitution,
				Constitutional: true,
			}
			raws = append(raws[:pos], append([]Raw{constitutional}, raws[pos:]...)...)

			res := Resolve(raws, Allow())
			return res.Decision.Kind == KindDeny && res.Winner != nil && res.Winner.RuleID == "c"
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
		gen.IntRange(0, 1<<20),
	))

	properties.Property("resolution is deterministic", prop.ForAll(
		func(seed []int) bool {
			raws := make([]Raw, 0, len(seed))
			kinds := []Decision{Allow(), Deny("d"), Hold("h"), Penalize(10), RequireApproval("a")}
			for i, s := range seed {
				raws = append(raws, Raw{
					Decision:  kinds[abs(s)%len(kinds)],
					Mechanism: MechanismPolicy,
					RuleID:    "r",
					Tier:      Tier(abs(s) % 7),
					Priority:  s,
					Order:     i,
				})
			}
			a := Resolve(raws, Allow())
			b := Resolve(raws, Allow())
			return a.Decision.Kind == b.Decision.Kind &&
				a.Decision.Reason == b.Decision.Reason &&
				a.Decision.AmountCents == b.Decision.AmountCents
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
