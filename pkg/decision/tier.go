package decision

// Tier is the precedence rank of the scope a raw decision originated from.
// Lower values outrank higher ones. Precedence is ordered data, not a type
// hierarchy: both rule mechanisms map their scope names onto this one ladder
// so the resolver can compare them directly.
type Tier int

const (
	// TierConstitution is the absolute tier: effects from it cannot be
	// neutralized by anything below.
	TierConstitution Tier = iota
	TierSuperior
	// TierGlobal is where platform-wide structured policies sit.
	TierGlobal
	TierApp
	// TierSubject covers tool-, workflow-, and agent-scoped policies.
	TierSubject
	TierTenant
	TierUser
)

var tierNames = map[Tier]string{
	TierConstitution: "mini_constitution",
	TierSuperior:     "superior",
	TierGlobal:       "global",
	TierApp:          "app",
	TierSubject:      "subject",
	TierTenant:       "tenant",
	TierUser:         "user",
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return "unknown"
}
