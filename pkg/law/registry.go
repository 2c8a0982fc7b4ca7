package law

import (
	"fmt"
	"sync/atomic"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/lawdsl"
)

// LoadIssue reports one law that failed to parse. The law version is not
// registered; the failure is never fatal to the process.
type LoadIssue struct {
	LawID   string
	Version string
	Err     error
}

func (i LoadIssue) String() string {
	return fmt.Sprintf("law %s@%s: %v", i.LawID, i.Version, i.Err)
}

type compiledLaw struct {
	law Law
	doc *lawdsl.Document
}

// snapshot is an immutable view of every registered, parsed law. Readers
// load it atomically and never observe a partially rebuilt registry.
type snapshot struct {
	laws []compiledLaw
	// cache maps id@version to the parsed document so a version is parsed
	// exactly once across rebuilds.
	cache map[string]*lawdsl.Document
}

// Registry holds the active laws. Evaluation is read-only and safe for full
// concurrency; Replace rebuilds the snapshot aside and swaps it in whole.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{cache: map[string]*lawdsl.Document{}})
	return r
}

func cacheKey(l Law) string { return l.ID + "@" + l.Version }

// Replace swaps the registered law set. Laws whose content fails to parse
// are skipped and reported; everything else takes effect atomically.
// Already-parsed versions are reused from the previous snapshot.
func (r *Registry) Replace(laws []Law) []LoadIssue {
	prev := r.snap.Load()
	next := &snapshot{cache: make(map[string]*lawdsl.Document, len(laws))}
	var issues []LoadIssue

	for _, l := range laws {
		if !l.Scope.Valid() {
			issues = append(issues, LoadIssue{LawID: l.ID, Version: l.Version, Err: fmt.Errorf("unknown scope %q", l.Scope)})
			continue
		}
		key := cacheKey(l)
		doc, cached := prev.cache[key]
		if !cached {
			parsed, err := lawdsl.Parse(l.Content)
			if err != nil {
				issues = append(issues, LoadIssue{LawID: l.ID, Version: l.Version, Err: err})
				continue
			}
			doc = parsed
		}
		if string(l.Scope) != doc.Scope {
			issues = append(issues, LoadIssue{LawID: l.ID, Version: l.Version,
				Err: fmt.Errorf("record scope %q disagrees with law text scope %q", l.Scope, doc.Scope)})
			continue
		}
		next.cache[key] = doc
		next.laws = append(next.laws, compiledLaw{law: l, doc: doc})
	}

	r.snap.Store(next)
	return issues
}

// Len reports how many laws are registered.
func (r *Registry) Len() int {
	return len(r.snap.Load().laws)
}

// Evaluate runs every applicable law against the fact context and returns
// the raw decisions of every true clause, in law-then-clause order.
func (r *Registry) Evaluate(subject Subject, fc facts.Context) []decision.Raw {
	snap := r.snap.Load()
	var raws []decision.Raw
	order := 0
	for _, cl := range snap.laws {
		if !cl.law.AppliesTo(subject) {
			continue
		}
		for _, firing := range cl.doc.Evaluate(fc) {
			raws = append(raws, decision.Raw{
				Decision:       firing.Decision,
				Mechanism:      decision.MechanismLaw,
				RuleID:         fmt.Sprintf("%s.%d", cl.law.Name, firing.ClauseIndex),
				Tier:           cl.law.Scope.Tier(),
				Order:          order,
				Constitutional: cl.law.Scope == ScopeMiniConstitution,
			})
			order++
		}
	}
	return raws
}
