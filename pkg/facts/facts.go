// Package facts holds the flat fact context every evaluation runs against.
//
// A fact context is a plain name → scalar mapping assembled by the caller
// from contract, agent, and run state. Both rule mechanisms read facts
// through the typed accessors here, which report absence instead of erroring:
// a missing fact makes any comparison over it false, never a failure.
package facts

import "sort"

// Context is a flat mapping of fact name → scalar value. Values are expected
// to be one of: bool, string, int, int64, float64.
type Context map[string]any

// New returns an empty fact context.
func New() Context {
	return make(Context)
}

// Clone returns a shallow copy. Scalars only, so a shallow copy is a copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge overlays the given facts on a copy of c and returns the copy.
// Overrides win on name collision; c itself is never mutated.
func (c Context) Merge(overrides Context) Context {
	out := c.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Bool reports the named fact as a boolean. Absent or non-boolean facts
// report ok=false.
func (c Context) Bool(name string) (bool, bool) {
	v, present := c[name]
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// Number reports the named fact as a float64, accepting the integer kinds a
// caller-assembled map typically carries.
func (c Context) Number(name string) (float64, bool) {
	v, present := c[name]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// String reports the named fact as a string.
func (c Context) String(name string) (string, bool) {
	v, present := c[name]
	if !present {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// Names returns the fact names in sorted order, for deterministic traces.
func (c Context) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
