// Package lawdsl parses law text into a typed AST and evaluates it against a
// fact context.
//
// The language is deliberately small and line oriented:
//
//	law late_delivery:1.0.0: mini_constitution:
//	  if contract_expired and not_delivered then penalize
//	  if contract_value > 1000000 then hold("manual review")
//
// Law text is data, not code: there is no escape into a general-purpose
// expression facility. Evaluation walks the typed nodes below and nothing
// else, which keeps laws sandboxed and auditable.
package lawdsl

import (
	"fmt"
	"strings"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
)

// Document is one parsed law: header plus clauses.
type Document struct {
	Name    string
	Version string
	Scope   string
	Clauses []Clause
}

// Clause is a single `if <condition> then <action>` line.
type Clause struct {
	Cond   Expr
	Action Action
	// Line is the 1-based source line the clause was parsed from.
	Line int
}

// Expr is a boolean expression node. The set of implementations is closed:
// binary connective, negation, comparison, and bare fact truth.
type Expr interface {
	// Eval reports whether the expression holds for the given facts.
	// Anything the facts cannot answer evaluates to false.
	Eval(fc facts.Context) bool
	// String renders the node back to law-text form.
	String() string
}

// Binary is an `and` / `or` connective.
type Binary struct {
	Op   string // "and" or "or"
	L, R Expr
}

// Eval implements Expr.
func (b *Binary) Eval(fc facts.Context) bool {
	if b.Op == "and" {
		return b.L.Eval(fc) && b.R.Eval(fc)
	}
	return b.L.Eval(fc) || b.R.Eval(fc)
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R)
}

// Not negates its operand.
type Not struct {
	X Expr
}

// Eval implements Expr.
func (n *Not) Eval(fc facts.Context) bool { return !n.X.Eval(fc) }

func (n *Not) String() string { return "not " + n.X.String() }

// FactTruth is a bare fact identifier used as a condition. It holds only when
// the fact is present and boolean true.
type FactTruth struct {
	Fact string
}

// Eval implements Expr.
func (f *FactTruth) Eval(fc facts.Context) bool {
	v, ok := fc.Bool(f.Fact)
	return ok && v
}

func (f *FactTruth) String() string { return f.Fact }

// Compare is `<fact> <op> <operand>`. The left side is always a fact
// reference; the right side is a literal, or another fact when the identifier
// names one at evaluation time.
type Compare struct {
	Fact string
	Op   string // one of < > <= >= == !=
	RHS  Operand
}

// Eval implements Expr. A comparison whose left fact is absent is false, as
// is one whose operand kinds cannot be compared. Fail closed, never error.
func (c *Compare) Eval(fc facts.Context) bool {
	if n, ok := fc.Number(c.Fact); ok {
		rn, ok := c.RHS.number(fc)
		if !ok {
			return false
		}
		return compareNumbers(c.Op, n, rn)
	}
	if s, ok := fc.String(c.Fact); ok {
		rs, ok := c.RHS.str(fc)
		if !ok {
			return false
		}
		return compareEquality(c.Op, s == rs)
	}
	if b, ok := fc.Bool(c.Fact); ok {
		rb, ok := c.RHS.boolean(fc)
		if !ok {
			return false
		}
		return compareEquality(c.Op, b == rb)
	}
	return false
}

func (c *Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Fact, c.Op, c.RHS)
}

func compareNumbers(op string, a, b float64) bool {
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

// compareEquality maps == / != onto an equality result; relational operators
// over non-numeric facts are false.
func compareEquality(op string, equal bool) bool {
	switch op {
	case "==":
		return equal
	case "!=":
		return !equal
	}
	return false
}

// OperandKind tags a comparison operand.
type OperandKind int

const (
	OperandNumber OperandKind = iota
	OperandBool
	OperandString
	// OperandIdent is a bare identifier: a fact reference when the fact
	// exists, otherwise a string literal (so `risk == high` reads naturally
	// without quoting).
	OperandIdent
)

// Operand is the right-hand side of a comparison.
type Operand struct {
	Kind OperandKind
	Num  float64
	Str  string
	Bool bool
}

func (o Operand) number(fc facts.Context) (float64, bool) {
	switch o.Kind {
	case OperandNumber:
		return o.Num, true
	case OperandIdent:
		return fc.Number(o.Str)
	}
	return 0, false
}

func (o Operand) str(fc facts.Context) (string, bool) {
	switch o.Kind {
	case OperandString:
		return o.Str, true
	case OperandIdent:
		if v, ok := fc.String(o.Str); ok {
			return v, true
		}
		return o.Str, true
	}
	return "", false
}

func (o Operand) boolean(fc facts.Context) (bool, bool) {
	switch o.Kind {
	case OperandBool:
		return o.Bool, true
	case OperandIdent:
		return fc.Bool(o.Str)
	}
	return false, false
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.Kind {
	case OperandNumber:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", o.Num), "0"), ".")
	case OperandBool:
		return fmt.Sprintf("%t", o.Bool)
	case OperandString:
		return fmt.Sprintf("%q", o.Str)
	default:
		return o.Str
	}
}

// ActionKind enumerates the actions a clause may take.
type ActionKind string

const (
	ActionDeny     ActionKind = "deny"
	ActionRevoke   ActionKind = "revoke"
	ActionPenalize ActionKind = "penalize"
	ActionHold     ActionKind = "hold"
)

// Action is the consequence of a true clause condition.
type Action struct {
	Kind ActionKind
	Args []string
}

// Decision converts the action into the shared decision model.
func (a Action) Decision() decision.Decision {
	reason := ""
	if len(a.Args) > 0 {
		reason = a.Args[0]
	}
	switch a.Kind {
	case ActionDeny:
		return decision.Deny(reason)
	case ActionRevoke:
		return decision.Revoke(reason)
	case ActionPenalize:
		var cents int64
		if len(a.Args) > 0 {
			_, _ = fmt.Sscanf(a.Args[0], "%d", &cents)
		}
		return decision.Penalize(cents)
	case ActionHold:
		return decision.Hold(reason)
	}
	// Parser only emits the four kinds above; an unknown kind denies.
	return decision.Deny("unknown action " + string(a.Kind))
}
