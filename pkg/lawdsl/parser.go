package lawdsl

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports unparseable law text. Laws that fail to parse are
// rejected at load time and never reach evaluation.
type ParseError struct {
	Line int
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("lawdsl: line %d: %s", e.Line, e.Msg)
	}
	return "lawdsl: " + e.Msg
}

var headerPattern = regexp.MustCompile(`^law\s+([A-Za-z0-9_.-]+):([A-Za-z0-9_.-]+):\s*([a-z_]+):$`)

var validScopes = map[string]bool{
	"mini_constitution": true,
	"superior":          true,
	"app":               true,
	"tenant":            true,
	"user":              true,
}

// Parse parses a complete law body: a `law <name>:<version>: <scope>:`
// header followed by one or more two-space-indented clause lines. Blank
// lines and `#` comments are ignored.
func Parse(input string) (*Document, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	var doc *Document
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if doc == nil {
			m := headerPattern.FindStringSubmatch(trimmed)
			if m == nil {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("expected 'law <name>:<version>: <scope>:' header, got %q", trimmed)}
			}
			if !validScopes[m[3]] {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("unknown scope %q", m[3])}
			}
			doc = &Document{Name: m[1], Version: m[2], Scope: m[3]}
			continue
		}
		if !strings.HasPrefix(raw, "  ") {
			return nil, &ParseError{Line: lineNo, Msg: "clause lines must be indented two spaces"}
		}
		clause, err := parseClause(trimmed, lineNo)
		if err != nil {
			return nil, err
		}
		doc.Clauses = append(doc.Clauses, *clause)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	if doc == nil {
		return nil, &ParseError{Msg: "empty law body"}
	}
	if len(doc.Clauses) == 0 {
		return nil, &ParseError{Line: lineNo, Msg: "law has no clauses"}
	}
	return doc, nil
}

// parseClause parses `if <condition> then <action>[(<arg>,...)]`.
func parseClause(line string, lineNo int) (*Clause, error) {
	toks, err := lex(line)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: err.Error()}
	}
	p := &parser{toks: toks, line: lineNo}

	if !p.acceptKeyword("if") {
		return nil, p.errorf("clause must start with 'if'")
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("then") {
		return nil, p.errorf("expected 'then' after condition")
	}
	action, err := p.parseAction()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("trailing input after action")
	}
	return &Clause{Cond: cond, Action: *action, Line: lineNo}, nil
}

type parser struct {
	toks []token
	pos  int
	line int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptKeyword(kw string) bool {
	if t := p.peek(); t.kind == tokIdent && t.text == kw {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

// parseOr handles the lowest-precedence connective.
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptKeyword("not") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	case tokIdent:
		if isReserved(t.text) {
			return nil, p.errorf("unexpected keyword %q in condition", t.text)
		}
		p.next()
		if op := p.peek(); op.kind == tokOp {
			p.next()
			rhs, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return &Compare{Fact: t.text, Op: op.text, RHS: *rhs}, nil
		}
		return &FactTruth{Fact: t.text}, nil
	default:
		return nil, p.errorf("column %d: expected fact identifier or '('", t.col)
	}
}

func (p *parser) parseOperand() (*Operand, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &Operand{Kind: OperandNumber, Num: t.num}, nil
	case tokString:
		return &Operand{Kind: OperandString, Str: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &Operand{Kind: OperandBool, Bool: true}, nil
		case "false":
			return &Operand{Kind: OperandBool, Bool: false}, nil
		}
		if isReserved(t.text) {
			return nil, p.errorf("unexpected keyword %q as comparison operand", t.text)
		}
		return &Operand{Kind: OperandIdent, Str: t.text}, nil
	default:
		return nil, p.errorf("column %d: expected literal or identifier after operator", t.col)
	}
}

func (p *parser) parseAction() (*Action, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, p.errorf("expected action name")
	}
	kind := ActionKind(t.text)
	switch kind {
	case ActionDeny, ActionRevoke, ActionPenalize, ActionHold:
	default:
		return nil, p.errorf("unknown action %q", t.text)
	}

	var args []string
	if p.peek().kind == tokLParen {
		p.next()
		for {
			t := p.next()
			switch t.kind {
			case tokRParen:
				if len(args) == 0 {
					return nil, p.errorf("empty argument list for %s", kind)
				}
				return finishAction(p, kind, args)
			case tokString:
				args = append(args, t.text)
			case tokNumber:
				args = append(args, t.text)
			case tokIdent:
				// Bare words accumulate into one argument until a comma or
				// the closing paren, so hold(manual review) reads naturally.
				arg := t.text
				for p.peek().kind == tokIdent {
					arg += " " + p.next().text
				}
				args = append(args, arg)
			case tokEOF:
				return nil, p.errorf("unterminated argument list for %s", kind)
			case tokComma:
				// Skip separators; empty positions are rejected on close.
			default:
				return nil, p.errorf("unexpected %q in argument list", t.text)
			}
		}
	}
	if kind == ActionHold {
		return nil, p.errorf("hold requires a reason argument")
	}
	return &Action{Kind: kind}, nil
}

var penalizeArgPattern = regexp.MustCompile(`^\d+$`)

func finishAction(p *parser, kind ActionKind, args []string) (*Action, error) {
	if kind == ActionPenalize && len(args) > 0 {
		if !penalizeArgPattern.MatchString(args[0]) {
			return nil, p.errorf("penalize argument must be an integer amount in cents")
		}
	}
	return &Action{Kind: kind, Args: args}, nil
}

func isReserved(word string) bool {
	switch word {
	case "if", "then", "and", "or", "not":
		return true
	}
	return false
}
