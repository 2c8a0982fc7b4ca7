package lawdsl

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	col  int
}

// lex splits one clause line into tokens. Columns are 1-based and relative
// to the supplied text, for error reporting.
func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", col: i + 1})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", col: i + 1})
			i++
		case r == ',':
			toks = append(toks, token{kind: tokComma, text: ",", col: i + 1})
			i++
		case r == '<' || r == '>':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{kind: tokOp, text: op, col: i + 1})
			i++
		case r == '=' || r == '!':
			if i+1 >= len(runes) || runes[i+1] != '=' {
				return nil, fmt.Errorf("column %d: unexpected %q", i+1, string(r))
			}
			toks = append(toks, token{kind: tokOp, text: string(r) + "=", col: i + 1})
			i += 2
		case r == '"' || r == '\'':
			quote := r
			start := i + 1
			j := start
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("column %d: unterminated string", i+1)
			}
			toks = append(toks, token{kind: tokString, text: string(runes[start:j]), col: i + 1})
			i = j + 1
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("column %d: bad number %q", start+1, text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, col: start + 1})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i]), col: start + 1})
		default:
			return nil, fmt.Errorf("column %d: unexpected %q", i+1, string(r))
		}
	}
	toks = append(toks, token{kind: tokEOF, col: len(runes) + 1})
	return toks, nil
}
