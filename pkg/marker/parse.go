package marker

import (
	"strings"
	"unicode"

	"github.com/matzehuels/padlock/pkg/errors"
)

// Parse parses a PEP 508 marker expression into an evaluable tree.
// Grammar (standard precedence, "or" weakest):
//
//	expr  := term ("or" term)*
//	term  := factor ("and" factor)*
//	factor := "not" factor | "(" expr ")" | comparison
//	comparison := operand op operand
//
// A malformed marker is rejected with an INVALID_MARKER error.
func Parse(text string) (Expr, error) {
	p := &parser{input: text}
	p.tokens = lex(text)
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, p.errorf("unexpected %q", p.tokens[p.pos].text)
	}
	return expr, nil
}

// MustParse parses text and panics on error. For tests and literals.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
	tokErr
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a marker into tokens. Bad input surfaces as a tokErr token
// so the parser reports position-aware errors instead of panicking.
func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(s) && s[j] != quote {
				j++
			}
			if j >= len(s) {
				return append(toks, token{tokErr, s[i:]})
			}
			toks = append(toks, token{tokString, s[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("<>=!~", rune(c)):
			j := i + 1
			for j < len(s) && strings.ContainsRune("<>=!~", rune(s[j])) {
				j++
			}
			op := s[i:j]
			switch op {
			case "==", "!=", "<", "<=", ">", ">=", "~=":
				toks = append(toks, token{tokOp, op})
			default:
				return append(toks, token{tokErr, op})
			}
			i = j
		case isIdentRune(rune(c)):
			j := i
			for j < len(s) && isIdentRune(rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return append(toks, token{tokErr, string(c)})
		}
	}
	return toks
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) errorf(format string, args ...any) error {
	err := errors.New(errors.ErrCodeInvalidMarker, format, args...)
	err.Message += " in marker " + p.input
	return err
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokIdent || tok.text != "or" {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left: left, right: right}
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokIdent || tok.text != "and" {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = andExpr{left: left, right: right}
	}
}

func (p *parser) parseFactor() (Expr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of expression")
	}

	switch {
	case tok.kind == tokErr:
		return nil, p.errorf("bad token %q", tok.text)
	case tok.kind == tokIdent && tok.text == "not":
		p.pos++
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	case tok.kind == tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok, ok := p.peek(); !ok || tok.kind != tokRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return group{inner: inner}, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (Expr, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	tok, ok := p.peek()
	if !ok {
		return nil, p.errorf("expected operator after %q", lhs.String())
	}
	var op string
	switch {
	case tok.kind == tokOp:
		op = tok.text
		p.pos++
	case tok.kind == tokIdent && tok.text == "in":
		op = "in"
		p.pos++
	case tok.kind == tokIdent && tok.text == "not":
		p.pos++
		if tok, ok := p.peek(); !ok || tok.kind != tokIdent || tok.text != "in" {
			return nil, p.errorf(`expected "in" after "not"`)
		}
		p.pos++
		op = "not in"
	default:
		return nil, p.errorf("expected operator, got %q", tok.text)
	}

	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return comparison{lhs: lhs, rhs: rhs, op: op}, nil
}

func (p *parser) parseOperand() (operand, error) {
	tok, ok := p.peek()
	if !ok {
		return operand{}, p.errorf("expected operand at end of expression")
	}
	switch tok.kind {
	case tokIdent:
		if tok.text == "and" || tok.text == "or" || tok.text == "not" || tok.text == "in" {
			return operand{}, p.errorf("keyword %q used as operand", tok.text)
		}
		p.pos++
		return operand{text: tok.text, variable: true}, nil
	case tokString:
		p.pos++
		return operand{text: tok.text}, nil
	default:
		return operand{}, p.errorf("expected operand, got %q", tok.text)
	}
}
