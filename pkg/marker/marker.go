// Package marker implements PEP 508 environment markers: boolean guards
// on dependency edges such as
//
//	python_version >= "3.8" and sys_platform != "win32"
//	extra == "socks"
//
// Markers are parsed once into a small expression tree (and/or/not nodes
// over comparison leaves) and evaluated against an [Environment] of fixed
// facts. Evaluation is pure and total: it performs no I/O and never
// fails. A comparison over a variable the environment does not know
// evaluates to false (non-matching), so locks produced on one platform
// stay partially usable on another.
package marker

import (
	"strings"

	"github.com/matzehuels/padlock/pkg/pep440"
)

// versionVars lists the marker variables whose comparisons are ordered
// by PEP 440 rather than lexicographically.
var versionVars = map[string]bool{
	"python_version":         true,
	"python_full_version":    true,
	"implementation_version": true,
	"platform_release":       false, // kernel strings rarely parse; compared as text
}

// Environment is the fixed fact record markers are evaluated against.
// Facts maps marker variable names (python_version, sys_platform, ...)
// to their values. Extras holds the active extra names; the "extra"
// variable matches iff the compared name is active.
type Environment struct {
	Facts  map[string]string
	Extras map[string]bool
}

// NewEnvironment returns an environment with the given facts and no
// active extras.
func NewEnvironment(facts map[string]string) Environment {
	return Environment{Facts: facts, Extras: map[string]bool{}}
}

// WithExtra returns a copy of env with the named extra active.
func (e Environment) WithExtra(name string) Environment {
	extras := make(map[string]bool, len(e.Extras)+1)
	for k, v := range e.Extras {
		extras[k] = v
	}
	extras[strings.ToLower(name)] = true
	return Environment{Facts: e.Facts, Extras: extras}
}

// lookup resolves a marker variable. ok is false for unknown variables.
func (e Environment) lookup(name string) (string, bool) {
	v, ok := e.Facts[name]
	return v, ok
}

// Expr is a parsed marker expression node.
type Expr interface {
	// Eval evaluates the node against env. It is total: unknown
	// variables make the enclosing comparison false.
	Eval(env Environment) bool
	// String renders the node in canonical marker syntax.
	String() string
}

// andExpr evaluates to true iff both operands do.
type andExpr struct{ left, right Expr }

func (e andExpr) Eval(env Environment) bool { return e.left.Eval(env) && e.right.Eval(env) }
func (e andExpr) String() string            { return e.left.String() + " and " + e.right.String() }

// orExpr evaluates to true iff either operand does.
type orExpr struct{ left, right Expr }

func (e orExpr) Eval(env Environment) bool { return e.left.Eval(env) || e.right.Eval(env) }
func (e orExpr) String() string            { return e.left.String() + " or " + e.right.String() }

// notExpr negates its operand.
type notExpr struct{ inner Expr }

func (e notExpr) Eval(env Environment) bool { return !e.inner.Eval(env) }
func (e notExpr) String() string            { return "not (" + e.inner.String() + ")" }

// group preserves explicit parentheses for String rendering.
type group struct{ inner Expr }

func (e group) Eval(env Environment) bool { return e.inner.Eval(env) }
func (e group) String() string            { return "(" + e.inner.String() + ")" }

// operand is either a marker variable or a quoted literal.
type operand struct {
	text     string
	variable bool
}

// resolve returns the operand's value. ok is false for an unknown
// variable.
func (o operand) resolve(env Environment) (string, bool) {
	if !o.variable {
		return o.text, true
	}
	return env.lookup(o.text)
}

func (o operand) String() string {
	if o.variable {
		return o.text
	}
	return `"` + o.text + `"`
}

// comparison is a leaf node: lhs op rhs.
type comparison struct {
	lhs, rhs operand
	op       string // ==, !=, <, <=, >, >=, ~=, in, not in
}

func (c comparison) String() string {
	return c.lhs.String() + " " + c.op + " " + c.rhs.String()
}

// Eval resolves both operands and compares them. The "extra" variable is
// membership in the active extra set; version-typed variables compare
// under PEP 440 when both sides parse; everything else compares as text.
func (c comparison) Eval(env Environment) bool {
	if c.isExtra() {
		return c.evalExtra(env)
	}

	lhs, ok := c.lhs.resolve(env)
	if !ok {
		return false
	}
	rhs, ok := c.rhs.resolve(env)
	if !ok {
		return false
	}

	switch c.op {
	case "in":
		return strings.Contains(rhs, lhs)
	case "not in":
		return !strings.Contains(rhs, lhs)
	}

	if c.versionTyped() {
		lv, lerr := pep440.Parse(lhs)
		rv, rerr := pep440.Parse(rhs)
		if lerr == nil && rerr == nil {
			return evalOrdered(c.op, lv.Compare(rv), lv, rv)
		}
	}
	return evalText(c.op, lhs, rhs)
}

func (c comparison) isExtra() bool {
	return (c.lhs.variable && c.lhs.text == "extra") || (c.rhs.variable && c.rhs.text == "extra")
}

// evalExtra handles `extra == "name"` (and its negation) against the
// active extra set. Any other operator on extra is non-matching.
func (c comparison) evalExtra(env Environment) bool {
	name := c.rhs.text
	if c.rhs.variable {
		name = c.lhs.text
	}
	active := env.Extras[strings.ToLower(name)]
	switch c.op {
	case "==":
		return active
	case "!=":
		return !active
	default:
		return false
	}
}

func (c comparison) versionTyped() bool {
	return (c.lhs.variable && versionVars[c.lhs.text]) || (c.rhs.variable && versionVars[c.rhs.text])
}

func evalOrdered(op string, cmp int, lv, rv pep440.Version) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "~=":
		spec, err := pep440.ParseSpecifier("~=" + rv.String())
		return err == nil && spec.Matches(lv)
	default:
		return false
	}
}

func evalText(op, lhs, rhs string) bool {
	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	default:
		return false
	}
}
