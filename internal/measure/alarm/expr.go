package alarm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Expr is a compiled alarm expression. Boolean results are represented as
// 1 (true) and 0 (false).
type Expr interface {
	Eval(env Observables) (float64, error)
	String() string
}

// Num is a numeric literal.
type Num float64

// Ref refers to an observable by name.
type Ref string

// Unary applies a prefix operator ("-" or "!").
type Unary struct {
	Op string
	X  Expr
}

// Binary applies an infix operator.
type Binary struct {
	Op   string
	L, R Expr
}

// Call invokes one of the built-in functions.
type Call struct {
	Fn   string
	Args []Expr
}

// UndefinedError is returned by Eval when a Ref names an observable that is
// not present.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("undefined observable %q", e.Name)
}

func (n Num) Eval(Observables) (float64, error) { return float64(n), nil }
func (n Num) String() string                    { return strconv.FormatFloat(float64(n), 'g', -1, 64) }

func (r Ref) Eval(env Observables) (float64, error) {
	v, ok := env[string(r)]
	if !ok {
		return 0, &UndefinedError{Name: string(r)}
	}
	return v, nil
}
func (r Ref) String() string { return string(r) }

func (u Unary) Eval(env Observables) (float64, error) {
	x, err := u.X.Eval(env)
	if err != nil {
		return 0, err
	}
	switch u.Op {
	case "-":
		return -x, nil
	case "!":
		return truth(x == 0), nil
	}
	return 0, fmt.Errorf("unknown unary operator %q", u.Op)
}
func (u Unary) String() string { return u.Op + u.X.String() }

func (b Binary) Eval(env Observables) (float64, error) {
	l, err := b.L.Eval(env)
	if err != nil {
		return 0, err
	}
	// && and || short-circuit.
	switch b.Op {
	case "&&":
		if l == 0 {
			return 0, nil
		}
	case "||":
		if l != 0 {
			return 1, nil
		}
	}
	r, err := b.R.Eval(env)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case "<":
		return truth(l < r), nil
	case "<=":
		return truth(l <= r), nil
	case ">":
		return truth(l > r), nil
	case ">=":
		return truth(l >= r), nil
	case "==":
		return truth(l == r), nil
	case "!=":
		return truth(l != r), nil
	case "&&", "||":
		return truth(r != 0), nil
	}
	return 0, fmt.Errorf("unknown operator %q", b.Op)
}
func (b Binary) String() string {
	return "(" + b.L.String() + " " + b.Op + " " + b.R.String() + ")"
}

type builtin struct {
	arity int // -1 means one or more
	fn    func(args []float64) float64
}

var builtins = map[string]builtin{
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"log10": {1, func(a []float64) float64 { return math.Log10(a[0]) }},
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"min": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
}

func (c Call) Eval(env Observables) (float64, error) {
	b, ok := builtins[c.Fn]
	if !ok {
		return 0, fmt.Errorf("unknown function %q", c.Fn)
	}
	args := make([]float64, len(c.Args))
	for i, a := range c.Args {
		v, err := a.Eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return b.fn(args), nil
}
func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Fn + "(" + strings.Join(parts, ", ") + ")"
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Refs returns the distinct observable names referenced by e, in first-use
// order.
func Refs(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Ref:
			if !seen[string(n)] {
				seen[string(n)] = true
				out = append(out, string(n))
			}
		case Unary:
			walk(n.X)
		case Binary:
			walk(n.L)
			walk(n.R)
		case Call:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return out
}
