// Package alarm evaluates guard expressions over the observables of a
// measurement step.
//
// Rules are compiled once, when the engine is built, and evaluated after
// every step against the latest ObservableSet. Alarms are advisory: the
// engine reports results and notifies the operator, and it is up to the
// runner's policy whether a severity stops the run.
package alarm

import (
	"fmt"
	"strings"
)

// Observables maps observable names to their latest value.
type Observables map[string]float64

// Severity classifies what a triggered rule means for the operator.
type Severity int

const (
	// ShowValue surfaces the expression value every step. It is not limited
	// to boolean expressions and never stops the run.
	ShowValue Severity = iota
	// CallForHelp raises a critical notification when the expression is
	// true. The run continues unless the runner maps it to abort.
	CallForHelp
	// Quit requests that the run stops after the current step.
	Quit
)

func (s Severity) String() string {
	switch s {
	case ShowValue:
		return "show_value"
	case CallForHelp:
		return "call_for_help"
	case Quit:
		return "quit"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity accepts the names produced by Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "show_value", "show", "showvalue":
		return ShowValue, nil
	case "call_for_help", "callcops", "call_cops", "help":
		return CallForHelp, nil
	case "quit", "abort":
		return Quit, nil
	}
	return 0, fmt.Errorf("unknown alarm severity %q", s)
}

// Rule is a declared alarm. Name defaults to the expression text.
type Rule struct {
	Name     string
	Expr     string
	Severity Severity
}

// Result is the outcome of one rule for one step.
type Result struct {
	Rule      Rule
	Triggered bool
	Value     float64
}

// EvaluationError reports an alarm that cannot be compiled or evaluated.
// Both cases are configuration bugs and abort the run.
type EvaluationError struct {
	Rule Rule
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("alarm %q: %v", e.Rule.Name, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

type compiled struct {
	rule Rule
	expr Expr
}

// Engine evaluates a fixed set of compiled rules. It holds no state between
// evaluations.
type Engine struct {
	rules []compiled
}

// NewEngine compiles rules. Rules with a blank expression are dropped.
func NewEngine(rules ...Rule) (*Engine, error) {
	e := &Engine{}
	for _, r := range rules {
		r.Expr = strings.TrimSpace(r.Expr)
		if r.Expr == "" {
			continue
		}
		if r.Name == "" {
			r.Name = r.Expr
		}
		if r.Severity < ShowValue || r.Severity > Quit {
			return nil, &EvaluationError{Rule: r, Err: fmt.Errorf("invalid severity %d", int(r.Severity))}
		}
		expr, err := Compile(r.Expr)
		if err != nil {
			return nil, &EvaluationError{Rule: r, Err: err}
		}
		e.rules = append(e.rules, compiled{rule: r, expr: expr})
	}
	return e, nil
}

// Rules returns the compiled rules in declaration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// Refs returns every observable name the rules depend on.
func (e *Engine) Refs() []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range e.rules {
		for _, name := range Refs(c.expr) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// Evaluate runs every rule against obs. The first rule that cannot be
// evaluated stops evaluation with an *EvaluationError.
func (e *Engine) Evaluate(obs Observables) ([]Result, error) {
	results := make([]Result, 0, len(e.rules))
	for _, c := range e.rules {
		v, err := c.expr.Eval(obs)
		if err != nil {
			return nil, &EvaluationError{Rule: c.rule, Err: err}
		}
		results = append(results, Result{Rule: c.rule, Triggered: v != 0, Value: v})
	}
	return results, nil
}
