// Package rulesx provides an optional CEL-Go hook for custom per-account
// suspicion signals, compiled once and evaluated per account the same way
// rules.Engine compiles and evaluates transaction rules: a shared *cel.Env
// with a fixed variable set, pre-compiled programs, evaluated against a
// per-call activation map.
package rulesx

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/mulegraph/internal/graph"
)

// MaxContribution bounds how many behavioral-score points all custom rules
// together may contribute, so a misconfigured expression cannot dominate the
// fixed §4.6 table.
const MaxContribution = 10

// Rule is a named CEL expression contributing additional suspicion points.
// Expression evaluates against the account feature variables registered in
// NewEngine's environment and must return a bool, int, or double.
type Rule struct {
	ID         string
	Expression string
	Points     float64
}

// Engine holds compiled custom rules and evaluates all of them against an
// account's behavioral feature set.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules map[string]cel.Program
	specs map[string]*Rule
}

// NewEngine builds the CEL environment with the account feature variables
// every custom rule may reference.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("round_ratio", cel.DoubleType),
		cel.Variable("night_ratio", cel.DoubleType),
		cel.Variable("balanced_ratio", cel.DoubleType),
		cel.Variable("distinct_counterparties", cel.IntType),
		cel.Variable("velocity_per_hour", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{
		env:   env,
		rules: make(map[string]cel.Program),
		specs: make(map[string]*Rule),
	}, nil
}

// LoadRule compiles and registers a custom rule.
func (e *Engine) LoadRule(r *Rule) error {
	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}
	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", r.ID, outputType)
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[r.ID] = program
	e.specs[r.ID] = r
	return nil
}

// Evaluate runs every loaded rule against the account's feature set and
// returns the sum of points contributed by rules that evaluated truthy,
// capped at MaxContribution.
func (e *Engine) Evaluate(a *graph.Account) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.rules) == 0 || a == nil {
		return 0
	}

	activation := map[string]any{
		"tx_count":                int64(a.TxCount),
		"round_ratio":             ratio(a.RoundAmountCount, a.TxCount),
		"night_ratio":             ratio(a.NightCount, a.TxCount),
		"balanced_ratio":          balancedRatio(a),
		"distinct_counterparties": int64(a.DistinctCounterparties()),
		"velocity_per_hour":       float64(a.TxCount) / a.HoursActive(),
	}

	var total float64
	for id, program := range e.rules {
		out, _, err := program.Eval(activation)
		if err != nil {
			continue
		}
		if toBool(out) {
			total += e.specs[id].Points
		}
	}
	if total > MaxContribution {
		total = MaxContribution
	}
	return total
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func balancedRatio(a *graph.Account) float64 {
	in, _ := a.InVolume.Float64()
	out, _ := a.OutVolume.Float64()
	max := in
	if out > max {
		max = out
	}
	if max < 1 {
		max = 1
	}
	min := in
	if out < min {
		min = out
	}
	return min / max
}

func toBool(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) != 0
	case types.Int:
		return int64(v) != 0
	default:
		return false
	}
}

// LoadRulesFile reads a JSON array of Rule definitions from disk. Operators
// on the Community tier configure custom scoring signals this way instead
// of through a database-backed rule table.
func LoadRulesFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []*Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}
	return rules, nil
}

// RulesCount returns the number of loaded custom rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}
