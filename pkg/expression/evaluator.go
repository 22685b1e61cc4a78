// Package expression provides sandboxed condition and formula evaluation for
// process definitions.
//
// It uses the expr-lang/expr library to evaluate expressions against an
// explicit context of instance variables, the `outcome` pseudo-variable and
// trigger data. The grammar is closed: variable lookup, comparison and
// boolean operators, arithmetic, and a fixed set of pure helper functions.
// There is no I/O, no arbitrary code execution, and no access outside the
// supplied context, which is what makes conditions safe to store and
// re-evaluate across definition versions.
//
// Compiled programs are cached per source string, so publish-time
// compilation pays the parse cost once and runtime evaluation reuses the
// program.
package expression

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Context is the explicit evaluation environment. Every identifier an
// expression may reference lives under one of these three roots.
type Context struct {
	Variables map[string]any
	Outcome   string
	Trigger   map[string]any
}

// EvaluationError wraps a compilation or evaluation failure. Decision
// routing treats these as non-match, never as a silent true.
type EvaluationError struct {
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Evaluator compiles and evaluates expressions with a program cache.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Compile parses and type-checks an expression without evaluating it. The
// definition store calls this at publish time so that anything outside the
// grammar is rejected before an instance can ever run it.
func (e *Evaluator) Compile(src string) error {
	_, err := e.program(src)

	return err
}

// Evaluate runs the expression against the given context and returns its
// value.
func (e *Evaluator) Evaluate(src string, ctx Context) (any, error) {
	program, err := e.program(src)
	if err != nil {
		return nil, err
	}

	output, err := expr.Run(program, buildEnv(ctx))
	if err != nil {
		return nil, &EvaluationError{Expression: src, Err: err}
	}

	return output, nil
}

// EvaluateBool runs a condition expression. A non-boolean result is a type
// mismatch.
func (e *Evaluator) EvaluateBool(src string, ctx Context) (bool, error) {
	output, err := e.Evaluate(src, ctx)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, &EvaluationError{
			Expression: src,
			Err:        fmt.Errorf("expected boolean result, got %T", output),
		}
	}

	return result, nil
}

// EvaluateString runs an expression expected to produce a string, such as an
// assignee or recipient reference.
func (e *Evaluator) EvaluateString(src string, ctx Context) (string, error) {
	output, err := e.Evaluate(src, ctx)
	if err != nil {
		return "", err
	}

	result, ok := output.(string)
	if !ok {
		return "", &EvaluationError{
			Expression: src,
			Err:        fmt.Errorf("expected string result, got %T", output),
		}
	}

	return result, nil
}

func (e *Evaluator) program(src string) (*vm.Program, error) {
	e.mu.RLock()
	program, found := e.cache[src]
	e.mu.RUnlock()

	if found {
		return program, nil
	}

	// Compiling against the canonical env rejects unknown top-level
	// identifiers at publish time instead of at run time.
	program, err := expr.Compile(src, expr.Env(buildEnv(Context{})))
	if err != nil {
		return nil, &EvaluationError{Expression: src, Err: err}
	}

	e.mu.Lock()
	e.cache[src] = program
	e.mu.Unlock()

	return program, nil
}

// buildEnv assembles the evaluation environment: the three context roots
// plus the closed helper function set.
func buildEnv(ctx Context) map[string]any {
	variables := ctx.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	trigger := ctx.Trigger
	if trigger == nil {
		trigger = map[string]any{}
	}

	return map[string]any{
		"variables": variables,
		"outcome":   ctx.Outcome,
		"trigger":   trigger,

		"concat":      helperConcat,
		"sum":         helperSum,
		"count":       helperCount,
		"minOf":       helperMin,
		"maxOf":       helperMax,
		"now":         time.Now,
		"daysAgo":     helperDaysAgo,
		"daysFromNow": helperDaysFromNow,
		"parseDate":   helperParseDate,
	}
}

func helperConcat(parts ...any) string {
	out := ""
	for _, part := range parts {
		out += fmt.Sprint(part)
	}

	return out
}

// helperSum adds the numeric items of a list; for computed fields such as
// line-item totals a field name selects a key from each object item.
func helperSum(list any, field ...string) (float64, error) {
	items, err := asList(list)
	if err != nil {
		return 0, err
	}

	total := 0.0

	for _, item := range items {
		value, err := numericItem(item, field)
		if err != nil {
			return 0, err
		}

		total += value
	}

	return total, nil
}

func helperCount(list any) (int, error) {
	items, err := asList(list)
	if err != nil {
		return 0, err
	}

	return len(items), nil
}

func helperMin(list any, field ...string) (float64, error) {
	return foldNumeric(list, field, func(acc, v float64) float64 {
		if v < acc {
			return v
		}

		return acc
	})
}

func helperMax(list any, field ...string) (float64, error) {
	return foldNumeric(list, field, func(acc, v float64) float64 {
		if v > acc {
			return v
		}

		return acc
	})
}

func foldNumeric(list any, field []string, pick func(acc, v float64) float64) (float64, error) {
	items, err := asList(list)
	if err != nil {
		return 0, err
	}

	if len(items) == 0 {
		return 0, fmt.Errorf("empty list")
	}

	acc, err := numericItem(items[0], field)
	if err != nil {
		return 0, err
	}

	for _, item := range items[1:] {
		value, err := numericItem(item, field)
		if err != nil {
			return 0, err
		}

		acc = pick(acc, value)
	}

	return acc, nil
}

func helperDaysAgo(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}

func helperDaysFromNow(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, days)
}

func helperParseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable date: %q", value)
}

func asList(list any) ([]any, error) {
	items, ok := list.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", list)
	}

	return items, nil
}

func numericItem(item any, field []string) (float64, error) {
	if len(field) > 0 {
		object, ok := item.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("expected object item, got %T", item)
		}

		item = object[field[0]]
	}

	switch v := item.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected numeric item, got %T", item)
	}
}
