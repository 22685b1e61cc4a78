// Package decision resolves decision tables against instance data. Tables
// are managed outside the definition lifecycle, so a node references one by
// ID and sees whatever rule set is current at evaluation time.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// Router implements protocol.DecisionTableService over the table repository.
// Rules are checked in declaration order and the first full match wins; no
// match is a valid outcome the caller routes on.
type Router struct {
	repository persistence.DecisionTableRepository
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewRouter(repository persistence.DecisionTableRepository, logger *slog.Logger) *Router {
	return &Router{
		repository: repository,
		logger:     logger.With("module", "decision"),
		cache:      make(map[string]*vm.Program),
	}
}

// Resolve evaluates the table's rules against the input tuple.
func (r *Router) Resolve(ctx context.Context, tableID string, inputs map[string]any) (string, bool, error) {
	table, err := r.repository.GetByID(ctx, tableID)
	if err != nil {
		return "", false, err
	}

	for i, rule := range table.Rules {
		matched, err := r.ruleMatches(rule, inputs)
		if err != nil {
			return "", false, fmt.Errorf("table %s rule %d: %w", tableID, i, err)
		}

		if matched {
			r.logger.DebugContext(ctx, "Decision rule matched",
				"table_id", tableID, "rule", i, "outcome", rule.Outcome)

			return rule.Outcome, true, nil
		}
	}

	r.logger.DebugContext(ctx, "No decision rule matched", "table_id", tableID)

	return "", false, nil
}

// ruleMatches checks every condition of a rule. A condition keyed on an
// input that was not supplied sees a nil value; a rule with no condition for
// an input matches any value of it.
func (r *Router) ruleMatches(rule *models.DecisionRule, inputs map[string]any) (bool, error) {
	for input, condition := range rule.When {
		program, err := r.program(condition)
		if err != nil {
			return false, err
		}

		output, err := expr.Run(program, map[string]any{"value": inputs[input]})
		if err != nil {
			return false, fmt.Errorf("condition %q on input %s: %w", condition, input, err)
		}

		holds, ok := output.(bool)
		if !ok {
			return false, fmt.Errorf("condition %q on input %s: expected boolean, got %T", condition, input, output)
		}

		if !holds {
			return false, nil
		}
	}

	return true, nil
}

// program compiles a rule condition. Rule conditions see a single `value`
// identifier, unlike edge conditions which see the instance context, so the
// router keeps its own program cache.
func (r *Router) program(condition string) (*vm.Program, error) {
	r.mu.RLock()
	program, found := r.cache[condition]
	r.mu.RUnlock()

	if found {
		return program, nil
	}

	program, err := expr.Compile(condition, expr.Env(map[string]any{"value": nil}))
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", condition, err)
	}

	r.mu.Lock()
	r.cache[condition] = program
	r.mu.Unlock()

	return program, nil
}
