package expression_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
)

func TestEvaluateVariableLookup(t *testing.T) {
	evaluator := expression.New()

	result, err := evaluator.Evaluate("variables.amount * 2", expression.Context{
		Variables: map[string]any{"amount": 21.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 43.0, result)
}

func TestEvaluateBoolConditions(t *testing.T) {
	ctx := expression.Context{
		Variables: map[string]any{"amount": 750.0, "region": "EMEA"},
		Outcome:   "approved",
		Trigger:   map[string]any{"source": "form"},
	}

	tests := []struct {
		name       string
		expression string
		expected   bool
	}{
		{"comparison", "variables.amount > 500", true},
		{"conjunction", `variables.amount > 500 && variables.region == "EMEA"`, true},
		{"outcome", `outcome == "rejected"`, false},
		{"trigger data", `trigger.source == "form"`, true},
		{"missing variable is nil", `variables.missing == nil`, true},
	}

	evaluator := expression.New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.EvaluateBool(tt.expression, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluateBoolRejectsNonBoolean(t *testing.T) {
	evaluator := expression.New()

	_, err := evaluator.EvaluateBool("variables.amount", expression.Context{
		Variables: map[string]any{"amount": 12.0},
	})
	require.Error(t, err)

	var evalErr *expression.EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "variables.amount", evalErr.Expression)
}

func TestCompileRejectsUnknownIdentifier(t *testing.T) {
	evaluator := expression.New()

	assert.Error(t, evaluator.Compile("workflow.amount > 10"))
	assert.Error(t, evaluator.Compile("os.Getenv('HOME')"))
	assert.NoError(t, evaluator.Compile("variables.amount > 10"))
}

func TestCompileRejectsSyntaxError(t *testing.T) {
	evaluator := expression.New()

	err := evaluator.Compile("variables.amount >")
	require.Error(t, err)

	var evalErr *expression.EvaluationError
	assert.True(t, errors.As(err, &evalErr))
}

func TestHelperConcat(t *testing.T) {
	evaluator := expression.New()

	result, err := evaluator.EvaluateString(`concat("order-", variables.id, "-", 7)`, expression.Context{
		Variables: map[string]any{"id": "ab12"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order-ab12-7", result)
}

func TestHelperSumAndCount(t *testing.T) {
	ctx := expression.Context{
		Variables: map[string]any{
			"lines": []any{
				map[string]any{"total": 10.0},
				map[string]any{"total": 32.5},
			},
			"scores": []any{1, 2, 3},
		},
	}

	evaluator := expression.New()

	total, err := evaluator.Evaluate(`sum(variables.lines, "total")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.5, total)

	plain, err := evaluator.Evaluate("sum(variables.scores)", ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, plain)

	count, err := evaluator.Evaluate("count(variables.lines)", ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHelperMinMax(t *testing.T) {
	ctx := expression.Context{
		Variables: map[string]any{
			"bids": []any{
				map[string]any{"price": 300.0},
				map[string]any{"price": 120.0},
				map[string]any{"price": 990.0},
			},
		},
	}

	evaluator := expression.New()

	low, err := evaluator.Evaluate(`minOf(variables.bids, "price")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 120.0, low)

	high, err := evaluator.Evaluate(`maxOf(variables.bids, "price")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 990.0, high)

	_, err = evaluator.Evaluate(`minOf(variables.empty, "price")`, expression.Context{
		Variables: map[string]any{"empty": []any{}},
	})
	assert.Error(t, err)
}

func TestHelperSumRejectsNonList(t *testing.T) {
	evaluator := expression.New()

	_, err := evaluator.Evaluate("sum(variables.amount)", expression.Context{
		Variables: map[string]any{"amount": 12.0},
	})
	assert.Error(t, err)
}

func TestHelperParseDate(t *testing.T) {
	evaluator := expression.New()

	result, err := evaluator.Evaluate(`parseDate("2026-03-01")`, expression.Context{})
	require.NoError(t, err)

	parsed, ok := result.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2026, parsed.Year())
	assert.Equal(t, time.March, parsed.Month())

	_, err = evaluator.Evaluate(`parseDate("not a date")`, expression.Context{})
	assert.Error(t, err)
}

func TestHelperDateWindows(t *testing.T) {
	evaluator := expression.New()

	result, err := evaluator.EvaluateBool("daysAgo(7) < now() && daysFromNow(7) > now()", expression.Context{})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestProgramCacheServesRepeatedSources(t *testing.T) {
	evaluator := expression.New()

	for range 3 {
		result, err := evaluator.EvaluateBool("variables.n > 1", expression.Context{
			Variables: map[string]any{"n": 5},
		})
		require.NoError(t, err)
		assert.True(t, result)
	}
}

func TestEvaluateStringRejectsNonString(t *testing.T) {
	evaluator := expression.New()

	_, err := evaluator.EvaluateString("variables.n", expression.Context{
		Variables: map[string]any{"n": 5},
	})
	require.Error(t, err)

	var evalErr *expression.EvaluationError
	assert.True(t, errors.As(err, &evalErr))
}
