package models

// DecisionRule is one row of a decision table. When every input expression
// holds against the supplied inputs, the rule matches and yields Outcome.
type DecisionRule struct {
	// When maps an input name to a condition expression over `value`, e.g.
	// "value > 500" or "value == \"EMEA\"". A missing entry matches any value.
	When    map[string]string `json:"when"`
	Outcome string            `json:"outcome" validate:"required"`
}

// DecisionTable is an externally managed routing rule set used by decision
// nodes as an alternative to inline edge conditions. Rules are evaluated in
// order; the first match wins and no match is a valid result the engine
// treats like a failed inline condition.
type DecisionTable struct {
	ID     string          `json:"id"     validate:"required"`
	Name   string          `json:"name"`
	Inputs []string        `json:"inputs"`
	Rules  []*DecisionRule `json:"rules"  validate:"required,min=1"`
}
