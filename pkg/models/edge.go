package models

// Edge represents a conditional transition between two nodes.
//
// Condition is an expression evaluated against the instance's variable
// context plus an `outcome` pseudo-variable set by the most recently
// completed task or action. An empty condition is unconditionally true.
type Edge struct {
	ID        string `json:"id"     validate:"required"`
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// Unconditional reports whether the edge carries no condition.
func (e *Edge) Unconditional() bool {
	return e.Condition == ""
}
