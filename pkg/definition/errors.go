package definition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotDraft is returned when a mutation targets a published or
	// archived version.
	ErrNotDraft = errors.New("definition is not a draft")

	// ErrNodeNotFound is returned when a node operation references an
	// unknown node ID.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an edge operation references an
	// unknown edge ID.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrTriggerNotFound is returned when a trigger operation references an
	// unknown trigger ID.
	ErrTriggerNotFound = errors.New("trigger not found")
)

// ValidationError reports every structural defect found at publish time,
// not just the first. It never reaches a running instance: a definition that
// fails validation is never published.
type ValidationError struct {
	DefinitionID string
	Violations   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("definition %s failed validation: %s",
		e.DefinitionID, strings.Join(e.Violations, "; "))
}

// IsValidationError reports whether err is a publish-time validation
// failure.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}
