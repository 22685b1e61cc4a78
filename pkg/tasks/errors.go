package tasks

import (
	"errors"
	"fmt"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// InvalidStateError rejects a task operation that is not legal in the task's
// current status. The task is left unchanged.
type InvalidStateError struct {
	TaskID string
	Status models.TaskStatus
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s task %s in status %s", e.Action, e.TaskID, e.Status)
}

// IsInvalidState reports whether err is a task state machine rejection.
func IsInvalidState(err error) bool {
	var target *InvalidStateError

	return errors.As(err, &target)
}

// NotClaimantError rejects a release attempted by someone other than the
// current claimant.
type NotClaimantError struct {
	TaskID    string
	ClaimedBy string
	User      string
}

func (e *NotClaimantError) Error() string {
	return fmt.Sprintf("task %s is claimed by %s, not %s", e.TaskID, e.ClaimedBy, e.User)
}

// IsNotClaimant reports whether err is a claimant mismatch rejection.
func IsNotClaimant(err error) bool {
	var target *NotClaimantError

	return errors.As(err, &target)
}
