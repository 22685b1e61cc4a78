package engine

import (
	"errors"
	"fmt"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// ErrActivationNotFound is returned when a completion callback references an
// activation the instance no longer carries.
var ErrActivationNotFound = errors.New("activation not found")

// ConnectorError wraps a connector failure after the retry policy is
// exhausted. Error handling on the node decides whether it fails the
// instance or execution continues with outputs unset.
type ConnectorError struct {
	NodeID    string
	Connector string
	Attempts  int
	Err       error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s failed at node %s after %d attempt(s): %v",
		e.Connector, e.NodeID, e.Attempts, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// RoutingError reports a decision point where no outgoing edge matched. It
// always fails the instance: a silent dead end would strand the branch.
type RoutingError struct {
	NodeID string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no outgoing edge matched at node %s", e.NodeID)
}

// InstanceStateError rejects a lifecycle operation that is not legal for the
// instance's current status. The instance is left unchanged.
type InstanceStateError struct {
	InstanceID string
	Status     models.InstanceStatus
	Action     string
}

func (e *InstanceStateError) Error() string {
	return fmt.Sprintf("cannot %s instance %s in status %s", e.Action, e.InstanceID, e.Status)
}

// IsInstanceState reports whether err is an instance lifecycle rejection.
func IsInstanceState(err error) bool {
	var target *InstanceStateError

	return errors.As(err, &target)
}
