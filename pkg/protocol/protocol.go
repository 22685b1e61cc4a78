// Package protocol defines the interfaces between the orchestration engine
// and its external collaborators. The engine depends only on these
// contracts; concrete connectors, notifiers and decision services plug in
// behind them.
package protocol

import (
	"context"
	"log/slog"
)

// ConnectorInvoker executes an action node's side effect. The returned
// outputs are merged into the instance's variables on success.
type ConnectorInvoker interface {
	Execute(ctx context.Context, connectorRef, operationRef string, inputs map[string]any) (map[string]any, error)
}

// Notifier delivers a templated notification. Email nodes and SLA
// escalation use it best-effort: failures are logged, not fatal, unless the
// node says otherwise.
type Notifier interface {
	Send(ctx context.Context, template, recipient string, variables map[string]any) error
}

// DecisionTableService resolves a decision table against an input tuple.
// ok=false means "no match", which the engine treats like a failed inline
// condition.
type DecisionTableService interface {
	Resolve(ctx context.Context, tableID string, inputs map[string]any) (outcome string, ok bool, err error)
}

// Connector is one configured connector instance able to run operations.
type Connector interface {
	Execute(ctx context.Context, operation string, inputs map[string]any, logger *slog.Logger) (map[string]any, error)
}

// ConnectorFactory creates connector instances and describes their
// configuration schema.
type ConnectorFactory interface {
	// Create builds a connector from its configuration.
	Create(config map[string]any) (Connector, error)

	// ID returns the unique identifier for this connector type.
	ID() string

	// Schema returns the JSON schema for this connector's inputs, used to
	// validate action-node bindings at publish time.
	Schema() map[string]any
}
