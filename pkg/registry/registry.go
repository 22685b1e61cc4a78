// Package registry maintains the set of available connector types and
// dispatches action-node executions to them.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
)

type Registry struct {
	logger             *slog.Logger
	connectorFactories map[string]protocol.ConnectorFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:             log,
		connectorFactories: make(map[string]protocol.ConnectorFactory),
	}
}

func (r *Registry) RegisterConnector(factory protocol.ConnectorFactory) {
	r.connectorFactories[factory.ID()] = factory
}

// ConnectorIDs returns the registered connector type identifiers.
func (r *Registry) ConnectorIDs() []string {
	ids := make([]string, 0, len(r.connectorFactories))
	for id := range r.connectorFactories {
		ids = append(ids, id)
	}

	return ids
}

// Schema returns the input schema for a registered connector type.
func (r *Registry) Schema(connectorRef string) (map[string]any, error) {
	factory, ok := r.connectorFactories[connectorRef]
	if !ok {
		return nil, fmt.Errorf("connector type '%s' not registered", connectorRef)
	}

	return factory.Schema(), nil
}

// Execute implements protocol.ConnectorInvoker: it creates the connector
// for the reference, validates the inputs against its schema, and runs the
// operation.
func (r *Registry) Execute(ctx context.Context, connectorRef, operationRef string, inputs map[string]any) (map[string]any, error) {
	factory, ok := r.connectorFactories[connectorRef]
	if !ok {
		return nil, fmt.Errorf("connector type '%s' not registered", connectorRef)
	}

	if err := validateAgainstSchema(factory.Schema(), inputs); err != nil {
		return nil, fmt.Errorf("connector %s input validation failed: %w", connectorRef, err)
	}

	connector, err := factory.Create(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector %s: %w", connectorRef, err)
	}

	logger := r.logger.With("connector", connectorRef, "operation", operationRef)

	return connector.Execute(ctx, operationRef, inputs, logger)
}
