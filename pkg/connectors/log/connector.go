// Package log provides a connector that writes its inputs to the structured
// log. Useful for development and as the simplest possible action target.
package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
)

type Connector struct{}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Execute(ctx context.Context, operation string, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	message, _ := inputs["message"].(string)

	logger.InfoContext(ctx, "Log connector invoked", "operation", operation, "message", message, "inputs", inputs)

	return map[string]any{
		"logged_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Factory creates log connectors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return "log"
}

func (f *Factory) Create(_ map[string]any) (protocol.Connector, error) {
	return NewConnector(), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log",
			},
		},
	}
}
