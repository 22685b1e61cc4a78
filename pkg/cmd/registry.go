package cmd

import (
	"log/slog"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/connectors/httprequest"
	logconnector "github.com/Nirvasoft/FlowForge-sub004/pkg/connectors/log"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/registry"
)

// NewRegistry builds the connector registry with the native connectors
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterConnector(httprequest.NewFactory())
	reg.RegisterConnector(logconnector.NewFactory())

	return reg
}
