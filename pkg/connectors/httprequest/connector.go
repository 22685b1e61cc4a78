// Package httprequest provides the HTTP connector used by action nodes to
// call external services.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
)

const defaultTimeoutSeconds = 30

// Connector performs an HTTP request; the operation reference selects the
// method and the inputs carry url, headers and body.
type Connector struct {
	client *http.Client
}

func NewConnector() *Connector {
	return &Connector{
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}
}

func (c *Connector) Execute(ctx context.Context, operation string, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	url, ok := inputs["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' input")
	}

	method := strings.ToUpper(operation)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if rawBody, exists := inputs["body"]; exists {
		encoded, err := json.Marshal(rawBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		body = strings.NewReader(string(encoded))
	}

	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if headers, ok := inputs["headers"].(map[string]any); ok {
		for name, value := range headers {
			if text, ok := value.(string); ok {
				request.Header.Set(name, text)
			}
		}
	}

	if body != nil && request.Header.Get("Content-Type") == "" {
		request.Header.Set("Content-Type", "application/json")
	}

	logger.InfoContext(ctx, "Executing HTTP request", "method", method, "url", url)

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if err := response.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("request returned status %d", response.StatusCode)
	}

	outputs := map[string]any{
		"status_code": response.StatusCode,
	}

	var decoded any
	if err := json.Unmarshal(responseBody, &decoded); err == nil {
		outputs["body"] = decoded
	} else {
		outputs["body"] = string(responseBody)
	}

	return outputs, nil
}

// Factory creates HTTP connectors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return "http_request"
}

func (f *Factory) Create(_ map[string]any) (protocol.Connector, error) {
	return NewConnector(), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL for the request",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to send",
			},
			"body": map[string]any{
				"description": "Request body, JSON-encoded when not a string",
			},
		},
	}
}
