package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/conversation"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxBodyBytes = 1 << 20

// catalogSchema describes the GET /tools response envelope
const catalogSchema = `{
  "type": "object",
  "required": ["tools"],
  "properties": {
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "input_schema": {"type": "object"}
        }
      }
    }
  }
}`

// StatusError is a non-2xx answer from a tool server
type StatusError struct {
	Label   string
	Tool    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	target := e.Label
	if e.Tool != "" {
		target += "/" + e.Tool
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", target, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", target, e.Status, e.Message)
}

// BadArgument reports a 400, the server rejected an argument (e.g. path traversal)
func (e *StatusError) BadArgument() bool { return e.Status == http.StatusBadRequest }

// UnknownTool reports a 404
func (e *StatusError) UnknownTool() bool { return e.Status == http.StatusNotFound }

// Config holds client configuration
type Config struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Client talks to remote tool servers over HTTP/JSON
type Client struct {
	http   *http.Client
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// DiscoveryResult is the outcome of discovery for one label
type DiscoveryResult struct {
	Label string
	Tools []Tool
	Err   error
}

type invokeRequest struct {
	Arguments []string `json:"arguments"`
}

type invokeResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// New creates a tool client
func New(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(catalogSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		http:   httpClient,
		schema: schema,
		logger: cfg.Logger,
	}, nil
}

// Discover fetches the catalog for label, replaces the stored catalog and
// appends it to the conversation as a system turn.
func (c *Client) Discover(ctx context.Context, reg *Registry, conv *conversation.Store, label string) ([]Tool, error) {
	tools, err := c.fetchCatalog(ctx, reg, label)
	if err != nil {
		return nil, err
	}
	if err := c.applyCatalog(ctx, reg, conv, label, tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// DiscoverAll refreshes every registered server. Catalogs are fetched
// concurrently and applied in label order; a failing label never affects
// the others.
func (c *Client) DiscoverAll(ctx context.Context, reg *Registry, conv *conversation.Store) []DiscoveryResult {
	labels := reg.Labels()

	results := iter.Map(labels, func(label *string) DiscoveryResult {
		tools, err := c.fetchCatalog(ctx, reg, *label)
		return DiscoveryResult{Label: *label, Tools: tools, Err: err}
	})

	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if err := c.applyCatalog(ctx, reg, conv, results[i].Label, results[i].Tools); err != nil {
			results[i].Err = err
			results[i].Tools = nil
		}
	}
	return results
}

// Invoke calls tool on the server registered as label and appends the
// output as a system turn.
func (c *Client) Invoke(ctx context.Context, reg *Registry, conv *conversation.Store, label, tool string, args []string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"orca.toolclient",
		"toolclient.invoke",
		attribute.String("label", label),
		attribute.String("tool", tool),
		attribute.Int("args", len(args)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	output, err := c.invoke(ctx, reg, label, tool, args)
	observability.RecordToolCall(label, tool, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordRemoteCall(ctx, label, tool, "failure", map[string]interface{}{"error": err.Error()})
		logger.Warn().Str("label", label).Str("tool", tool).Err(err).Msg("Tool invocation failed")
		return "", err
	}
	observability.RecordRemoteCall(ctx, label, tool, "success", nil)

	if err := conv.AppendSystem(ctx, fmt.Sprintf("Result of %s/%s:\n%s", label, tool, output)); err != nil {
		return output, err
	}

	logger.Debug().Str("label", label).Str("tool", tool).Dur("duration", time.Since(start)).Msg("Tool invoked")
	return output, nil
}

func (c *Client) invoke(ctx context.Context, reg *Registry, label, tool string, args []string) (string, error) {
	server, ok := reg.Get(label)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, label)
	}
	if args == nil {
		args = []string{}
	}

	body, err := json.Marshal(invokeRequest{Arguments: args})
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}

	endpoint := server.BaseURL + "/tools/" + url.PathEscape(tool)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s/%s: %w", label, tool, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%s/%s: failed to read response: %w", label, tool, err)
	}

	var decoded invokeResponse
	jsonErr := json.Unmarshal(data, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if jsonErr == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return "", &StatusError{Label: label, Tool: tool, Status: resp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return "", fmt.Errorf("%s/%s: malformed response: %w", label, tool, jsonErr)
	}
	return decoded.Output, nil
}

func (c *Client) fetchCatalog(ctx context.Context, reg *Registry, label string) ([]Tool, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"orca.toolclient",
		"toolclient.discover",
		attribute.String("label", label),
	)
	defer span.End()

	tools, err := c.fetch(ctx, reg, label)
	observability.RecordDiscovery(label, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger := tracing.LoggerFromContext(ctx, c.logger)
		logger.Warn().Str("label", label).Err(err).Msg("Tool discovery failed")
		return nil, err
	}
	return tools, nil
}

func (c *Client) fetch(ctx context.Context, reg *Registry, label string) ([]Tool, error) {
	server, ok := reg.Get(label)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, label)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.BaseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read catalog: %w", label, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Label: label, Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: malformed catalog: %w", label, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("%s: invalid catalog: %s", label, strings.Join(problems, "; "))
	}

	var envelope struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%s: malformed catalog: %w", label, err)
	}
	if envelope.Tools == nil {
		envelope.Tools = []Tool{}
	}
	return envelope.Tools, nil
}

func (c *Client) applyCatalog(ctx context.Context, reg *Registry, conv *conversation.Store, label string, tools []Tool) error {
	reg.replaceCatalog(label, tools, time.Now())
	return conv.AppendSystem(ctx, FormatCatalog(label, tools))
}

// FormatCatalog renders a catalog the way the model sees it
func FormatCatalog(label string, tools []Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tools available on %s (%d):", label, len(tools))
	for _, t := range tools {
		fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Description)
		if len(t.InputSchema) > 0 {
			var compact bytes.Buffer
			if err := json.Compact(&compact, t.InputSchema); err == nil {
				fmt.Fprintf(&b, " input_schema=%s", compact.String())
			}
		}
	}
	return b.String()
}
