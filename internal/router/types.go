// In file: internal/router/types.go
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
	"github.com/dileep-u-k/mcp-gateway/internal/mcp"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// ErrUnknownProvider is returned when an operation names a provider that was
// never registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderStatus tracks where a provider is in its connection lifecycle.
type ProviderStatus string

const (
	StatusDisconnected ProviderStatus = "disconnected"
	StatusConnecting   ProviderStatus = "connecting"
	StatusConnected    ProviderStatus = "connected"
	// StatusError is terminal until Reconnect is called for the provider.
	StatusError ProviderStatus = "error"
)

// ProviderSpec describes a tool provider before any connection is made.
// Specs usually come from the providers file, so the fields carry yaml tags.
type ProviderSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Kind selects the transport (stdio, http, builtin).
	Kind mcp.Kind `yaml:"kind" json:"kind"`

	// Stdio transport: the command to launch and its arguments. Env entries
	// are KEY=VALUE pairs appended to the gateway's own environment.
	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
	Env     []string `yaml:"env,omitempty" json:"env,omitempty"`

	// HTTP transport: the streamable endpoint URL.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Capabilities are the keyword tags the scorer matches against queries.
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// Priority scales the provider's confidence score. Zero means 1.0.
	Priority float64 `yaml:"priority" json:"priority"`
}

// normalized validates the provider definition and fills defaults.
func (s ProviderSpec) normalized() (ProviderSpec, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return s, errors.New("provider name is required")
	}
	if strings.ContainsAny(s.Name, " \t\n") {
		return s, fmt.Errorf("provider name %q must not contain whitespace", s.Name)
	}
	switch s.Kind {
	case mcp.KindStdio:
		if s.Command == "" {
			return s, fmt.Errorf("provider %s: stdio transport requires a command", s.Name)
		}
	case mcp.KindHTTP:
		if s.URL == "" {
			return s, fmt.Errorf("provider %s: http transport requires a url", s.Name)
		}
	case mcp.KindBuiltin:
	case "":
		return s, fmt.Errorf("provider %s: transport kind is required", s.Name)
	default:
		return s, fmt.Errorf("provider %s: unknown transport kind %q", s.Name, s.Kind)
	}
	if s.Priority < 0 {
		return s, fmt.Errorf("provider %s: priority must not be negative", s.Name)
	}
	if s.Priority == 0 {
		s.Priority = 1.0
	}
	return s, nil
}

// endpoint translates the provider definition into a dialable endpoint.
func (s ProviderSpec) endpoint(builtin *tools.ToolManager) mcp.Endpoint {
	return mcp.Endpoint{
		Kind:    s.Kind,
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		URL:     s.URL,
		Builtin: builtin,
	}
}

// Operation is one callable tool discovered from a connected provider.
// Operations are valid only while their provider stays connected.
type Operation struct {
	// Name is the provider-qualified name the model sees, e.g. "weather_get_forecast".
	Name string `json:"name"`
	// RawName is the provider-local name used on the wire.
	RawName string `json:"-"`
	// Description carries a "[PROVIDER]" prefix so the owner is visible to
	// the model and to the scorer.
	Description string           `json:"description"`
	Parameters  tools.JSONSchema `json:"parameters"`
	Provider    string           `json:"provider"`
}

// QualifyOperationName builds the provider-qualified operation name.
func QualifyOperationName(provider, rawName string) string {
	return fmt.Sprintf("%s_%s", provider, rawName)
}

func qualifyDescription(provider, description string) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(provider), description)
}

// newOperations converts discovered tool definitions into qualified operations,
// sorted by name.
func newOperations(provider string, discovered []tools.Tool) []Operation {
	ops := make([]Operation, 0, len(discovered))
	for _, t := range discovered {
		ops = append(ops, Operation{
			Name:        QualifyOperationName(provider, t.Function.Name),
			RawName:     t.Function.Name,
			Description: qualifyDescription(provider, t.Function.Description),
			Parameters:  t.Function.Parameters,
			Provider:    provider,
		})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Candidate is one scored provider in ranked order.
type Candidate struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

// Source says where a route answer came from.
type Source string

const (
	// SourceProvider means a candidate provider handled the query.
	SourceProvider Source = "provider"
	// SourceFallback means the model answered directly without tools.
	SourceFallback Source = "fallback"
)

// RouteResult is the outcome of one Route call. Text is never empty.
type RouteResult struct {
	Text      string    `json:"text"`
	Provider  string    `json:"provider,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Source    Source    `json:"source"`
	Attempts  int       `json:"attempts"`
	Usage     api.Usage `json:"usage"`
}

// ProviderReport is the status snapshot for one provider.
type ProviderReport struct {
	Status         ProviderStatus `json:"status"`
	Description    string         `json:"description"`
	Capabilities   []string       `json:"capabilities"`
	Priority       float64        `json:"priority"`
	OperationCount int            `json:"operation_count"`
	Operations     []string       `json:"operations"`
	LastError      string         `json:"last_error,omitempty"`
}

// StatusReport summarizes the whole registry.
type StatusReport struct {
	TotalProviders     int                       `json:"total_providers"`
	ConnectedProviders int                       `json:"connected_providers"`
	TotalOperations    int                       `json:"total_operations"`
	Providers          map[string]ProviderReport `json:"providers"`
}
