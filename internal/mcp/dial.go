package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/dileep-u-k/mcp-gateway/internal/tools"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind selects the transport a provider is reached over.
type Kind string

const (
	// KindStdio spawns the provider as a subprocess and speaks MCP over
	// its stdin/stdout.
	KindStdio Kind = "stdio"
	// KindHTTP reaches the provider over streamable HTTP.
	KindHTTP Kind = "http"
	// KindBuiltin serves an in-process tool manager, no transport.
	KindBuiltin Kind = "builtin"
)

// Endpoint describes how to reach one provider.
type Endpoint struct {
	Kind    Kind
	Command string
	Args    []string
	// Env holds KEY=VALUE pairs appended to the inherited environment of a
	// stdio subprocess.
	Env     []string
	URL     string
	Builtin *tools.ToolManager
}

// Dialer establishes provider connections. One dialer is shared by all
// providers of a router instance.
type Dialer struct {
	impl    *sdk.Implementation
	timeout time.Duration
	retry   RetryConfig
}

// NewDialer creates a dialer identifying itself to providers with the given
// client name and version. Timeout bounds each connection handshake.
func NewDialer(clientName, clientVersion string, timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dialer{
		impl:    &sdk.Implementation{Name: clientName, Version: clientVersion},
		timeout: timeout,
		retry:   DefaultRetryConfig(),
	}
}

// Dial connects to the endpoint and returns a live Conn. Transient transport
// failures are retried with exponential backoff before giving up; anything
// else fails fast. The caller owns the returned connection.
func (d *Dialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	switch ep.Kind {
	case KindBuiltin:
		if ep.Builtin == nil {
			return nil, fmt.Errorf("builtin endpoint has no tool manager")
		}
		return NewBuiltinConn(ep.Builtin), nil
	case KindStdio:
		if ep.Command == "" {
			return nil, fmt.Errorf("stdio endpoint has no command")
		}
	case KindHTTP:
		if ep.URL == "" {
			return nil, fmt.Errorf("http endpoint has no url")
		}
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", ep.Kind)
	}

	session, err := WithRetry(ctx, d.retry, "dial "+string(ep.Kind), func() (*sdk.ClientSession, error) {
		dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		client := sdk.NewClient(d.impl, nil)
		return client.Connect(dialCtx, d.transportFor(ep), nil)
	})
	if err != nil {
		return nil, err
	}
	return NewSessionConn(session), nil
}

// transportFor builds a fresh transport per attempt. A CommandTransport owns
// its exec.Cmd and cannot be restarted once the process exits, so reuse
// across attempts is not possible.
func (d *Dialer) transportFor(ep Endpoint) sdk.Transport {
	switch ep.Kind {
	case KindStdio:
		cmd := exec.Command(ep.Command, ep.Args...)
		if len(ep.Env) > 0 {
			cmd.Env = append(os.Environ(), ep.Env...)
		}
		cmd.Stderr = os.Stderr
		return &sdk.CommandTransport{Command: cmd}
	default:
		return &sdk.StreamableClientTransport{Endpoint: ep.URL}
	}
}
