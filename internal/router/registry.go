// In file: internal/router/registry.go
package router

import (
	"errors"
	"sort"
	"sync"

	"github.com/dileep-u-k/mcp-gateway/internal/mcp"
	"github.com/dileep-u-k/mcp-gateway/internal/tools"
)

// providerEntry is the registry's mutable record for one provider.
type providerEntry struct {
	spec       ProviderSpec
	status     ProviderStatus
	lastError  string
	conn       mcp.Conn
	operations []Operation
}

// registry holds every registered provider and its live session. It is
// written only by the connection lifecycle (register, connect, error) and
// read during routing, so routing works from snapshots and never blocks a
// connect in progress.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*providerEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*providerEntry)}
}

// upsert registers a provider, replacing any previous registration under the
// same name. A live session from the old registration is closed.
func (r *registry) upsert(spec ProviderSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[spec.Name]; ok && existing.conn != nil {
		existing.conn.Close()
	}
	r.entries[spec.Name] = &providerEntry{
		spec:   spec,
		status: StatusDisconnected,
	}
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry) spec(name string) (ProviderSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return ProviderSpec{}, false
	}
	return entry.spec, true
}

func (r *registry) status(name string) (ProviderStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return "", false
	}
	return entry.status, true
}

func (r *registry) markConnecting(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return ErrUnknownProvider
	}
	entry.status = StatusConnecting
	entry.lastError = ""
	return nil
}

// markConnected installs a live session and its discovered operations. An
// older session for the same provider is closed, which makes reconnects
// replace rather than stack sessions.
func (r *registry) markConnected(name string, conn mcp.Conn, discovered []tools.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return ErrUnknownProvider
	}
	if entry.conn != nil && entry.conn != conn {
		entry.conn.Close()
	}
	entry.conn = conn
	entry.operations = newOperations(name, discovered)
	entry.status = StatusConnected
	entry.lastError = ""
	return nil
}

// markError records a terminal connection failure. The session, if any, is
// closed and the provider's operations disappear from the registry.
func (r *registry) markError(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return
	}
	if entry.conn != nil {
		entry.conn.Close()
		entry.conn = nil
	}
	entry.operations = nil
	entry.status = StatusError
	if err != nil {
		entry.lastError = err.Error()
	}
}

// candidateView is an immutable snapshot of one connected provider taken at
// scoring time. Routing works entirely from these views, so a provider that
// connects or fails mid-route does not affect an in-flight request.
type candidateView struct {
	name         string
	description  string
	priority     float64
	capabilities []string
	operations   []Operation
	conn         mcp.Conn
}

// operation looks up an operation by its qualified name.
func (v candidateView) operation(qualified string) (Operation, bool) {
	for _, op := range v.operations {
		if op.Name == qualified {
			return op, true
		}
	}
	return Operation{}, false
}

// connectedViews snapshots every connected provider, ordered by name.
func (r *registry) connectedViews() []candidateView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]candidateView, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.status != StatusConnected || entry.conn == nil {
			continue
		}
		views = append(views, candidateView{
			name:         entry.spec.Name,
			description:  entry.spec.Description,
			priority:     entry.spec.Priority,
			capabilities: append([]string(nil), entry.spec.Capabilities...),
			operations:   append([]Operation(nil), entry.operations...),
			conn:         entry.conn,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].name < views[j].name })
	return views
}

// operations lists every operation of every connected provider, sorted by
// qualified name.
func (r *registry) operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ops []Operation
	for _, entry := range r.entries {
		if entry.status != StatusConnected {
			continue
		}
		ops = append(ops, entry.operations...)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// erroredNames lists providers stuck in the error state.
func (r *registry) erroredNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, entry := range r.entries {
		if entry.status == StatusError {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// report builds the full status snapshot.
func (r *registry) report() StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report := StatusReport{
		TotalProviders: len(r.entries),
		Providers:      make(map[string]ProviderReport, len(r.entries)),
	}
	for name, entry := range r.entries {
		opNames := make([]string, 0, len(entry.operations))
		for _, op := range entry.operations {
			opNames = append(opNames, op.Name)
		}
		if entry.status == StatusConnected {
			report.ConnectedProviders++
			report.TotalOperations += len(opNames)
		}
		report.Providers[name] = ProviderReport{
			Status:         entry.status,
			Description:    entry.spec.Description,
			Capabilities:   append([]string(nil), entry.spec.Capabilities...),
			Priority:       entry.spec.Priority,
			OperationCount: len(opNames),
			Operations:     opNames,
			LastError:      entry.lastError,
		}
	}
	return report
}

// closeAll closes every live session and resets statuses to disconnected.
func (r *registry) closeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, entry := range r.entries {
		if entry.conn != nil {
			if err := entry.conn.Close(); err != nil {
				errs = append(errs, err)
			}
			entry.conn = nil
		}
		entry.operations = nil
		entry.status = StatusDisconnected
	}
	return errors.Join(errs...)
}
