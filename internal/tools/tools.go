// Package tools defines the capabilities the language model can invoke
// by name during a query, and the registry that mediates invocation.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/llm"
)

// Tool is a named capability with a bounded input contract. Execute
// always returns text: failures are reported as human-readable messages
// the model can react to, not as errors.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]any) string
}

// sourceTracker is implemented by tools that record citation sources as
// a side effect of execution.
type sourceTracker interface {
	lastSources() []domain.Source
	resetSources()
}

// Manager is the registry mapping tool names to tool instances.
type Manager struct {
	tools map[string]Tool
	order []string
}

// NewManager creates an empty tool registry.
func NewManager() *Manager {
	return &Manager{tools: map[string]Tool{}}
}

// Register adds a tool. Registering two tools with the same name is a
// configuration error.
func (m *Manager) Register(t Tool) error {
	name := t.Definition().Function.Name
	if name == "" {
		return fmt.Errorf("tool has no name in its definition")
	}
	if _, exists := m.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	m.tools[name] = t
	m.order = append(m.order, name)
	return nil
}

// Definitions returns the schema list handed to the language model, in
// registration order.
func (m *Manager) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		defs = append(defs, m.tools[name].Definition())
	}
	return defs
}

// Execute dispatches to the named tool. An unknown name produces an
// error message as the tool result rather than failing the query.
func (m *Manager) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := m.tools[name]
	if !ok {
		return fmt.Sprintf("Tool '%s' not found", name)
	}
	return t.Execute(ctx, args)
}

// LastSources collects the sources recorded by tools since the last
// reset.
func (m *Manager) LastSources() []domain.Source {
	var sources []domain.Source
	for _, name := range m.order {
		if tracker, ok := m.tools[name].(sourceTracker); ok {
			sources = append(sources, tracker.lastSources()...)
		}
	}
	return sources
}

// ResetSources clears recorded sources on every tracking tool.
func (m *Manager) ResetSources() {
	for _, t := range m.tools {
		if tracker, ok := t.(sourceTracker); ok {
			tracker.resetSources()
		}
	}
}

// sourceStore is the shared mutex-guarded source list embedded by
// tracking tools.
type sourceStore struct {
	mu      sync.Mutex
	sources []domain.Source
}

func (s *sourceStore) add(sources ...domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, sources...)
}

func (s *sourceStore) lastSources() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

func (s *sourceStore) resetSources() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg reads an optional integer argument. JSON numbers decode as
// float64.
func intArg(args map[string]any, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	default:
		return nil
	}
}
