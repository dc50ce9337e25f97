// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"sort"
	"sync"

	"github.com/praxislabs/praxis/pkg/core"
	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/llm"
)

// Registry holds the installed capabilities. Agents reference them by name;
// the registry resolves which subset a given caller may see and invoke.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register installs a capability. Names must be unique.
func (r *Registry) Register(c Capability) error {
	contract := c.Contract()
	if err := contract.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[contract.Name]; exists {
		return errors.New(errors.CodeInvalidInput, "capability already registered", nil).
			WithContext("name", contract.Name)
	}
	r.caps[contract.Name] = c
	return nil
}

// Get returns the capability by name, or a not-found error.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "unknown capability", nil).WithContext("name", name)
	}
	return c, nil
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VisibleTo returns the capabilities the caller may see for this agent:
// public ones for everyone, private ones only for the owner, disabled ones
// for no one. A non-owner cannot tell a private capability apart from one
// that does not exist.
func (r *Registry) VisibleTo(agent *core.Agent, caller core.Caller) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(agent.Capabilities))
	for name := range agent.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Capability
	for _, name := range names {
		c, ok := r.caps[name]
		if !ok {
			continue
		}
		switch agent.CapabilityState(name) {
		case core.AuthzPublic:
			out = append(out, c)
		case core.AuthzPrivate:
			if caller.IsOwner(agent) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Authorize resolves a capability for invocation by the caller. The
// authorization check runs before any argument validation, so a denied
// caller learns nothing about the argument schema.
func (r *Registry) Authorize(agent *core.Agent, caller core.Caller, name string) (Capability, error) {
	switch agent.CapabilityState(name) {
	case core.AuthzPublic:
	case core.AuthzPrivate:
		if !caller.IsOwner(agent) {
			return nil, errors.New(errors.CodeUnauthorized, "capability not authorized for caller", nil).
				WithContext("capability", name).
				WithContext("agent_id", agent.ID)
		}
	default:
		return nil, errors.New(errors.CodeUnauthorized, "capability not enabled for agent", nil).
			WithContext("capability", name).
			WithContext("agent_id", agent.ID)
	}
	return r.Get(name)
}

// ToolDefinitions converts capabilities to LLM function tool definitions.
func ToolDefinitions(caps []Capability) []llm.Tool {
	defs := make([]llm.Tool, 0, len(caps))
	for _, c := range caps {
		defs = append(defs, c.Contract().ToolDefinition())
	}
	return defs
}
