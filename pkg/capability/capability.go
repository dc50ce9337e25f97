// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the contract for metered, schema-validated
// operations an agent can call during a turn, and the registry that scopes
// them per agent and caller.
package capability

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/praxislabs/praxis/pkg/errors"
	"github.com/praxislabs/praxis/pkg/llm"
)

// namePattern enforces category-prefixed names like "web.search" or
// "wallet.transfer_funds".
var namePattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// Contract is the declared surface of a capability: what the model sees,
// what arguments are accepted, and what an invocation costs.
type Contract struct {
	// Name is category-prefixed, e.g. "web.search". The category groups
	// related capabilities for operator configuration.
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// Schema is a JSON Schema object describing the arguments.
	Schema map[string]any `json:"schema" yaml:"schema"`

	// NominalCost is the amount reserved before invocation. The actual
	// charge may come in lower.
	NominalCost decimal.Decimal `json:"nominal_cost" yaml:"nominal_cost"`

	// Idempotent marks invocations as safe to retry on transient failure.
	Idempotent bool `json:"idempotent" yaml:"idempotent"`
}

// Category returns the prefix before the first dot.
func (c Contract) Category() string {
	if i := strings.Index(c.Name, "."); i > 0 {
		return c.Name[:i]
	}
	return c.Name
}

// Validate checks the contract is well formed.
func (c Contract) Validate() error {
	if !namePattern.MatchString(c.Name) {
		return errors.New(errors.CodeInvalidInput, "capability name must be category-prefixed, e.g. \"web.search\"", nil).
			WithContext("name", c.Name)
	}
	if c.NominalCost.IsNegative() {
		return errors.New(errors.CodeInvalidInput, "nominal cost must not be negative", nil).
			WithContext("name", c.Name)
	}
	return nil
}

// ToolDefinition converts the contract into the function definition the
// model sees.
func (c Contract) ToolDefinition() llm.Tool {
	params := c.Schema
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  params,
		},
	}
}

// Capability is an invocable operation. Implementations classify failures
// with Transient or Permanent so the gateway knows whether to retry.
type Capability interface {
	Contract() Contract
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Transient wraps err as a retryable capability failure.
func Transient(err error) error {
	return errors.New(errors.CodeCapabilityTransient, "capability failed transiently", err)
}

// Permanent wraps err as a non-retryable capability failure.
func Permanent(err error) error {
	return errors.New(errors.CodeCapabilityPermanent, "capability failed permanently", err)
}

// Func adapts a plain function to Capability.
type Func struct {
	Spec Contract
	Fn   func(ctx context.Context, args map[string]any) (any, error)
}

func (f *Func) Contract() Contract { return f.Spec }

func (f *Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

var _ Capability = (*Func)(nil)
