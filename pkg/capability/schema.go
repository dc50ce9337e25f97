// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/praxislabs/praxis/pkg/errors"
)

// ValidateArgs checks args against the contract's JSON Schema. A nil schema
// accepts anything. Validation failures are permanent; retrying the same
// arguments cannot succeed.
func ValidateArgs(contract Contract, args map[string]any) error {
	if contract.Schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(contract.Schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "argument schema is invalid", err).
			WithContext("capability", contract.Name)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return errors.New(errors.CodeInvalidInput, "arguments do not match capability schema", nil).
		WithContext("capability", contract.Name).
		WithContext("violations", strings.Join(details, "; "))
}
