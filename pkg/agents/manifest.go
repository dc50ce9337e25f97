// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/praxislabs/praxis/pkg/core"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadManifest parses a single agent definition file.
func LoadManifest(path string) (*core.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var agent core.Agent
	if err := yaml.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("parse agent manifest %s: %w", path, err)
	}
	if agent.ID == "" {
		agent.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := validateManifest(&agent); err != nil {
		return nil, fmt.Errorf("agent manifest %s: %w", path, err)
	}
	return &agent, nil
}

// LoadManifestDir scans a directory for *.yaml and *.yml agent definitions.
func LoadManifestDir(root string) ([]*core.Agent, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []*core.Agent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		agent, err := LoadManifest(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, nil
}

// Validate checks an agent definition before it is stored. It fills the
// display name from the ID when absent.
func Validate(agent *core.Agent) error {
	return validateManifest(agent)
}

func validateManifest(agent *core.Agent) error {
	if !idPattern.MatchString(agent.ID) {
		return fmt.Errorf("id must match %s", idPattern.String())
	}
	if agent.Name == "" {
		agent.Name = agent.ID
	}
	if agent.Model == "" {
		return fmt.Errorf("model is required")
	}
	for name, state := range agent.Capabilities {
		switch state {
		case core.AuthzDisabled, core.AuthzPublic, core.AuthzPrivate:
		default:
			return fmt.Errorf("capability %q has unknown authorization state %q", name, state)
		}
	}
	return nil
}
