// Copyright 2026 The AgentView Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package viewconfig holds the declarative per-agent run configurations
// and the item classification engine that re-interprets recorded items
// against them.
package viewconfig

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError is returned for invalid or unsatisfiable configuration
// lookups.
type ConfigError error

func NewConfigError(message string) ConfigError {
	return ConfigError(errors.New(message))
}

func ConfigErrorf(format string, a ...any) ConfigError {
	return ConfigError(fmt.Errorf(format, a...))
}

// An ItemConfig describes one configured item shape. When CallResult is
// non-nil, the config is a tool pair: Schema describes the tool call and
// CallResult.Schema the paired tool result.
type ItemConfig struct {
	// Name identifies the config in logs and match results. Optional.
	Name string

	Schema *Schema

	// CallResult, when set, makes this a tool-pair config.
	CallResult *ItemConfig
}

// IsToolPair reports whether the config describes a call/result pair.
func (c *ItemConfig) IsToolPair() bool { return c.CallResult != nil }

// A RunConfig declares the item shapes of one run kind: one input schema,
// one output schema, and zero or more step schemas.
type RunConfig struct {
	Input  *ItemConfig
	Output *ItemConfig
	Steps  []*ItemConfig

	// ValidateSteps requires every non-output item to match a step
	// config. When false, unmatched items are accepted as opaque steps.
	ValidateSteps bool

	// Metadata declares per-key schemas for run metadata.
	Metadata map[string]*Schema

	// AllowUnknownMetadata permits metadata keys outside Metadata.
	// Defaults to true when nil.
	AllowUnknownMetadata *bool

	// IdleTimeout overrides the default run idle deadline.
	IdleTimeout time.Duration
}

// AllowsUnknownMetadata resolves the AllowUnknownMetadata default.
func (rc *RunConfig) AllowsUnknownMetadata() bool {
	return rc.AllowUnknownMetadata == nil || *rc.AllowUnknownMetadata
}

// An AgentConfig is the list of run configurations of one agent.
type AgentConfig struct {
	Name string
	Runs []*RunConfig
}

// FindMatchingRunConfigs returns every run config whose input schema
// accepts the given input item content.
func (a *AgentConfig) FindMatchingRunConfigs(input map[string]any) []*RunConfig {
	var matching []*RunConfig
	for _, rc := range a.Runs {
		if rc.Input.Schema.Matches(input) {
			matching = append(matching, rc)
		}
	}
	return matching
}

// RequireRunConfig returns the single run config whose input schema
// accepts the input item. Zero or multiple matches are an error.
func (a *AgentConfig) RequireRunConfig(input map[string]any) (*RunConfig, error) {
	matching := a.FindMatchingRunConfigs(input)
	switch len(matching) {
	case 0:
		return nil, ConfigErrorf("incorrect input item for agent %q", a.Name)
	case 1:
		return matching[0], nil
	default:
		return nil, NewConfigError("more than 1 run config found for input item")
	}
}

// A Config is the full per-agent configuration supplied by the
// configuration collaborator. It is static, validated data; this package
// never loads it from anywhere.
type Config struct {
	Agents []*AgentConfig
}

// RequireAgent returns the config of the named agent.
func (c *Config) RequireAgent(name string) (*AgentConfig, error) {
	for _, agent := range c.Agents {
		if agent.Name == name {
			return agent, nil
		}
	}
	return nil, ConfigErrorf("agent config not found for agent %q", name)
}
