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

package viewconfig

import (
	"reflect"

	agentview "github.com/agentview/agentview-go"
	"github.com/agentview/agentview-go/sessions"
)

// MatchType is the recovered semantic role of an item.
type MatchType string

const (
	MatchInput  MatchType = "input"
	MatchOutput MatchType = "output"
	MatchStep   MatchType = "step"
)

// ToolRole distinguishes the two halves of a tool pair.
type ToolRole string

const (
	ToolCall   ToolRole = "call"
	ToolResult ToolRole = "result"
)

// A CallRef points back at the tool call an item was paired with.
type CallRef struct {
	ItemConfig *ItemConfig
	Content    map[string]any
}

// ToolInfo carries the tool-specific part of a match.
type ToolInfo struct {
	Type ToolRole

	// HasResult reports, for a call, whether a paired result follows it.
	// It is nil when correlation keys are missing on either side of the
	// pair, in which case pairing was skipped and the answer is unknown.
	HasResult *bool

	// Call is the paired tool call, set for results only.
	Call *CallRef
}

// A Match is the derived, non-persisted classification of an item. Tool
// is set only when the item matched a tool-pair config.
type Match struct {
	ItemConfig *ItemConfig
	Content    map[string]any
	Type       MatchType
	Tool       *ToolInfo
}

// Classify recovers the semantic role of the candidate item against the
// run config, given the items recorded before and after it.
//
// The candidate is tested against the input schema, the output schema and
// every step schema independently. Tool pairs are tested on both sides;
// calls scan itemsAfter forward for a correlated result, results scan
// itemsBefore backward (nearest first) for the correlated call, stopping
// at the first satisfying neighbor in either direction.
//
// Zero matches return nil: the item is simply unclassified, which is
// legal. More than one match is an ambiguity: it is logged as a warning
// and nil is returned, never an arbitrary pick. Classification is a pure
// function of its arguments and is safe for concurrent use.
func Classify(runConfig *RunConfig, itemsBefore []map[string]any, candidate map[string]any, itemsAfter []map[string]any) *Match {
	return ClassifyKind(runConfig, itemsBefore, candidate, itemsAfter, "")
}

// ClassifyKind is Classify restricted to a single match type. An empty
// kind tests all three.
func ClassifyKind(runConfig *RunConfig, itemsBefore []map[string]any, candidate map[string]any, itemsAfter []map[string]any, kind MatchType) *Match {
	var matches []*Match

	if kind == "" || kind == MatchInput {
		matches = appendTyped(matches, MatchInput,
			matchItemConfigs([]*ItemConfig{runConfig.Input}, nil, candidate, nil))
	}
	if kind == "" || kind == MatchOutput {
		matches = appendTyped(matches, MatchOutput,
			matchItemConfigs([]*ItemConfig{runConfig.Output}, nil, candidate, nil))
	}
	if kind == "" || kind == MatchStep {
		matches = appendTyped(matches, MatchStep,
			matchItemConfigs(runConfig.Steps, itemsBefore, candidate, itemsAfter))
	}

	switch len(matches) {
	case 0:
		return nil
	case 1:
		return matches[0]
	default:
		agentview.Logger().Warn("more than one item config matched the item content",
			"matches", len(matches))
		return nil
	}
}

// ClassifyByID locates the item with the given id in a flattened session
// item list, splits its neighbors into before/after, and classifies it.
// Returns nil when the id is not present.
func ClassifyByID(runConfig *RunConfig, items []sessions.Item, itemID string) *Match {
	var itemsBefore, itemsAfter []map[string]any
	var candidate map[string]any
	found := false

	for _, item := range items {
		switch {
		case item.ID == itemID:
			candidate = item.Content
			found = true
		case !found:
			itemsBefore = append(itemsBefore, item.Content)
		default:
			itemsAfter = append(itemsAfter, item.Content)
		}
	}

	if !found {
		return nil
	}
	return Classify(runConfig, itemsBefore, candidate, itemsAfter)
}

func appendTyped(matches []*Match, t MatchType, found []*Match) []*Match {
	for _, m := range found {
		m.Type = t
		matches = append(matches, m)
	}
	return matches
}

func matchItemConfigs(itemConfigs []*ItemConfig, itemsBefore []map[string]any, item map[string]any, itemsAfter []map[string]any) []*Match {
	var matches []*Match

	for _, itemConfig := range itemConfigs {
		if itemConfig == nil || itemConfig.Schema == nil {
			continue
		}

		// Non-tool config
		if !itemConfig.IsToolPair() {
			if itemConfig.Schema.Matches(item) {
				matches = append(matches, &Match{ItemConfig: itemConfig, Content: item})
			}
			continue
		}

		// Tool config: the content may satisfy the call schema, the
		// result schema, or coincidentally both. Both sides are always
		// evaluated; a double hit surfaces as an ambiguity at the
		// aggregate level.
		callOK := itemConfig.Schema.Matches(item)
		resultOK := itemConfig.CallResult.Schema.Matches(item)

		callKey, hasCallKey := itemConfig.Schema.CorrelationKey()
		resultKey, hasResultKey := itemConfig.CallResult.Schema.CorrelationKey()
		hasKeys := hasCallKey && hasResultKey

		if callOK {
			tool := &ToolInfo{Type: ToolCall}
			if hasKeys {
				hasResult := false
				for _, after := range itemsAfter {
					if itemConfig.CallResult.Schema.Matches(after) && correlationEqual(item[callKey], after[resultKey]) {
						hasResult = true
						break
					}
				}
				tool.HasResult = &hasResult
			}
			matches = append(matches, &Match{ItemConfig: itemConfig, Content: item, Tool: tool})
		}

		if resultOK && hasKeys {
			// Nearest preceding call wins; the scan stops at the first
			// satisfying neighbor even if the correlation id recurs
			// earlier in the run.
			for i := len(itemsBefore) - 1; i >= 0; i-- {
				prev := itemsBefore[i]
				if itemConfig.Schema.Matches(prev) && correlationEqual(prev[callKey], item[resultKey]) {
					matches = append(matches, &Match{
						ItemConfig: itemConfig.CallResult,
						Content:    item,
						Tool: &ToolInfo{
							Type: ToolResult,
							Call: &CallRef{ItemConfig: itemConfig, Content: prev},
						},
					})
					break
				}
			}
		}
	}

	return matches
}

func correlationEqual(a, b any) bool {
	return a != nil && b != nil && reflect.DeepEqual(a, b)
}
