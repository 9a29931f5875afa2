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

package runs

import (
	"slices"

	"github.com/agentview/agentview-go/sessions"
	"github.com/agentview/agentview-go/viewconfig"
)

// validateNonInputItems validates the items appended after a run's
// input, under the status the run is moving to.
//
// For in_progress every item must classify as a step, unless step
// validation is off, in which case unmatched items pass as opaque
// steps. Completing requires an output: either the last appended item,
// or, when no items are appended, the run's current last item. Failing
// and cancelling accept a trailing step or output. Classification of
// each item sees everything recorded before it, including the items
// validated earlier in the same batch.
func validateNonInputItems(rc *viewconfig.RunConfig, previous []map[string]any, items []map[string]any, status sessions.RunStatus) error {
	seen := slices.Clone(previous)

	validateSteps := func(stepItems []map[string]any) error {
		for _, item := range stepItems {
			match := viewconfig.ClassifyKind(rc, seen, item, nil, viewconfig.MatchStep)
			if match == nil && rc.ValidateSteps {
				return NewValidationError("couldn't find a matching step item")
			}
			seen = append(seen, item)
		}
		return nil
	}

	switch status {
	case sessions.RunStatusCompleted:
		if len(items) == 0 {
			if len(previous) <= 1 {
				return NewValidationError("run set as 'completed' must have at least 2 items, input and output")
			}
			last := previous[len(previous)-1]
			if viewconfig.ClassifyKind(rc, previous[:len(previous)-1], last, nil, viewconfig.MatchOutput) == nil {
				return NewValidationError("last item must be an output")
			}
			return nil
		}

		output := items[len(items)-1]
		if err := validateSteps(items[:len(items)-1]); err != nil {
			return err
		}
		if viewconfig.ClassifyKind(rc, seen, output, nil, viewconfig.MatchOutput) == nil {
			return NewValidationError("couldn't find a matching output item")
		}
		return nil

	case sessions.RunStatusFailed, sessions.RunStatusCancelled:
		if len(items) == 0 {
			return nil
		}

		last := items[len(items)-1]
		if err := validateSteps(items[:len(items)-1]); err != nil {
			return err
		}

		// The trailing item may be a step or an output; step wins when
		// both match.
		if viewconfig.ClassifyKind(rc, seen, last, nil, viewconfig.MatchStep) != nil {
			return nil
		}
		if viewconfig.ClassifyKind(rc, seen, last, nil, viewconfig.MatchOutput) != nil {
			return nil
		}
		if !rc.ValidateSteps {
			return nil
		}
		return NewValidationError("last item must be either a step or an output")

	default:
		return validateSteps(items)
	}
}
