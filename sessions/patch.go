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

package sessions

import "github.com/google/uuid"

// A RunPatch is the canonical incremental update unit produced by the
// stream normalizers. Item payloads are cumulative: they are appended to
// the run in order. Status, metadata and fail reason are last-write-wins
// overwrites. A patch has no identity of its own; only its effect on the
// run matters.
type RunPatch struct {
	Items      []map[string]any `json:"items,omitempty"`
	Status     RunStatus        `json:"status,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	FailReason map[string]any   `json:"failReason,omitempty"`
}

// IsZero reports whether the patch carries no effect.
func (p RunPatch) IsZero() bool {
	return len(p.Items) == 0 && p.Status == "" && p.Metadata == nil && p.FailReason == nil
}

// ApplyTo mutates run with the patch: items are appended in order (never
// reordered or deduplicated; duplication avoidance is the upstream
// adapter's responsibility), status/metadata/failReason overwrite when
// present. Safe to call repeatedly as patches arrive.
func (p RunPatch) ApplyTo(run *Run) {
	for _, content := range p.Items {
		run.Items = append(run.Items, Item{ID: uuid.NewString(), Content: content})
	}
	if p.Status != "" {
		run.Status = p.Status
	}
	if p.Metadata != nil {
		run.Metadata = p.Metadata
	}
	if p.FailReason != nil {
		run.FailReason = p.FailReason
	}
}
