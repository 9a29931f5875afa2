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

import "time"

// RunStatus is the lifecycle status of a Run. A run is created in progress
// and transitions to exactly one terminal status.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Valid reports whether s is one of the known run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusInProgress, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final status. Terminal statuses never
// transition further.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// An Item is an opaque content payload positioned within a Run. Its
// semantic role (input, output, step, tool call, tool result) is never
// stored: it is recomputed on demand by the classification engine.
type Item struct {
	ID      string         `json:"id"`
	Content map[string]any `json:"content"`
}

// A Run is one agent invocation cycle: a lifecycle status plus an ordered
// list of items. The first item is positionally the run's input.
type Run struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId"`
	Status     RunStatus      `json:"status"`
	Version    string         `json:"version,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	FailReason map[string]any `json:"failReason,omitempty"`
	Items      []Item         `json:"items"`
	CreatedAt  time.Time      `json:"createdAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`

	// ExpiresAt is the idle deadline for in-progress runs. It is extended
	// on every mutation and heartbeat, and cleared on a terminal status.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool { return r.Status.Terminal() }

// ItemContents returns the item payloads in order, without their ids.
// This is the shape the classification engine operates on.
func (r *Run) ItemContents() []map[string]any {
	contents := make([]map[string]any, len(r.Items))
	for i, item := range r.Items {
		contents[i] = item.Content
	}
	return contents
}

// A Session is a durable conversation scope owning an ordered list of
// runs. At most one of its runs is in progress at any time.
type Session struct {
	ID        string         `json:"id"`
	Agent     string         `json:"agent"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Runs      []Run          `json:"runs"`
	CreatedAt time.Time      `json:"createdAt"`
}
