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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPatchApplyTo(t *testing.T) {
	run := &Run{
		ID:     "r1",
		Status: RunStatusInProgress,
		Items:  []Item{{ID: "i1", Content: map[string]any{"type": "user"}}},
	}

	patch := RunPatch{
		Items: []map[string]any{
			{"type": "text", "text": "a"},
			{"type": "text", "text": "b"},
		},
	}
	patch.ApplyTo(run)

	require.Len(t, run.Items, 3)
	assert.Equal(t, "a", run.Items[1].Content["text"])
	assert.Equal(t, "b", run.Items[2].Content["text"])
	assert.NotEmpty(t, run.Items[1].ID)
	assert.Equal(t, RunStatusInProgress, run.Status)

	// Duplicate payloads are appended, never deduplicated.
	patch.ApplyTo(run)
	assert.Len(t, run.Items, 5)
}

func TestRunPatchApplyTo_Overwrites(t *testing.T) {
	run := &Run{ID: "r1", Status: RunStatusInProgress}

	RunPatch{Metadata: map[string]any{"model": "a"}}.ApplyTo(run)
	assert.Equal(t, map[string]any{"model": "a"}, run.Metadata)

	// Last write wins.
	RunPatch{Metadata: map[string]any{"model": "b"}}.ApplyTo(run)
	assert.Equal(t, map[string]any{"model": "b"}, run.Metadata)

	RunPatch{
		Status:     RunStatusFailed,
		FailReason: map[string]any{"message": "boom"},
	}.ApplyTo(run)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "boom", run.FailReason["message"])

	// Fields absent from the patch are left untouched.
	RunPatch{}.ApplyTo(run)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, map[string]any{"model": "b"}, run.Metadata)
}

func TestRunPatchIsZero(t *testing.T) {
	assert.True(t, RunPatch{}.IsZero())
	assert.False(t, RunPatch{Status: RunStatusCompleted}.IsZero())
	assert.False(t, RunPatch{Items: []map[string]any{{}}}.IsZero())
}

func TestRunPatchJSON(t *testing.T) {
	var patch RunPatch
	err := json.Unmarshal([]byte(`{"items":[{"type":"text"}],"status":"completed","metadata":{"m":1}}`), &patch)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, patch.Status)
	require.Len(t, patch.Items, 1)
	assert.Equal(t, "text", patch.Items[0]["type"])
	assert.Equal(t, 1.0, patch.Metadata["m"])
}
