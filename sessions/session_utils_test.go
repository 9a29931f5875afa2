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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utilTestSession() *Session {
	return &Session{
		ID: "s1",
		Runs: []Run{
			{
				ID: "r1", Status: RunStatusCompleted, Version: "1.0.0",
				Items: []Item{{ID: "a"}, {ID: "b"}},
			},
			{
				ID: "r2", Status: RunStatusFailed, Version: "1.1.0",
				Items: []Item{{ID: "c"}},
			},
			{
				ID: "r3", Status: RunStatusInProgress, Version: "1.1.0",
				Items: []Item{{ID: "d"}},
			},
		},
	}
}

func TestLastRun(t *testing.T) {
	s := utilTestSession()
	run := LastRun(s)
	require.NotNil(t, run)
	assert.Equal(t, "r3", run.ID)

	assert.Nil(t, LastRun(&Session{}))
}

func TestActiveRuns(t *testing.T) {
	s := utilTestSession()

	// The failed r2 is hidden because it is not the last run.
	active := ActiveRuns(s)
	require.Len(t, active, 2)
	assert.Equal(t, "r1", active[0].ID)
	assert.Equal(t, "r3", active[1].ID)

	// A trailing failed run stays visible.
	s.Runs = s.Runs[:2]
	active = ActiveRuns(s)
	require.Len(t, active, 2)
	assert.Equal(t, "r2", active[1].ID)
}

func TestAllItems(t *testing.T) {
	s := utilTestSession()

	ids := func(items []Item) []string {
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = item.ID
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(AllItems(s, false)))
	assert.Equal(t, []string{"a", "b", "d"}, ids(AllItems(s, true)))
}

func TestVersions(t *testing.T) {
	s := utilTestSession()
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, Versions(s))
	assert.Empty(t, Versions(&Session{}))
}
