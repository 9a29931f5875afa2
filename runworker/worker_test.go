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

package runworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentview/agentview-go/sessions"
)

func newStoreWithRun(t *testing.T, expiresAt *time.Time) (*sessions.MemoryStore, string) {
	t.Helper()
	ctx := t.Context()

	store := sessions.NewMemoryStore()
	session, err := store.CreateSession(ctx, sessions.CreateSessionParams{Agent: "support"})
	require.NoError(t, err)

	run := &sessions.Run{
		ID:        "r1",
		SessionID: session.ID,
		Status:    sessions.RunStatusInProgress,
		Items:     []sessions.Item{{ID: "i1", Content: map[string]any{"type": "user"}}},
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	return store, run.ID
}

func TestWorkerSweep(t *testing.T) {
	ctx := t.Context()

	t.Run("fails expired runs", func(t *testing.T) {
		past := time.Now().Add(-time.Minute).UTC()
		store, runID := newStoreWithRun(t, &past)

		worker := NewWorker(WorkerParams{Store: store})
		expired, err := worker.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{runID}, expired)

		run, err := store.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, sessions.RunStatusFailed, run.Status)
		assert.Equal(t, sessions.TimeoutFailReason, run.FailReason)
		assert.NotNil(t, run.FinishedAt)
		assert.Nil(t, run.ExpiresAt)
	})

	t.Run("leaves live runs alone", func(t *testing.T) {
		future := time.Now().Add(time.Hour).UTC()
		store, runID := newStoreWithRun(t, &future)

		worker := NewWorker(WorkerParams{Store: store})
		expired, err := worker.Sweep(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)

		run, err := store.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, sessions.RunStatusInProgress, run.Status)
	})
}

func TestWorkerRun(t *testing.T) {
	past := time.Now().Add(-time.Minute).UTC()
	store, runID := newStoreWithRun(t, &past)

	worker := NewWorker(WorkerParams{Store: store, Interval: time.Hour})

	// The initial sweep runs before the first tick; cancellation stops
	// the loop.
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		run, err := store.GetRun(ctx, runID)
		return err == nil && run.Status == sessions.RunStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
