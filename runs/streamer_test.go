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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentview/agentview-go/sessions"
	"github.com/agentview/agentview-go/streams"
)

func newTestStreamer(t *testing.T, handler http.HandlerFunc) (*Streamer, string) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	m, sessionID := newTestManager(t)
	return &Streamer{
		Manager: m,
		Stream:  streams.PassThrough,
		URL:     server.URL,
	}, sessionID
}

func TestStreamerStreamRun(t *testing.T) {
	streamer, sessionID := newTestStreamer(t, func(w http.ResponseWriter, r *http.Request) {
		// The backend receives the session, including the fresh run.
		var body struct {
			Session sessions.Session `json:"session"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Session.Runs, 1)
		assert.Equal(t, sessions.RunStatusInProgress, body.Session.Runs[0].Status)

		w.Header().Set(streams.VersionHeader, "1.0.0")
		_, _ = w.Write([]byte("" +
			"event: run.patch\ndata: {\"items\":[{\"type\":\"note\",\"text\":\"thinking\"}]}\n\n" +
			"event: run.patch\ndata: {\"items\":[{\"type\":\"assistant\",\"text\":\"done\"}],\"status\":\"completed\",\"metadata\":{\"model\":\"m1\"}}\n\n" +
			"event: end\ndata: {}\n\n"))
	})

	run, err := streamer.StreamRun(t.Context(), StreamRunParams{
		SessionID: sessionID,
		Items:     []map[string]any{userItem()},
		Version:   "1.0.0",
	})
	require.NoError(t, err)

	assert.Equal(t, sessions.RunStatusCompleted, run.Status)
	require.Len(t, run.Items, 3)
	assert.Equal(t, "user", run.Items[0].Content["type"])
	assert.Equal(t, "note", run.Items[1].Content["type"])
	assert.Equal(t, "assistant", run.Items[2].Content["type"])
	assert.Equal(t, "m1", run.Metadata["model"])
	assert.NotNil(t, run.FinishedAt)
	assert.Nil(t, run.ExpiresAt)
}

func TestStreamerStreamRun_BackendError(t *testing.T) {
	streamer, sessionID := newTestStreamer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
	})

	run, err := streamer.StreamRun(t.Context(), StreamRunParams{
		SessionID: sessionID,
		Items:     []map[string]any{userItem()},
		Version:   "1.0.0",
	})
	require.Error(t, err)

	var protocolErr *streams.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, http.StatusBadGateway, protocolErr.Status)

	require.NotNil(t, run)
	assert.Equal(t, sessions.RunStatusFailed, run.Status)
	assert.Equal(t, "upstream unavailable", run.FailReason["message"])
	assert.Equal(t, http.StatusBadGateway, run.FailReason["status"])
}

func TestStreamerStreamRun_ErrorEvent(t *testing.T) {
	streamer, sessionID := newTestStreamer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("" +
			"event: run.patch\ndata: {\"items\":[{\"type\":\"note\"}]}\n\n" +
			"event: error\ndata: {\"message\":\"agent crashed\"}\n\n"))
	})

	run, err := streamer.StreamRun(t.Context(), StreamRunParams{
		SessionID: sessionID,
		Items:     []map[string]any{userItem()},
		Version:   "1.0.0",
	})
	require.Error(t, err)

	assert.Equal(t, sessions.RunStatusFailed, run.Status)
	assert.Equal(t, "agent crashed", run.FailReason["message"])
	// The patch delivered before the error was applied.
	assert.Len(t, run.Items, 2)
}

func TestStreamerStreamRun_Cancellation(t *testing.T) {
	firstFrame := make(chan struct{})
	streamer, sessionID := newTestStreamer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: run.patch\ndata: {\"items\":[{\"type\":\"note\"}]}\n\n"))
		w.(http.Flusher).Flush()
		close(firstFrame)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	go func() {
		<-firstFrame
		cancel()
	}()

	run, err := streamer.StreamRun(ctx, StreamRunParams{
		SessionID: sessionID,
		Items:     []map[string]any{userItem()},
		Version:   "1.0.0",
	})

	// Cancellation is a normal terminal path, not an error.
	require.NoError(t, err)
	assert.Equal(t, sessions.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestStreamerStreamRun_CreateFailure(t *testing.T) {
	streamer, sessionID := newTestStreamer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called when run creation fails")
	})

	_, err := streamer.StreamRun(t.Context(), StreamRunParams{
		SessionID: sessionID,
		Items:     []map[string]any{{"type": "bogus"}},
		Version:   "1.0.0",
	})
	assert.ErrorContains(t, err, "incorrect input item")
}
