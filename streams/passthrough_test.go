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

package streams

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentview/agentview-go/sessions"
)

// collect drains a stream into its events and final error.
func collect(t *testing.T, ctx context.Context, fn StreamFunc, url string) ([]*Event, error) {
	t.Helper()
	var events []*Event
	for ev, err := range fn(ctx, nil, url, map[string]any{"input": "hi"}) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestPassThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body["input"])

		w.Header().Set(VersionHeader, "1.2.0")
		_, _ = w.Write([]byte("" +
			": comment line\n\n" +
			"event: run.patch\ndata: {\"items\":[{\"type\":\"text\",\"text\":\"hello\"}]}\n\n" +
			"event: run.patch\ndata: {\"status\":\"completed\"}\n\n" +
			"event: end\ndata: {}\n\n"))
	}))
	t.Cleanup(server.Close)

	events, err := collect(t, t.Context(), PassThrough, server.URL)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, EventResponseData, events[0].Name)
	var responseData ResponseDataPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &responseData))
	assert.Equal(t, http.MethodPost, responseData.Request.Method)
	assert.Equal(t, http.StatusOK, responseData.Response.Status)

	assert.Equal(t, EventVersion, events[1].Name)
	v, err := events[1].Version()
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)

	assert.Equal(t, EventRunPatch, events[2].Name)
	patch, err := events[2].Patch()
	require.NoError(t, err)
	require.Len(t, patch.Items, 1)
	assert.Equal(t, "hello", patch.Items[0]["text"])

	patch, err = events[3].Patch()
	require.NoError(t, err)
	assert.Equal(t, sessions.RunStatusCompleted, patch.Status)
}

func TestPassThrough_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"agent exploded"}`))
	}))
	t.Cleanup(server.Close)

	events, err := collect(t, t.Context(), PassThrough, server.URL)
	require.Error(t, err)

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, http.StatusInternalServerError, protocolErr.Status)
	assert.Equal(t, "agent exploded", protocolErr.Message)
	assert.ErrorContains(t, err, "HTTP error response (500)")

	// response_data is re-emitted with the captured body before the error.
	require.Len(t, events, 2)
	assert.Equal(t, EventResponseData, events[0].Name)
	assert.Equal(t, EventResponseData, events[1].Name)
	var responseData ResponseDataPayload
	require.NoError(t, json.Unmarshal(events[1].Data, &responseData))
	assert.Equal(t, map[string]any{"message": "agent exploded"}, responseData.Response.Body)
}

func TestPassThrough_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("" +
			"event: run.patch\ndata: {\"items\":[{\"type\":\"text\"}]}\n\n" +
			"event: error\ndata: {\"message\":\"mid-stream failure\"}\n\n"))
	}))
	t.Cleanup(server.Close)

	events, err := collect(t, t.Context(), PassThrough, server.URL)
	require.Error(t, err)

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, "mid-stream failure", protocolErr.Message)
	assert.Zero(t, protocolErr.Status)

	// The patch before the error was still delivered.
	assert.Len(t, events, 2)
}

func TestPassThrough_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: run.patch\ndata: {not json}\n\n"))
	}))
	t.Cleanup(server.Close)

	_, err := collect(t, t.Context(), PassThrough, server.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid JSON payload")
}

func TestPassThrough_SkipsNamelessFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("" +
			"data: {\"noise\":true}\n\n" +
			"event: run.patch\ndata: {\"status\":\"completed\"}\n\n" +
			"event: end\ndata: {}\n\n"))
	}))
	t.Cleanup(server.Close)

	events, err := collect(t, t.Context(), PassThrough, server.URL)
	require.NoError(t, err)

	// The nameless frame is dropped; the named frames still arrive.
	require.Len(t, events, 2)
	assert.Equal(t, EventResponseData, events[0].Name)
	assert.Equal(t, EventRunPatch, events[1].Name)
}

func TestPassThrough_Cancellation(t *testing.T) {
	firstFrame := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: run.patch\ndata: {\"items\":[{\"type\":\"text\"}]}\n\n"))
		w.(http.Flusher).Flush()
		close(firstFrame)
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)

	var events []*Event
	var streamErr error
	for ev, err := range PassThrough(ctx, nil, server.URL, map[string]any{}) {
		if err != nil {
			streamErr = err
			break
		}
		events = append(events, ev)
		if ev.Name == EventRunPatch {
			<-firstFrame
			cancel()
		}
	}

	require.Error(t, streamErr)
	assert.ErrorIs(t, streamErr, context.Canceled)
	assert.Len(t, events, 2) // response_data + the first patch
}
