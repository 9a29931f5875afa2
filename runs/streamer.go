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
	"errors"
	"net/http"

	agentview "github.com/agentview/agentview-go"
	"github.com/agentview/agentview-go/sessions"
	"github.com/agentview/agentview-go/streams"
)

// A Streamer drives one run end-to-end: it creates the run, calls the
// agent backend through a stream adapter, and applies each canonical
// patch to the store in arrival order.
//
// Stream errors transition the run to failed with the captured fail
// reason. Context cancellation transitions it to cancelled and is not
// surfaced as an error. Patches are applied strictly sequentially; the
// next network read happens only after the previous patch is persisted.
type Streamer struct {
	Manager *Manager

	// Stream is the protocol adapter, e.g. streams.PassThrough or
	// streams.Delta.
	Stream streams.StreamFunc

	// Client defaults to http.DefaultClient.
	Client *http.Client

	// URL of the agent backend endpoint.
	URL string
}

// StreamRunParams configures a streamed run. The run is created
// in_progress with the given items, version and metadata before the
// backend is called.
type StreamRunParams struct {
	SessionID string
	Items     []map[string]any
	Version   string
	Metadata  map[string]any
}

// StreamRun creates the run, streams the backend response and applies
// every patch. It returns the run in its final state. Creation errors
// are returned with no run; stream errors are returned together with
// the failed run.
func (s *Streamer) StreamRun(ctx context.Context, params StreamRunParams) (*sessions.Run, error) {
	run, err := s.Manager.CreateRun(ctx, CreateRunParams{
		SessionID: params.SessionID,
		Items:     params.Items,
		Version:   params.Version,
		Metadata:  params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.Manager.Store.GetSession(ctx, params.SessionID)
	if err != nil {
		return run, err
	}
	body := map[string]any{"session": session}

	for ev, err := range s.Stream(ctx, s.Client, s.URL, body) {
		if err != nil {
			return s.finishStream(ctx, run, err)
		}

		switch ev.Name {
		case streams.EventResponseData:
			agentview.Logger().Debug("agent backend responded", "runId", run.ID)

		case streams.EventVersion:
			v, err := ev.Version()
			if err != nil {
				return s.finishStream(ctx, run, err)
			}
			if v != run.Version {
				agentview.Logger().Warn("agent backend declared a different version than the run",
					"runId", run.ID, "runVersion", run.Version, "backendVersion", v)
			}

		case streams.EventRunPatch:
			patch, err := ev.Patch()
			if err != nil {
				return s.finishStream(ctx, run, err)
			}
			updated, err := s.Manager.UpdateRun(ctx, run.ID, RunUpdate{
				Items:      patch.Items,
				Status:     patch.Status,
				Metadata:   patch.Metadata,
				FailReason: patch.FailReason,
			})
			if err != nil {
				return s.finishStream(ctx, run, err)
			}
			run = updated

		default:
			agentview.Logger().Warn("unknown canonical stream event", "event", ev.Name)
		}
	}

	return s.Manager.Store.GetRun(ctx, run.ID)
}

// finishStream resolves a mid-stream error into the run's terminal
// state: cancellation becomes the cancelled transition and is swallowed,
// anything else becomes the failed transition and is propagated.
func (s *Streamer) finishStream(ctx context.Context, run *sessions.Run, streamErr error) (*sessions.Run, error) {
	// The stream context is typically already canceled or otherwise
	// unusable for store writes.
	ctx = context.WithoutCancel(ctx)

	if errors.Is(streamErr, context.Canceled) {
		cancelled, err := s.Manager.CancelRun(ctx, run.ID)
		if err != nil {
			agentview.Logger().Error("failed to cancel run after stream cancellation",
				"runId", run.ID, "error", err)
			return run, nil
		}
		return cancelled, nil
	}

	failReason := map[string]any{"message": streamErr.Error()}
	var protocolErr *streams.ProtocolError
	if errors.As(streamErr, &protocolErr) {
		failReason = protocolErr.FailReason()
	}

	failed, err := s.Manager.UpdateRun(ctx, run.ID, RunUpdate{
		Status:     sessions.RunStatusFailed,
		FailReason: failReason,
	})
	if err != nil {
		agentview.Logger().Error("failed to fail run after stream error",
			"runId", run.ID, "error", err)
		return run, streamErr
	}
	return failed, streamErr
}
