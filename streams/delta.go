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
	"errors"
	"io"
	"iter"
	"net/http"

	agentview "github.com/agentview/agentview-go"
	"github.com/agentview/agentview-go/sessions"
)

// deltaChunk is one fine-grained unit-lifecycle chunk from a delta
// backend. Chunks are data-only frames; the chunk type discriminates.
type deltaChunk struct {
	Type            string         `json:"type"`
	ID              string         `json:"id"`
	Delta           string         `json:"delta"`
	ToolCallID      string         `json:"toolCallId"`
	ToolName        string         `json:"toolName"`
	InputTextDelta  string         `json:"inputTextDelta"`
	Input           any            `json:"input"`
	Output          any            `json:"output"`
	ErrorText       string         `json:"errorText"`
	MessageMetadata map[string]any `json:"messageMetadata"`
}

type toolState struct {
	name      string
	inputText string
	input     any
}

// deltaState folds partial units until their closing chunk arrives.
// Buffers are keyed by the backend-assigned unit id, so interleaved
// units accumulate independently.
type deltaState struct {
	textBuffers      map[string]string
	reasoningBuffers map[string]string
	toolStates       map[string]*toolState
	metadata         map[string]any
}

func newDeltaState() *deltaState {
	return &deltaState{
		textBuffers:      make(map[string]string),
		reasoningBuffers: make(map[string]string),
		toolStates:       make(map[string]*toolState),
	}
}

// Delta adapts a backend that emits per-unit lifecycle chunks instead
// of whole items. Deltas are buffered in memory and a canonical
// run.patch event is emitted only when a unit completes: text and
// reasoning on their end chunk, tools when their output or error
// arrives. The finish chunk closes the run with a completed-status
// patch carrying the accumulated metadata. Units still open when the
// stream ends are discarded without error.
func Delta(ctx context.Context, client *http.Client, url string, body any) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		resp, responseData, err := postAgent(ctx, client, url, body)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				agentview.Logger().Error("failed to close agent response body", "error", err)
			}
		}()

		if !emitPreamble(yield, resp, responseData) {
			return
		}

		state := newDeltaState()
		reader := newFrameReader(resp.Body)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, NewCanceledError("agent stream canceled"))
				return
			}

			fr, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, streamErr(ctx, err))
				return
			}

			var chunk deltaChunk
			if err := json.Unmarshal(fr.Data, &chunk); err != nil {
				yield(nil, ParseErrorf("failed to decode delta chunk: %w", err))
				return
			}

			patch, err := state.fold(chunk)
			if err != nil {
				yield(nil, err)
				return
			}
			if patch == nil {
				continue
			}

			ev, err := newPatchEvent(*patch)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// fold consumes one chunk and returns the patch it completes, if any.
func (s *deltaState) fold(chunk deltaChunk) (*sessions.RunPatch, error) {
	switch chunk.Type {
	case "start":
		if chunk.MessageMetadata != nil {
			s.metadata = chunk.MessageMetadata
		}

	case "text-start":
		s.textBuffers[chunk.ID] = ""

	case "text-delta":
		s.textBuffers[chunk.ID] += chunk.Delta

	case "text-end":
		text := s.textBuffers[chunk.ID]
		delete(s.textBuffers, chunk.ID)
		return &sessions.RunPatch{
			Items: []map[string]any{{"type": "text", "text": text}},
		}, nil

	case "reasoning-start":
		s.reasoningBuffers[chunk.ID] = ""

	case "reasoning-delta":
		s.reasoningBuffers[chunk.ID] += chunk.Delta

	case "reasoning-end":
		text := s.reasoningBuffers[chunk.ID]
		delete(s.reasoningBuffers, chunk.ID)
		return &sessions.RunPatch{
			Items: []map[string]any{{"type": "reasoning", "text": text}},
		}, nil

	case "tool-input-start":
		s.toolStates[chunk.ToolCallID] = &toolState{name: chunk.ToolName}

	case "tool-input-delta":
		if state, ok := s.toolStates[chunk.ToolCallID]; ok {
			state.inputText += chunk.InputTextDelta
		}

	case "tool-input-available":
		if state, ok := s.toolStates[chunk.ToolCallID]; ok {
			state.input = chunk.Input
		}

	case "tool-output-available":
		state, ok := s.toolStates[chunk.ToolCallID]
		if !ok {
			break
		}
		delete(s.toolStates, chunk.ToolCallID)
		return &sessions.RunPatch{
			Items: []map[string]any{{
				"type":       "tool-call",
				"toolCallId": chunk.ToolCallID,
				"toolName":   state.name,
				"state":      "output-available",
				"input":      state.input,
				"output":     chunk.Output,
			}},
		}, nil

	case "tool-output-error":
		state, ok := s.toolStates[chunk.ToolCallID]
		if !ok {
			break
		}
		delete(s.toolStates, chunk.ToolCallID)
		return &sessions.RunPatch{
			Items: []map[string]any{{
				"type":       "tool-call",
				"toolCallId": chunk.ToolCallID,
				"toolName":   state.name,
				"state":      "output-error",
				"input":      state.input,
				"errorText":  chunk.ErrorText,
			}},
		}, nil

	case "finish":
		if chunk.MessageMetadata != nil {
			s.metadata = chunk.MessageMetadata
		}
		return &sessions.RunPatch{
			Status:   sessions.RunStatusCompleted,
			Metadata: s.metadata,
		}, nil

	case "error":
		message := chunk.ErrorText
		if message == "" {
			message = "Unknown error from delta stream"
		}
		return nil, &ProtocolError{Message: message}

	default:
		// Other chunk types (start-step, finish-step, source-url, file)
		// carry no item content.
	}
	return nil, nil
}
