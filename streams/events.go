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

// Package streams normalizes agent-backend event streams into the
// canonical patch sequence consumed by the run lifecycle. Two protocol
// adapters are provided: PassThrough, for backends that already speak
// canonical events, and Delta, for backends that emit fine-grained
// per-unit lifecycle chunks.
package streams

import (
	"encoding/json"
	"fmt"

	"github.com/agentview/agentview-go/sessions"
)

// Canonical event names.
const (
	// EventResponseData is the diagnostic event synthesized before any
	// content event, carrying the outbound request and inbound response
	// metadata.
	EventResponseData = "response_data"

	// EventVersion surfaces the backend's transport-level version header.
	EventVersion = "version"

	// EventRunPatch carries one canonical run patch.
	EventRunPatch = "run.patch"

	// EventEnd terminates the stream.
	EventEnd = "end"
)

// VersionHeader is the response header through which the backend declares
// its version.
const VersionHeader = "X-Agentview-Version"

// An Event is one canonical stream event: a name plus its raw JSON
// payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Patch decodes the payload of a run.patch event.
func (e *Event) Patch() (sessions.RunPatch, error) {
	var patch sessions.RunPatch
	if err := json.Unmarshal(e.Data, &patch); err != nil {
		return sessions.RunPatch{}, ParseErrorf("failed to decode run patch: %w", err)
	}
	return patch, nil
}

// Version decodes the payload of a version event.
func (e *Event) Version() (string, error) {
	var v string
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return "", ParseErrorf("failed to decode version event: %w", err)
	}
	return v, nil
}

// RequestData describes the outbound backend request.
type RequestData struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// ResponseData describes the inbound backend response metadata, plus the
// response body when the request failed.
type ResponseData struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// ResponseDataPayload is the payload of a response_data event.
type ResponseDataPayload struct {
	Request  RequestData  `json:"request"`
	Response ResponseData `json:"response"`
}

func newEvent(name string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return &Event{Name: name, Data: data}, nil
}

func newPatchEvent(patch sessions.RunPatch) (*Event, error) {
	return newEvent(EventRunPatch, patch)
}
