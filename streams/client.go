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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
)

// A StreamFunc is a protocol adapter: it calls the agent backend and
// yields the canonical event sequence in strict arrival order. The
// iterator is single-consumer and pull-based: one network read happens
// per pull, so the producer can never get ahead of the consumer.
//
// Cancelling ctx stops emission promptly; the response body is released
// on every exit path. Cancellation surfaces as a CanceledError, which
// callers treat as a normal terminal path, not a failure.
type StreamFunc func(ctx context.Context, client *http.Client, url string, body any) iter.Seq2[*Event, error]

const maxErrorBodySize = 1 << 20

func postAgent(ctx context.Context, client *http.Client, url string, body any) (*http.Response, *ResponseDataPayload, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, ParseErrorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, &ProtocolError{Message: "invalid agent request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, NewCanceledError("agent request canceled")
		}
		return nil, nil, &ProtocolError{Message: "agent connection error: " + err.Error()}
	}

	responseData := &ResponseDataPayload{
		Request: RequestData{
			URL:     url,
			Method:  http.MethodPost,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    body,
		},
		Response: ResponseData{
			Status:  resp.StatusCode,
			Headers: flattenHeader(resp.Header),
		},
	}
	return resp, responseData, nil
}

// emitPreamble yields the diagnostic response_data event and, when the
// version header is present, the version event. For a non-2xx response
// it re-yields response_data with the captured body and ends the stream
// with a ProtocolError. It reports whether the caller should continue
// consuming the body.
func emitPreamble(yield func(*Event, error) bool, resp *http.Response, responseData *ResponseDataPayload) bool {
	ev, err := newEvent(EventResponseData, responseData)
	if err != nil {
		yield(nil, err)
		return false
	}
	if !yield(ev, nil) {
		return false
	}

	if v := resp.Header.Get(VersionHeader); v != "" {
		ev, err := newEvent(EventVersion, v)
		if err != nil {
			yield(nil, err)
			return false
		}
		if !yield(ev, nil) {
			return false
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		body := tryParseJSON(raw)
		responseData.Response.Body = body

		if ev, err := newEvent(EventResponseData, responseData); err == nil {
			if !yield(ev, nil) {
				return false
			}
		}
		yield(nil, newProtocolError(resp.StatusCode, body))
		return false
	}

	return true
}

// streamErr maps read failures caused by ctx cancellation to
// CanceledError.
func streamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCanceledError("agent stream canceled")
	}
	return err
}

func flattenHeader(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for name := range h {
		headers[name] = h.Get(name)
	}
	return headers
}

func tryParseJSON(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
