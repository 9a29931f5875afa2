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
	"errors"
	"fmt"
)

// ParseError is returned for a malformed frame payload. It is fatal to
// the current stream and is never retried.
type ParseError error

func NewParseError(message string) ParseError {
	return ParseError(errors.New(message))
}

func ParseErrorf(format string, a ...any) ParseError {
	return ParseError(fmt.Errorf(format, a...))
}

// CanceledError is returned when the stream consumer is stopped through
// context cancellation. It is a normal terminal path, not a failure:
// callers must not report it as an error to users. It wraps
// context.Canceled, so errors.Is(err, context.Canceled) holds.
type CanceledError error

func NewCanceledError(message string) CanceledError {
	return CanceledError(fmt.Errorf("%s: %w", message, context.Canceled))
}

// ProtocolError captures a non-2xx backend response or an explicit error
// event, together with whatever response body was available.
type ProtocolError struct {
	Message string
	Status  int
	Body    any
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("HTTP error response (%d): %s", e.Status, e.Message)
	}
	return e.Message
}

// FailReason shapes the error as a run fail reason.
func (e *ProtocolError) FailReason() map[string]any {
	reason := map[string]any{"message": e.Message}
	if e.Status != 0 {
		reason["status"] = e.Status
	}
	if e.Body != nil {
		reason["details"] = e.Body
	}
	return reason
}

// newProtocolError extracts a human-readable message from the response
// body when it carries one.
func newProtocolError(status int, body any) *ProtocolError {
	message := "Unknown error"
	if obj, ok := body.(map[string]any); ok {
		if m, ok := obj["message"].(string); ok && m != "" {
			message = m
		}
	}
	return &ProtocolError{Message: message, Status: status, Body: body}
}
