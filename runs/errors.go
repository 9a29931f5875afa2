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
	"errors"
	"fmt"

	"github.com/agentview/agentview-go/sessions"
)

// LockConflictError is returned when a run is created while the session
// already has a run in progress. It wraps sessions.ErrSessionLocked so
// callers can test for it with errors.Is. It is a client-level error
// and is never auto-retried.
type LockConflictError error

func NewLockConflictError(message string) LockConflictError {
	return LockConflictError(fmt.Errorf("%s: %w", message, sessions.ErrSessionLocked))
}

// VersionIncompatibleError is returned when a run's version cannot
// continue the session's version history.
type VersionIncompatibleError error

func NewVersionIncompatibleError(message string) VersionIncompatibleError {
	return VersionIncompatibleError(errors.New(message))
}

func VersionIncompatibleErrorf(format string, a ...any) VersionIncompatibleError {
	return VersionIncompatibleError(fmt.Errorf(format, a...))
}

// TerminalRunError is returned for a mutation of a run that already
// reached a terminal status. It wraps sessions.ErrRunFinished so
// callers can test for it with errors.Is.
type TerminalRunError error

func NewTerminalRunError(message string) TerminalRunError {
	return TerminalRunError(fmt.Errorf("%s: %w", message, sessions.ErrRunFinished))
}

// ValidationError is returned when run items, metadata or status fields
// do not satisfy the run configuration.
type ValidationError error

func NewValidationError(message string) ValidationError {
	return ValidationError(errors.New(message))
}

func ValidationErrorf(format string, a ...any) ValidationError {
	return ValidationError(fmt.Errorf(format, a...))
}
