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
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunNotFound     = errors.New("run not found")

	// ErrSessionLocked is returned by CreateRun when the session already
	// has a run in progress.
	ErrSessionLocked = errors.New("session already has a run in progress")

	// ErrRunFinished is returned by the write operations when the run
	// already reached a terminal status.
	ErrRunFinished = errors.New("run already finished")
)

// CreateSessionParams configures a new session. A zero ID means a random
// one is assigned.
type CreateSessionParams struct {
	ID       string
	Agent    string
	Metadata map[string]any
}

// TimeoutFailReason is the fail reason recorded for runs that exceed
// their idle deadline.
var TimeoutFailReason = map[string]any{"message": "Timeout"}

// A Store persists sessions, runs and items.
//
// CreateRun must be atomic with respect to the session lock: the check
// for an existing in-progress run and the insert happen under a single
// compare-and-swap, so concurrent creators cannot both succeed. Each
// store provides this guarantee within its own boundary only;
// cross-process distributed locking is a collaborator concern.
type Store interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	GetRun(ctx context.Context, runID string) (*Run, error)

	// CreateRun appends the run (with its initial items) to its session.
	// Returns ErrSessionLocked if the session has a run in progress.
	CreateRun(ctx context.Context, run *Run) error

	// AppendItems appends items to the run, preserving order. Returns
	// ErrRunFinished if the run is no longer in progress.
	AppendItems(ctx context.Context, runID string, items []Item) error

	// UpdateRunStatus overwrites the run's status and, when non-nil, its
	// metadata and fail reason. For terminal statuses the finished-at
	// timestamp is set and the idle deadline is cleared. The write is
	// conditional on the run still being in progress: once a terminal
	// status lands, every later call returns ErrRunFinished, so a
	// concurrent expiry sweep and a status update cannot both win.
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, metadata, failReason map[string]any) error

	// ExtendRunDeadline moves the run's idle deadline forward. Returns
	// ErrRunFinished if the run is no longer in progress.
	ExtendRunDeadline(ctx context.Context, runID string, deadline time.Time) error

	// ExpireRuns fails every in-progress run whose idle deadline lies
	// before now, recording TimeoutFailReason, and returns their ids.
	ExpireRuns(ctx context.Context, now time.Time) ([]string, error)
}
