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

// Package runs implements the run lifecycle: creation under the
// single-active-run session lock, semver gating against the session's
// version history, validated item and status updates, the idle-deadline
// heartbeat, and the streamer that drives a run from an agent backend
// stream.
package runs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentview/agentview-go/sessions"
	"github.com/agentview/agentview-go/viewconfig"
)

// DefaultIdleTimeout is the idle deadline applied to in-progress runs
// whose run config does not override it.
const DefaultIdleTimeout = time.Minute

// Manager enforces the run lifecycle rules on top of a store. The
// single-active-run lock relies on the store's atomic CreateRun
// guarantee; the manager never widens it.
type Manager struct {
	Store  sessions.Store
	Config *viewconfig.Config
}

// CreateRunParams configures a new run. Status defaults to in_progress.
type CreateRunParams struct {
	SessionID string

	// Items are the initial item payloads. The first one is the input
	// and must match exactly one run config of the session's agent.
	Items []map[string]any

	Version    string
	Status     sessions.RunStatus
	Metadata   map[string]any
	FailReason map[string]any
}

// CreateRun creates a run on the session.
//
// It fails with a LockConflictError when the session already has a run
// in progress, with a VersionIncompatibleError when the version cannot
// continue the session's version history, and with a ValidationError
// when the items do not satisfy the matched run config.
func (m *Manager) CreateRun(ctx context.Context, params CreateRunParams) (*sessions.Run, error) {
	session, err := m.Store.GetSession(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}

	agentConfig, err := m.Config.RequireAgent(session.Agent)
	if err != nil {
		return nil, err
	}

	version, err := ParseVersion(params.Version)
	if err != nil {
		return nil, err
	}
	if lastRun := sessions.LastRun(session); lastRun != nil && lastRun.Version != "" {
		lastVersion, err := ParseVersion(lastRun.Version)
		if err != nil {
			return nil, VersionIncompatibleErrorf("invalid version format in previous run: %q", lastRun.Version)
		}
		if err := CheckCompatibility(version, lastVersion); err != nil {
			return nil, err
		}
	}

	if len(params.Items) == 0 {
		return nil, NewValidationError("new run must have at least 1 item, the input")
	}
	input, nonInputItems := params.Items[0], params.Items[1:]

	runConfig, err := agentConfig.RequireRunConfig(input)
	if err != nil {
		return nil, err
	}

	status := cmp.Or(params.Status, sessions.RunStatusInProgress)
	if !status.Valid() {
		return nil, ValidationErrorf("invalid run status %q", status)
	}
	if params.FailReason != nil && status != sessions.RunStatusFailed {
		return nil, NewValidationError("failReason can only be set when status is 'failed'")
	}

	if err := validateNonInputItems(runConfig, []map[string]any{input}, nonInputItems, status); err != nil {
		return nil, err
	}

	metadata, err := viewconfig.ParseMetadata(runConfig, params.Metadata, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}

	now := time.Now()
	run := &sessions.Run{
		ID:         uuid.NewString(),
		SessionID:  session.ID,
		Status:     status,
		Version:    version.String(),
		Metadata:   metadata,
		FailReason: params.FailReason,
		Items:      newItems(params.Items),
		CreatedAt:  now,
	}
	if status.Terminal() {
		run.FinishedAt = &now
	} else {
		deadline := now.Add(m.idleTimeout(runConfig))
		run.ExpiresAt = &deadline
	}

	if err := m.Store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, sessions.ErrSessionLocked) {
			return nil, NewLockConflictError("can't create a run because session already has a run in progress")
		}
		return nil, err
	}
	return run, nil
}

// A RunUpdate is a validated mutation of an in-progress run. Nil maps
// and empty fields leave the corresponding run field untouched.
type RunUpdate struct {
	Items      []map[string]any
	Status     sessions.RunStatus
	Metadata   map[string]any
	FailReason map[string]any
}

// isReassertOf reports whether the update only re-asserts the run's
// current terminal status, which is accepted as an idempotent no-op.
func (u RunUpdate) isReassertOf(run *sessions.Run) bool {
	return u.Status == run.Status && len(u.Items) == 0 && u.Metadata == nil && u.FailReason == nil
}

// UpdateRun applies a validated mutation to the run.
//
// A run that reached a terminal status rejects every further mutation
// with a TerminalRunError, with one exception: an update that only
// re-asserts the current status is an idempotent no-op. Completing a
// run requires its final item to classify as an output; failing or
// cancelling accepts a trailing step or output. Non-terminal updates
// extend the idle deadline.
func (m *Manager) UpdateRun(ctx context.Context, runID string, update RunUpdate) (*sessions.Run, error) {
	run, err := m.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Finished() {
		if update.isReassertOf(run) {
			return run, nil
		}
		return nil, NewTerminalRunError(fmt.Sprintf("cannot modify a run with status %q", run.Status))
	}

	runConfig, err := m.runConfigOf(ctx, run)
	if err != nil {
		return nil, err
	}

	status := cmp.Or(update.Status, sessions.RunStatusInProgress)
	if !status.Valid() {
		return nil, ValidationErrorf("invalid run status %q", status)
	}
	if update.FailReason != nil && status != sessions.RunStatusFailed {
		return nil, NewValidationError("failReason can only be set when changing status to 'failed'")
	}

	if err := validateNonInputItems(runConfig, run.ItemContents(), update.Items, status); err != nil {
		return nil, err
	}

	metadata, err := viewconfig.ParseMetadata(runConfig, update.Metadata, run.Metadata)
	if err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}

	// The store writes are conditional on the run still being in
	// progress, which closes the race with the expiry worker: a run that
	// reached a terminal status between the read above and these writes
	// stays terminal. Items appended before a losing status write remain
	// attached to the finished run.
	if len(update.Items) > 0 {
		if err := m.Store.AppendItems(ctx, runID, newItems(update.Items)); err != nil {
			return nil, terminalOr(err, run.Status)
		}
	}
	if err := m.Store.UpdateRunStatus(ctx, runID, status, metadata, update.FailReason); err != nil {
		return nil, terminalOr(err, run.Status)
	}
	if !status.Terminal() {
		deadline := time.Now().Add(m.idleTimeout(runConfig))
		if err := m.Store.ExtendRunDeadline(ctx, runID, deadline); err != nil {
			return nil, terminalOr(err, run.Status)
		}
	}

	return m.Store.GetRun(ctx, runID)
}

// terminalOr converts the store's finality rejection into the
// client-level TerminalRunError.
func terminalOr(err error, lastSeen sessions.RunStatus) error {
	if errors.Is(err, sessions.ErrRunFinished) {
		return NewTerminalRunError(fmt.Sprintf("run finished while the update was in flight (last seen status %q)", lastSeen))
	}
	return err
}

// CancelRun transitions the run to cancelled. Cancelling an already
// cancelled run is a no-op; other terminal statuses reject it.
func (m *Manager) CancelRun(ctx context.Context, runID string) (*sessions.Run, error) {
	return m.UpdateRun(ctx, runID, RunUpdate{Status: sessions.RunStatusCancelled})
}

// Heartbeat extends the run's idle deadline and returns the new one.
// For finished runs it returns nil without error.
func (m *Manager) Heartbeat(ctx context.Context, runID string) (*time.Time, error) {
	run, err := m.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, nil
	}

	runConfig, err := m.runConfigOf(ctx, run)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.idleTimeout(runConfig))
	if err := m.Store.ExtendRunDeadline(ctx, runID, deadline); err != nil {
		// The run may finish between the read and the extension.
		if errors.Is(err, sessions.ErrRunFinished) {
			return nil, nil
		}
		return nil, err
	}
	return &deadline, nil
}

// runConfigOf resolves the run config the run was created under, by
// re-matching its first item against the agent's run configs.
func (m *Manager) runConfigOf(ctx context.Context, run *sessions.Run) (*viewconfig.RunConfig, error) {
	session, err := m.Store.GetSession(ctx, run.SessionID)
	if err != nil {
		return nil, err
	}
	agentConfig, err := m.Config.RequireAgent(session.Agent)
	if err != nil {
		return nil, err
	}
	if len(run.Items) == 0 {
		return nil, NewValidationError("run has no input item")
	}
	return agentConfig.RequireRunConfig(run.Items[0].Content)
}

func (m *Manager) idleTimeout(rc *viewconfig.RunConfig) time.Duration {
	return cmp.Or(rc.IdleTimeout, DefaultIdleTimeout)
}

func newItems(contents []map[string]any) []sessions.Item {
	items := make([]sessions.Item, len(contents))
	for i, content := range contents {
		items[i] = sessions.Item{ID: uuid.NewString(), Content: content}
	}
	return items
}
