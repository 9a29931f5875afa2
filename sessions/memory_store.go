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
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store. It serializes all
// access through a single mutex, which is what provides the
// compare-and-swap guarantee for the session run lock.
//
// Item contents are shared, not deep-copied; callers must treat them as
// immutable once stored.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) CreateSession(_ context.Context, params CreateSessionParams) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := s.sessions[id]; ok {
		return nil, fmt.Errorf("session %q already exists", id)
	}

	session := &Session{
		ID:        id,
		Agent:     params.Agent,
		Metadata:  params.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[id] = session
	s.order = append(s.order, id)
	return cloneSession(session), nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.findRun(runID)
	if run == nil {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[run.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for i := range session.Runs {
		if session.Runs[i].Status == RunStatusInProgress {
			return ErrSessionLocked
		}
	}
	session.Runs = append(session.Runs, *cloneRun(run))
	return nil
}

func (s *MemoryStore) AppendItems(_ context.Context, runID string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.findRun(runID)
	if run == nil {
		return ErrRunNotFound
	}
	if run.Finished() {
		return ErrRunFinished
	}
	run.Items = append(run.Items, items...)
	return nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status RunStatus, metadata, failReason map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.findRun(runID)
	if run == nil {
		return ErrRunNotFound
	}
	if run.Finished() {
		return ErrRunFinished
	}

	run.Status = status
	if metadata != nil {
		run.Metadata = metadata
	}
	if failReason != nil {
		run.FailReason = failReason
	}
	if status.Terminal() {
		if run.FinishedAt == nil {
			now := time.Now().UTC()
			run.FinishedAt = &now
		}
		run.ExpiresAt = nil
	}
	return nil
}

func (s *MemoryStore) ExtendRunDeadline(_ context.Context, runID string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.findRun(runID)
	if run == nil {
		return ErrRunNotFound
	}
	if run.Finished() {
		return ErrRunFinished
	}
	run.ExpiresAt = &deadline
	return nil
}

func (s *MemoryStore) ExpireRuns(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, id := range s.order {
		session := s.sessions[id]
		for i := range session.Runs {
			run := &session.Runs[i]
			if run.Status != RunStatusInProgress || run.ExpiresAt == nil || !run.ExpiresAt.Before(now) {
				continue
			}
			run.Status = RunStatusFailed
			run.FailReason = TimeoutFailReason
			finishedAt := now
			run.FinishedAt = &finishedAt
			run.ExpiresAt = nil
			expired = append(expired, run.ID)
		}
	}
	return expired, nil
}

func (s *MemoryStore) findRun(runID string) *Run {
	for _, id := range s.order {
		session := s.sessions[id]
		for i := range session.Runs {
			if session.Runs[i].ID == runID {
				return &session.Runs[i]
			}
		}
	}
	return nil
}

func cloneSession(session *Session) *Session {
	out := *session
	out.Runs = make([]Run, len(session.Runs))
	for i := range session.Runs {
		out.Runs[i] = *cloneRun(&session.Runs[i])
	}
	return &out
}

func cloneRun(run *Run) *Run {
	out := *run
	out.Items = slices.Clone(run.Items)
	return &out
}
