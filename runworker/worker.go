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

// Package runworker enforces run idle deadlines: a periodic sweep fails
// every in-progress run whose deadline passed.
package runworker

import (
	"cmp"
	"context"
	"time"

	agentview "github.com/agentview/agentview-go"
	"github.com/agentview/agentview-go/sessions"
)

// DefaultInterval is the sweep period used when WorkerParams.Interval
// is zero.
const DefaultInterval = time.Second

// WorkerParams configures a Worker.
type WorkerParams struct {
	Store sessions.Store

	// Interval between sweeps. Defaults to DefaultInterval.
	Interval time.Duration
}

// A Worker periodically expires idle runs. Expired runs transition to
// failed with the timeout fail reason. The worker is a safety net
// behind the heartbeat: a healthy agent keeps extending its run's
// deadline and is never touched.
type Worker struct {
	store    sessions.Store
	interval time.Duration
}

func NewWorker(params WorkerParams) *Worker {
	return &Worker{
		store:    params.Store,
		interval: cmp.Or(params.Interval, DefaultInterval),
	}
}

// Run sweeps immediately, then on every tick, until ctx is canceled.
// Sweep errors are logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass and returns the ids of the runs it
// failed.
func (w *Worker) Sweep(ctx context.Context) ([]string, error) {
	return w.store.ExpireRuns(ctx, time.Now())
}

func (w *Worker) sweep(ctx context.Context) {
	expired, err := w.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			agentview.Logger().Error("failed to expire idle runs", "error", err)
		}
		return
	}
	if len(expired) > 0 {
		agentview.Logger().Info("expired idle runs", "count", len(expired), "runIds", expired)
	}
}
