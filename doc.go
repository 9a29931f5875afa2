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

// Package agentview is the core of the AgentView session recorder: it
// ingests event streams produced by an external agent backend, reassembles
// them into a durable Session → Run → Item record, and re-interprets the
// recorded items against a declarative per-agent configuration.
//
// The work is split across sibling packages:
//
//   - sessions: the Session/Run/Item data model, run patches, and storage
//     backends (in-memory, SQLite, PostgreSQL).
//   - viewconfig: declarative run configurations, JSON Schema validators,
//     tool-call correlation keys, and the item classification engine.
//   - streams: protocol adapters that normalize backend event streams into
//     canonical run patches.
//   - runs: the run lifecycle manager (single active run per session,
//     version gating, terminal-state rules) and the stream-driving runner.
//   - runworker: background enforcement of run idle deadlines.
//
// This package itself only hosts the shared logger.
package agentview
