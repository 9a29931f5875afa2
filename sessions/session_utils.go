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

import "slices"

// LastRun returns the most recent run of the session, or nil if the
// session has no runs yet.
func LastRun(s *Session) *Run {
	if len(s.Runs) == 0 {
		return nil
	}
	return &s.Runs[len(s.Runs)-1]
}

// ActiveRuns returns the runs that contribute to the visible conversation:
// failed runs are hidden, except when the failed run is the last one.
func ActiveRuns(s *Session) []*Run {
	var active []*Run
	for i := range s.Runs {
		if s.Runs[i].Status != RunStatusFailed || i == len(s.Runs)-1 {
			active = append(active, &s.Runs[i])
		}
	}
	return active
}

// AllItems flattens the session's runs into a single ordered item list.
// With activeOnly, items of hidden failed runs are skipped.
func AllItems(s *Session, activeOnly bool) []Item {
	var items []Item
	if activeOnly {
		for _, run := range ActiveRuns(s) {
			items = append(items, run.Items...)
		}
		return items
	}
	for i := range s.Runs {
		items = append(items, s.Runs[i].Items...)
	}
	return items
}

// Versions returns the distinct run versions of the session, in order of
// first appearance.
func Versions(s *Session) []string {
	var versions []string
	for i := range s.Runs {
		v := s.Runs[i].Version
		if v != "" && !slices.Contains(versions, v) {
			versions = append(versions, v)
		}
	}
	return versions
}
