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

package viewconfig

import "maps"

// ParseMetadata merges and validates run metadata: existing values are
// kept, input values override them, and each configured key is checked
// against its schema. Configured keys absent from both maps default to
// nil. Unknown keys are rejected unless the run config allows them.
func ParseMetadata(rc *RunConfig, input, existing map[string]any) (map[string]any, error) {
	merged := make(map[string]any)
	maps.Copy(merged, existing)
	maps.Copy(merged, input)

	if !rc.AllowsUnknownMetadata() {
		for key := range merged {
			if _, ok := rc.Metadata[key]; !ok {
				return nil, ConfigErrorf("unknown metadata key %q", key)
			}
		}
	}

	for key, schema := range rc.Metadata {
		value, ok := merged[key]
		if !ok || value == nil {
			merged[key] = nil
			continue
		}
		if schema != nil && !schema.Matches(value) {
			return nil, ConfigErrorf("metadata key %q does not match its schema", key)
		}
	}

	return merged, nil
}
