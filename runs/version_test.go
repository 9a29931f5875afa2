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
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := ParseVersion(s)
	require.NoError(t, err)
	return v
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]string{
		"1":             "1.0.0",
		"1.2":           "1.2.0",
		"1.2.3":         "1.2.3",
		"v1.2.3":        "1.2.3",
		"1.2.3-beta":    "1.2.3-beta",
		"1.2.3-alpha.1": "1.2.3-alpha.1",
	} {
		v, err := ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v.String(), in)
	}

	_, err := ParseVersion("not-a-version")
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid version number format")
}

func TestCheckCompatibility(t *testing.T) {
	t.Run("major mismatch", func(t *testing.T) {
		err := CheckCompatibility(mustVersion(t, "2.0.0"), mustVersion(t, "1.2.0"))
		require.Error(t, err)
		assert.ErrorContains(t, err, "different major version")
	})

	t.Run("older version", func(t *testing.T) {
		err := CheckCompatibility(mustVersion(t, "1.1.9"), mustVersion(t, "1.2.0"))
		require.Error(t, err)
		assert.ErrorContains(t, err, "older version")
	})

	t.Run("newer minor and patch", func(t *testing.T) {
		assert.NoError(t, CheckCompatibility(mustVersion(t, "1.3.0"), mustVersion(t, "1.2.0")))
		assert.NoError(t, CheckCompatibility(mustVersion(t, "1.2.1"), mustVersion(t, "1.2.0")))
	})

	t.Run("same version", func(t *testing.T) {
		assert.NoError(t, CheckCompatibility(mustVersion(t, "1.2.0"), mustVersion(t, "1.2.0")))
	})

	t.Run("suffix ignored for ordering", func(t *testing.T) {
		assert.NoError(t, CheckCompatibility(mustVersion(t, "1.2.3-beta"), mustVersion(t, "1.2.3")))
		assert.NoError(t, CheckCompatibility(mustVersion(t, "1.2.3"), mustVersion(t, "1.2.3-rc.1")))
	})
}
