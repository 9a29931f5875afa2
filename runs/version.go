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
	"github.com/Masterminds/semver/v3"
)

// ParseVersion parses a run version string. Partial versions are
// normalized ("1" and "1.2" become "1.0.0" and "1.2.0"), an optional "v"
// prefix and a prerelease suffix like "-beta" or "-alpha.1" are
// accepted.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, VersionIncompatibleErrorf("invalid version number format, should be like '1.2.3-xxx': %q", s)
	}
	return v, nil
}

// CheckCompatibility reports whether next may continue a session whose
// latest run carried last. The major version must match, and the core
// version must be monotonically non-decreasing. Prerelease suffixes are
// ignored for ordering.
func CheckCompatibility(next, last *semver.Version) error {
	if next.Major() != last.Major() {
		return NewVersionIncompatibleError("cannot continue a session with a different major version")
	}
	if coreVersion(next).LessThan(coreVersion(last)) {
		return NewVersionIncompatibleError("cannot continue a session with an older version")
	}
	return nil
}

func coreVersion(v *semver.Version) *semver.Version {
	return semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
}
