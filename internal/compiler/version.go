package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// vyperPrerelease matches vyper's PEP 440 style prereleases, e.g. "0.4.0rc6".
var vyperPrerelease = regexp.MustCompile(`^(\d+\.\d+\.\d+)((?:a|b|rc)\d+)(.*)$`)

// Version is a compiler version as requested by a client, e.g.
// "v0.8.7+commit.e28d00a7" or "0.3.10".
type Version struct {
	raw       string
	canonical string
}

// ParseVersion validates a compiler version string.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("compiler version is required")
	}
	v := "v" + strings.TrimPrefix(raw, "v")
	if m := vyperPrerelease.FindStringSubmatch(strings.TrimPrefix(v, "v")); m != nil {
		v = "v" + m[1] + "-" + m[2] + m[3]
	}
	if !semver.IsValid(v) {
		return Version{}, fmt.Errorf("invalid compiler version %q", s)
	}
	return Version{raw: raw, canonical: v}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally given.
func (v Version) String() string {
	return v.raw
}

// Core returns the "vMAJOR.MINOR.PATCH" part.
func (v Version) Core() string {
	return semver.Canonical(strings.SplitN(v.canonical, "-", 2)[0])
}

// IsRelease reports whether the version has no prerelease tag (nightlies are
// prereleases).
func (v Version) IsRelease() bool {
	return semver.Prerelease(v.canonical) == ""
}

// Compare orders versions by semver precedence. Build metadata is ignored.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

// AtLeast reports whether the version is >= the given "vX.Y.Z".
func (v Version) AtLeast(min string) bool {
	return semver.Compare(v.Core(), min) >= 0
}

// Equal reports whether both versions name the same build. A version without
// build metadata matches any build of the same release.
func (v Version) Equal(o Version) bool {
	if semver.Compare(v.canonical, o.canonical) != 0 {
		return false
	}
	a, b := semver.Build(v.canonical), semver.Build(o.canonical)
	return a == "" || b == "" || a == b
}
