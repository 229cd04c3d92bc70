package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var buildNumberRE = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)

// BuildNumber is a CFBundleVersion: one to three dot-separated integers.
type BuildNumber []int

// ParseBuildNumber parses a CFBundleVersion value.
func ParseBuildNumber(s string) (BuildNumber, error) {
	s = strings.TrimSpace(s)
	if !buildNumberRE.MatchString(s) {
		return nil, fmt.Errorf("build number %q must be one to three dot-separated integers", s)
	}
	parts := strings.Split(s, ".")
	b := make(BuildNumber, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("build number %q: %w", s, err)
		}
		b[i] = n
	}
	return b, nil
}

// Compare returns -1, 0 or 1. Missing components count as zero, so 1.0 and 1
// are equal.
func (b BuildNumber) Compare(other BuildNumber) int {
	n := max(len(b), len(other))
	for i := range n {
		x, y := at(b, i), at(other, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func at(b BuildNumber, i int) int {
	if i < len(b) {
		return b[i]
	}
	return 0
}

func (b BuildNumber) String() string {
	parts := make([]string, len(b))
	for i, n := range b {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// ValidVersion reports whether s is a plain MAJOR.MINOR.PATCH version, the
// form App Store Connect expects for CFBundleShortVersionString.
func ValidVersion(s string) bool {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return v.Prerelease() == "" && v.Metadata() == ""
}
