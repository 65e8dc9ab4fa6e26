// Package semver is the version manager: parsing, ordering, range checks, bump
// inference and upgrade paths over semantic version strings.
//
// Parsing and ordering are delegated to github.com/Masterminds/semver/v3.
package semver

import (
	"sort"
	"strings"

	mm "github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Version is a parsed semantic version. It always carries the string it was parsed from.
type Version struct {
	v *mm.Version
}

func Parse(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, errors.Wrapf(err, "unable to parse version %q", raw)
	}
	return Version{v: v}, nil
}

func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) Major() uint64 { return v.v.Major() }

func (v Version) Minor() uint64 { return v.v.Minor() }

func (v Version) Patch() uint64 { return v.v.Patch() }

func (v Version) PreRelease() string { return v.v.Prerelease() }

func (v Version) Build() string { return v.v.Metadata() }

func (v Version) IsZero() bool { return v.v == nil }

// String returns the original version string.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Compare returns -1, 0 or 1. Strings that are not valid versions sort before valid
// ones and lexically among themselves, so callers can still order mixed input.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.v.Compare(vb.v)
}

// SortDescending orders versions newest first in place.
func SortDescending(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) > 0
	})
}

// SatisfiesRange reports whether version matches a constraint such as ">=1.2.0 <2.0.0" or "^1.4".
func SatisfiesRange(version, constraint string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}
	c, err := mm.NewConstraint(constraint)
	if err != nil {
		return false, errors.Wrapf(err, "unable to parse range %q", constraint)
	}
	return c.Check(v.v), nil
}

// IsPreRelease reports whether raw parses and carries a pre-release tag.
func IsPreRelease(raw string) bool {
	v, err := Parse(raw)
	return err == nil && v.PreRelease() != ""
}
