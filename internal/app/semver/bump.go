package semver

import (
	mm "github.com/Masterminds/semver/v3"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/pkg/errors"
)

type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
	BumpPatch Bump = "patch"
)

// GetNextVersion increments current by the given bump. Pre-release and build metadata
// are dropped.
func GetNextVersion(current string, bump Bump) (string, error) {
	v, err := Parse(current)
	if err != nil {
		return "", err
	}

	switch bump {
	case BumpMajor:
		return v.v.IncMajor().String(), nil
	case BumpMinor:
		return v.v.IncMinor().String(), nil
	case BumpPatch:
		// the release of 1.2.3-rc.1 is 1.2.3
		if v.PreRelease() != "" {
			return mm.New(v.Major(), v.Minor(), v.Patch(), "", "").String(), nil
		}
		return mm.New(v.Major(), v.Minor(), v.Patch()+1, "", "").String(), nil
	}
	return "", errors.Errorf("unknown version bump %q", bump)
}

// DetermineVersionBump returns the smallest bump that accounts for changes. Patch is the
// floor and is returned even when there are no changes at all.
func DetermineVersionBump(breakingChanges, warnings []contract.Change) Bump {
	bump := BumpPatch
	for _, changes := range [][]contract.Change{breakingChanges, warnings} {
		for _, c := range changes {
			switch c.Severity {
			case contract.SeverityMajor:
				return BumpMajor
			case contract.SeverityMinor:
				bump = BumpMinor
			}
		}
	}
	return bump
}

type CompatibilityMode string

const (
	ModeStrict CompatibilityMode = "strict"
	ModeMinor  CompatibilityMode = "minor"
	ModeMajor  CompatibilityMode = "major"
)

// AreVersionsCompatible checks a consumer version against a provider version. Strict mode
// is plain string equality, minor mode requires the same major and a provider minor at
// least the consumer's, major mode only requires the provider major to be at least the consumer's.
func AreVersionsCompatible(consumer, provider string, mode CompatibilityMode) (bool, error) {
	if mode == ModeStrict {
		return consumer == provider, nil
	}

	c, err := Parse(consumer)
	if err != nil {
		return false, err
	}
	p, err := Parse(provider)
	if err != nil {
		return false, err
	}

	switch mode {
	case ModeMinor:
		return c.Major() == p.Major() && c.Minor() <= p.Minor(), nil
	case ModeMajor:
		return c.Major() <= p.Major(), nil
	}
	return false, errors.Errorf("unknown compatibility mode %q", mode)
}
