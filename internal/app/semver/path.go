package semver

import (
	"sort"

	"github.com/pkg/errors"
)

// Distance is the per-component absolute difference between two versions. Total ranks
// distances with major outweighing minor outweighing patch.
type Distance struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
	Total int `json:"total"`
}

func GetVersionDistance(a, b string) (Distance, error) {
	va, err := Parse(a)
	if err != nil {
		return Distance{}, err
	}
	vb, err := Parse(b)
	if err != nil {
		return Distance{}, err
	}

	d := Distance{
		Major: absDiff(va.Major(), vb.Major()),
		Minor: absDiff(va.Minor(), vb.Minor()),
		Patch: absDiff(va.Patch(), vb.Patch()),
	}
	d.Total = d.Major*10000 + d.Minor*100 + d.Patch
	return d, nil
}

func absDiff(a, b uint64) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// GenerateMigrationPath returns the steps from one version to another: from itself, the
// newest available release of every major strictly between the two, then to.
// Unparseable entries in available are ignored.
func GenerateMigrationPath(from, to string, available []string) ([]string, error) {
	vFrom, err := Parse(from)
	if err != nil {
		return nil, err
	}
	vTo, err := Parse(to)
	if err != nil {
		return nil, err
	}

	switch c := vFrom.v.Compare(vTo.v); {
	case c == 0:
		return []string{from}, nil
	case c > 0:
		return nil, errors.Errorf("target version %s is older than %s", to, from)
	}

	newest := make(map[uint64]Version)
	for _, raw := range available {
		v, err := Parse(raw)
		if err != nil {
			continue
		}
		if v.Major() <= vFrom.Major() || v.Major() >= vTo.Major() {
			continue
		}
		if current, ok := newest[v.Major()]; !ok || v.v.GreaterThan(current.v) {
			newest[v.Major()] = v
		}
	}

	majors := make([]uint64, 0, len(newest))
	for m := range newest {
		majors = append(majors, m)
	}
	sort.Slice(majors, func(i, j int) bool { return majors[i] < majors[j] })

	path := []string{from}
	for _, m := range majors {
		path = append(path, newest[m].String())
	}
	return append(path, to), nil
}
