package matrix

import (
	"sort"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/semver"
)

// Filter narrows a query. Empty fields match everything, except that pre-release
// versions are only returned when IncludePreRelease is set.
type Filter struct {
	Consumer          string    `json:"consumer,omitempty" query:"consumer"`
	Provider          string    `json:"provider,omitempty" query:"provider"`
	Environment       string    `json:"environment,omitempty" query:"environment"`
	MinScore          int       `json:"minScore,omitempty" query:"minScore"`
	From              time.Time `json:"from,omitempty" query:"from"`
	To                time.Time `json:"to,omitempty" query:"to"`
	IncludePreRelease bool      `json:"includePreRelease,omitempty" query:"includePreRelease"`
}

func (f Filter) matches(e contract.MatrixEntry) bool {
	switch {
	case f.Consumer != "" && e.ConsumerName != f.Consumer:
		return false
	case f.Provider != "" && e.ProviderName != f.Provider:
		return false
	case f.Environment != "" && e.Environment != f.Environment:
		return false
	case e.CompatibilityScore < f.MinScore:
		return false
	case !f.From.IsZero() && e.LastTested.Before(f.From):
		return false
	case !f.To.IsZero() && e.LastTested.After(f.To):
		return false
	case !f.IncludePreRelease && (semver.IsPreRelease(e.ConsumerVersion) || semver.IsPreRelease(e.ProviderVersion)):
		return false
	}
	return true
}

// Query returns the matching entries, most recently tested first.
func (m *Matrix) Query(f Filter) []contract.MatrixEntry {
	var result []contract.MatrixEntry
	for _, e := range m.All() {
		if f.matches(e) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastTested.After(result[j].LastTested)
	})
	return result
}

// FindCompatibleProviderVersions returns the compatible entries for a consumer version,
// newest provider version first.
func (m *Matrix) FindCompatibleProviderVersions(consumer, consumerVersion, provider, env string) []contract.MatrixEntry {
	env = environment(env)
	var result []contract.MatrixEntry
	for _, e := range m.All() {
		if e.IsCompatible && e.ConsumerName == consumer && e.ConsumerVersion == consumerVersion &&
			e.ProviderName == provider && e.Environment == env {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return semver.Compare(result[i].ProviderVersion, result[j].ProviderVersion) > 0
	})
	return result
}

// FindCompatibleConsumerVersions returns the compatible entries for a provider version,
// newest consumer version first.
func (m *Matrix) FindCompatibleConsumerVersions(provider, providerVersion, consumer, env string) []contract.MatrixEntry {
	env = environment(env)
	var result []contract.MatrixEntry
	for _, e := range m.All() {
		if e.IsCompatible && e.ProviderName == provider && e.ProviderVersion == providerVersion &&
			e.ConsumerName == consumer && e.Environment == env {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return semver.Compare(result[i].ConsumerVersion, result[j].ConsumerVersion) > 0
	})
	return result
}

// GetLatestCompatibleVersion returns the compatible entry with the highest provider
// version, breaking ties on the consumer version.
func (m *Matrix) GetLatestCompatibleVersion(consumer, provider, env string) (contract.MatrixEntry, bool) {
	env = environment(env)
	var best contract.MatrixEntry
	found := false
	for _, e := range m.All() {
		if !e.IsCompatible || e.ConsumerName != consumer || e.ProviderName != provider || e.Environment != env {
			continue
		}
		if !found || newer(e, best) {
			best = e
			found = true
		}
	}
	return best, found
}

func newer(a, b contract.MatrixEntry) bool {
	if c := semver.Compare(a.ProviderVersion, b.ProviderVersion); c != 0 {
		return c > 0
	}
	return semver.Compare(a.ConsumerVersion, b.ConsumerVersion) > 0
}

func environment(env string) string {
	if env == "" {
		return contract.DefaultEnvironment
	}
	return env
}
