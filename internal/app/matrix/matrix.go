// Package matrix is the compatibility matrix: the latest known outcome for every tested
// consumer version and provider version pair, per environment.
//
// Reads are always safe to run concurrently. Writes to different keys need no
// coordination; concurrent writes to the same key must be serialized by the caller
// and the last one wins.
package matrix

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/metrics"
	"github.com/pkg/errors"
)

var (
	ErrEntryNotFound   = errors.New("matrix entry not found")
	ErrIncompleteEntry = errors.New("matrix entry needs consumer and provider names and versions")
)

const DefaultStaleAge = 7 * 24 * time.Hour

type Matrix struct {
	entries sync.Map
	now     func() time.Time
	metrics *metrics.Metrics
}

// New returns an empty matrix. m may be nil.
func New(m *metrics.Metrics) *Matrix {
	return &Matrix{
		now:     func() time.Time { return time.Now().UTC() },
		metrics: m,
	}
}

func normalize(e contract.MatrixEntry) contract.MatrixEntry {
	if e.Environment == "" {
		e.Environment = contract.DefaultEnvironment
	}
	return e
}

func complete(e contract.MatrixEntry) bool {
	return e.ConsumerName != "" && e.ConsumerVersion != "" && e.ProviderName != "" && e.ProviderVersion != ""
}

// Add stores e, replacing any entry with the same key. A zero LastTested is set to now.
func (m *Matrix) Add(e contract.MatrixEntry) (contract.MatrixEntry, error) {
	if !complete(e) {
		return contract.MatrixEntry{}, errors.Wrap(ErrIncompleteEntry, e.Key())
	}
	e = normalize(e)
	if e.LastTested.IsZero() {
		e.LastTested = m.now()
	}
	m.entries.Store(e.Key(), e)
	m.metrics.MatrixSize(m.Len())
	return e, nil
}

// Update replaces an existing entry and stamps it with the current time.
func (m *Matrix) Update(e contract.MatrixEntry) (contract.MatrixEntry, error) {
	e = normalize(e)
	if _, ok := m.entries.Load(e.Key()); !ok {
		return contract.MatrixEntry{}, errors.Wrap(ErrEntryNotFound, e.Key())
	}
	e.LastTested = m.now()
	m.entries.Store(e.Key(), e)
	return e, nil
}

func (m *Matrix) Get(consumer, consumerVersion, provider, providerVersion, env string) (contract.MatrixEntry, bool) {
	v, ok := m.entries.Load(contract.MatrixKey(consumer, consumerVersion, provider, providerVersion, env))
	if !ok {
		return contract.MatrixEntry{}, false
	}
	return v.(contract.MatrixEntry), true
}

func (m *Matrix) Delete(consumer, consumerVersion, provider, providerVersion, env string) {
	m.entries.Delete(contract.MatrixKey(consumer, consumerVersion, provider, providerVersion, env))
	m.metrics.MatrixSize(m.Len())
}

// RecordResult stores the outcome of comparing a consumer's contract with a provider version.
func (m *Matrix) RecordResult(c *contract.Contract, providerVersion, env string, result contract.CompatibilityResult) (contract.MatrixEntry, error) {
	return m.Add(contract.MatrixEntry{
		ConsumerName:       c.ConsumerName,
		ConsumerVersion:    c.ConsumerVersion,
		ProviderName:       c.ProviderName,
		ProviderVersion:    providerVersion,
		IsCompatible:       result.IsCompatible,
		CompatibilityScore: result.CompatibilityScore,
		Environment:        env,
	})
}

// RecordVerification stores the outcome of replaying a contract against a provider
// version. The score is the rounded pass rate.
func (m *Matrix) RecordVerification(c *contract.Contract, providerVersion, env string, result contract.ContractTestResult) (contract.MatrixEntry, error) {
	return m.Add(contract.MatrixEntry{
		ConsumerName:       c.ConsumerName,
		ConsumerVersion:    c.ConsumerVersion,
		ProviderName:       c.ProviderName,
		ProviderVersion:    providerVersion,
		IsCompatible:       result.Status == contract.StatusPassed,
		CompatibilityScore: int(math.Round(result.Summary.PassRate)),
		Environment:        env,
	})
}

func (m *Matrix) Len() int {
	n := 0
	m.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// All returns every entry ordered by key.
func (m *Matrix) All() []contract.MatrixEntry {
	var entries []contract.MatrixEntry
	m.entries.Range(func(_, v interface{}) bool {
		entries = append(entries, v.(contract.MatrixEntry))
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() < entries[j].Key()
	})
	return entries
}

func (m *Matrix) Clear() {
	m.entries.Range(func(k, _ interface{}) bool {
		m.entries.Delete(k)
		return true
	})
	m.metrics.MatrixSize(0)
}

// GetStaleEntries returns entries last tested longer than maxAge ago, oldest first.
// A non-positive maxAge means DefaultStaleAge.
func (m *Matrix) GetStaleEntries(maxAge time.Duration) []contract.MatrixEntry {
	if maxAge <= 0 {
		maxAge = DefaultStaleAge
	}
	cutoff := m.now().Add(-maxAge)

	var stale []contract.MatrixEntry
	for _, e := range m.All() {
		if e.LastTested.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].LastTested.Before(stale[j].LastTested)
	})
	return stale
}

// PruneStale deletes the entries GetStaleEntries would return and reports how many there were.
func (m *Matrix) PruneStale(maxAge time.Duration) int {
	stale := m.GetStaleEntries(maxAge)
	for _, e := range stale {
		m.entries.Delete(e.Key())
	}
	m.metrics.MatrixSize(m.Len())
	return len(stale)
}
