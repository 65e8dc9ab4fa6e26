package matrix

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestMatrix() *Matrix {
	m := New(nil)
	m.now = func() time.Time { return now }
	return m
}

func entry(cv, pv string, compatible bool, score int, age time.Duration) contract.MatrixEntry {
	return contract.MatrixEntry{
		ConsumerName:       "web",
		ConsumerVersion:    cv,
		ProviderName:       "orders",
		ProviderVersion:    pv,
		IsCompatible:       compatible,
		CompatibilityScore: score,
		LastTested:         now.Add(-age),
	}
}

func TestAddGetUpdate(t *testing.T) {
	m := newTestMatrix()

	added, err := m.Add(contract.MatrixEntry{ConsumerName: "web", ConsumerVersion: "1.0.0", ProviderName: "orders", ProviderVersion: "2.0.0", IsCompatible: true, CompatibilityScore: 100})
	require.NoError(t, err)
	assert.Equal(t, contract.DefaultEnvironment, added.Environment)
	assert.Equal(t, now, added.LastTested)

	got, ok := m.Get("web", "1.0.0", "orders", "2.0.0", "")
	require.True(t, ok)
	assert.Equal(t, added, got)

	_, ok = m.Get("web", "1.0.0", "orders", "2.0.0", "prod")
	assert.False(t, ok)

	got.IsCompatible = false
	got.LastTested = time.Time{}
	updated, err := m.Update(got)
	require.NoError(t, err)
	assert.False(t, updated.IsCompatible)
	assert.Equal(t, now, updated.LastTested)

	_, err = m.Update(entry("9.9.9", "2.0.0", true, 100, 0))
	assert.ErrorIs(t, err, ErrEntryNotFound)

	// last write wins
	m.Add(entry("1.0.0", "2.0.0", true, 90, time.Hour))
	got, _ = m.Get("web", "1.0.0", "orders", "2.0.0", "default")
	assert.Equal(t, 90, got.CompatibilityScore)
	assert.Equal(t, 1, m.Len())

	m.Delete("web", "1.0.0", "orders", "2.0.0", "")
	assert.Equal(t, 0, m.Len())
}

func TestRecord(t *testing.T) {
	m := newTestMatrix()
	c := &contract.Contract{ConsumerName: "web", ConsumerVersion: "1.0.0", ProviderName: "orders"}

	e, err := m.RecordResult(c, "2.0.0", "prod", contract.CompatibilityResult{IsCompatible: true, CompatibilityScore: 97})
	require.NoError(t, err)
	assert.Equal(t, "web@1.0.0:orders@2.0.0:prod", e.Key())
	assert.Equal(t, 97, e.CompatibilityScore)

	e, err = m.RecordVerification(c, "2.1.0", "", contract.ContractTestResult{
		Status:  contract.StatusFailed,
		Summary: contract.TestSummary{Total: 3, Passed: 2, Failed: 1, PassRate: 66.66666},
	})
	require.NoError(t, err)
	assert.False(t, e.IsCompatible)
	assert.Equal(t, 67, e.CompatibilityScore)
	assert.Equal(t, 2, m.Len())
}

func TestAdd_RequiresIdentifyingFields(t *testing.T) {
	tests := []struct {
		name  string
		entry contract.MatrixEntry
	}{
		{name: "no consumer name", entry: contract.MatrixEntry{ConsumerVersion: "1.0.0", ProviderName: "orders", ProviderVersion: "2.0.0"}},
		{name: "no consumer version", entry: contract.MatrixEntry{ConsumerName: "web", ProviderName: "orders", ProviderVersion: "2.0.0"}},
		{name: "no provider name", entry: contract.MatrixEntry{ConsumerName: "web", ConsumerVersion: "1.0.0", ProviderVersion: "2.0.0"}},
		{name: "no provider version", entry: contract.MatrixEntry{ConsumerName: "web", ConsumerVersion: "1.0.0", ProviderName: "orders"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatrix()
			_, err := m.Add(tt.entry)
			assert.ErrorIs(t, err, ErrIncompleteEntry)
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestRecord_UnversionedConsumer(t *testing.T) {
	m := newTestMatrix()
	c := &contract.Contract{ConsumerName: "web", ProviderName: "orders"}

	_, err := m.RecordResult(c, "2.0.0", "", contract.CompatibilityResult{IsCompatible: true, CompatibilityScore: 100})
	assert.ErrorIs(t, err, ErrIncompleteEntry)

	_, err = m.RecordVerification(c, "2.0.0", "", contract.ContractTestResult{Status: contract.StatusPassed})
	assert.ErrorIs(t, err, ErrIncompleteEntry)
	assert.Equal(t, 0, m.Len())
}

func TestQuery(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "2.0.0", true, 100, 3*time.Hour))
	m.Add(entry("1.0.0", "2.1.0", true, 80, time.Hour))
	m.Add(entry("1.0.0", "3.0.0-rc.1", false, 40, 2*time.Hour))
	other := entry("1.0.0", "2.0.0", true, 100, 30*time.Minute)
	other.ConsumerName = "mobile"
	other.Environment = "prod"
	m.Add(other)

	versions := func(entries []contract.MatrixEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.ConsumerName+"/"+e.ProviderVersion)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "everything but pre-releases, newest first", filter: Filter{}, want: []string{"mobile/2.0.0", "web/2.1.0", "web/2.0.0"}},
		{name: "with pre-releases", filter: Filter{IncludePreRelease: true}, want: []string{"mobile/2.0.0", "web/2.1.0", "web/3.0.0-rc.1", "web/2.0.0"}},
		{name: "by consumer", filter: Filter{Consumer: "mobile"}, want: []string{"mobile/2.0.0"}},
		{name: "by environment", filter: Filter{Environment: "default"}, want: []string{"web/2.1.0", "web/2.0.0"}},
		{name: "by score", filter: Filter{MinScore: 90}, want: []string{"mobile/2.0.0", "web/2.0.0"}},
		{name: "by date range", filter: Filter{From: now.Add(-2 * time.Hour), To: now.Add(-45 * time.Minute)}, want: []string{"web/2.1.0"}},
		{name: "no match", filter: Filter{Provider: "billing"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, versions(m.Query(tt.filter)))
		})
	}
}

func TestFindCompatibleVersions(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "2.0.0", true, 100, 0))
	m.Add(entry("1.0.0", "2.10.0", true, 100, 0))
	m.Add(entry("1.0.0", "2.9.0", true, 100, 0))
	m.Add(entry("1.0.0", "3.0.0", false, 50, 0))
	m.Add(entry("1.1.0", "2.10.0", true, 100, 0))

	var providers []string
	for _, e := range m.FindCompatibleProviderVersions("web", "1.0.0", "orders", "") {
		providers = append(providers, e.ProviderVersion)
	}
	assert.Equal(t, []string{"2.10.0", "2.9.0", "2.0.0"}, providers)

	var consumers []string
	for _, e := range m.FindCompatibleConsumerVersions("orders", "2.10.0", "web", "") {
		consumers = append(consumers, e.ConsumerVersion)
	}
	assert.Equal(t, []string{"1.1.0", "1.0.0"}, consumers)

	latest, ok := m.GetLatestCompatibleVersion("web", "orders", "")
	require.True(t, ok)
	assert.Equal(t, "2.10.0", latest.ProviderVersion)
	assert.Equal(t, "1.1.0", latest.ConsumerVersion)

	_, ok = m.GetLatestCompatibleVersion("web", "billing", "")
	assert.False(t, ok)
}

func TestGetUpgradePaths(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "1.0.0", true, 100, 0))
	m.Add(entry("1.0.0", "1.1.0", true, 100, 0))
	m.Add(entry("1.0.0", "1.2.0", true, 95, 0))
	m.Add(entry("1.0.0", "2.0.0", false, 40, 0))
	// only known through another consumer
	other := entry("1.0.0", "1.3.0", true, 100, 0)
	other.ConsumerName = "mobile"
	m.Add(other)

	viable := m.GetUpgradePaths("web", "1.0.0", "orders", "1.0.0", "1.2.0", "")
	assert.Equal(t, []string{"1.0.0", "1.1.0", "1.2.0"}, viable.Path)
	assert.Empty(t, viable.Blockers)
	assert.True(t, viable.IsViable)

	blocked := m.GetUpgradePaths("web", "1.0.0", "orders", "1.0.0", "2.0.0", "")
	assert.Equal(t, []string{"1.0.0", "1.1.0", "1.2.0"}, blocked.Path)
	assert.Equal(t, []Blocker{
		{ProviderVersion: "1.3.0", Reason: BlockerUntested},
		{ProviderVersion: "2.0.0", Reason: BlockerIncompatible, Score: 40},
	}, blocked.Blockers)
	assert.False(t, blocked.IsViable)

	unknownTarget := m.GetUpgradePaths("web", "1.0.0", "orders", "1.1.0", "5.0.0", "")
	assert.Equal(t, "1.1.0", unknownTarget.Path[0])
	assert.False(t, unknownTarget.IsViable)

	same := m.GetUpgradePaths("web", "1.0.0", "orders", "1.2.0", "1.2.0", "")
	assert.Equal(t, []string{"1.2.0"}, same.Path)
	assert.True(t, same.IsViable)
}

func TestGetDependencyGraph(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "2.0.0", true, 100, 0))
	m.Add(entry("1.1.0", "2.0.0", false, 60, 0))

	g := m.GetDependencyGraph("")
	assert.Equal(t, []Node{
		{ID: "web@1.0.0", Name: "web", Version: "1.0.0", Type: NodeConsumer},
		{ID: "orders@2.0.0", Name: "orders", Version: "2.0.0", Type: NodeProvider},
		{ID: "web@1.1.0", Name: "web", Version: "1.1.0", Type: NodeConsumer},
	}, g.Nodes)
	assert.Equal(t, []Edge{
		{From: "web@1.0.0", To: "orders@2.0.0", IsCompatible: true, Score: 100, Environment: "default"},
		{From: "web@1.1.0", To: "orders@2.0.0", IsCompatible: false, Score: 60, Environment: "default"},
	}, g.Edges)

	assert.Empty(t, m.GetDependencyGraph("prod").Nodes)
}

func TestStaleEntries(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "2.0.0", true, 100, 24*time.Hour))
	m.Add(entry("1.0.0", "2.1.0", true, 100, 10*24*time.Hour))
	m.Add(entry("1.0.0", "2.2.0", true, 100, 30*24*time.Hour))

	stale := m.GetStaleEntries(0)
	require.Len(t, stale, 2)
	assert.Equal(t, "2.2.0", stale[0].ProviderVersion)
	assert.Equal(t, "2.1.0", stale[1].ProviderVersion)

	assert.Len(t, m.GetStaleEntries(time.Hour), 3)

	assert.Equal(t, 2, m.PruneStale(0))
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestExportImport(t *testing.T) {
	m := newTestMatrix()
	m.Add(entry("1.0.0", "2.0.0", true, 100, 24*time.Hour))
	m.Add(entry("1.0.0", "2.1.0", false, 40, time.Minute))
	prod := entry("1.1.0", "2.1.0", true, 90, 0)
	prod.Environment = "prod"
	m.Add(prod)

	data, err := m.Export()
	require.NoError(t, err)

	restored := newTestMatrix()
	n, err := restored.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, m.All(), restored.All())
}

func TestImportDiscardsIncompleteEntries(t *testing.T) {
	m := newTestMatrix()
	n, err := m.Import([]byte(`{"entries": [
		{"consumerName": "web", "consumerVersion": "1.0.0", "providerName": "orders", "providerVersion": "2.0.0", "isCompatible": true, "compatibilityScore": 100, "lastTested": "2024-03-01T10:00:00Z"},
		{"consumerName": "web", "providerName": "orders", "providerVersion": "2.0.0"},
		{"consumerVersion": "1.0.0", "providerName": "orders", "providerVersion": "2.0.0"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := m.Get("web", "1.0.0", "orders", "2.0.0", "")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), e.LastTested)

	_, err = m.Import([]byte(`not json`))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "matrix.json")
	store := NewFileStore(path)

	m := newTestMatrix()
	n, err := store.Load(m)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	m.Add(entry("1.0.0", "2.0.0", true, 100, time.Hour))
	require.NoError(t, store.Save(m))

	restored := newTestMatrix()
	n, err = store.Load(restored)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, m.All(), restored.All())
}
