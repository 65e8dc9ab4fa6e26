package matrix

import (
	"sort"

	"github.com/form3tech-oss/pact-compat/internal/app/semver"
)

const (
	BlockerUntested     = "untested"
	BlockerIncompatible = "incompatible"
)

type Blocker struct {
	ProviderVersion string `json:"providerVersion"`
	Reason          string `json:"reason"`
	Score           int    `json:"score,omitempty"`
}

type UpgradePath struct {
	Path     []string  `json:"path"`
	Blockers []Blocker `json:"blockers"`
	IsViable bool      `json:"isViable"`
}

// GetUpgradePaths walks the known provider versions after from up to and including to,
// checking each against the consumer version. Untested or incompatible versions become
// blockers and are left out of the path. The path always starts with from.
func (m *Matrix) GetUpgradePaths(consumer, consumerVersion, provider, from, to, env string) UpgradePath {
	env = environment(env)

	known := map[string]bool{to: true}
	for _, e := range m.All() {
		if e.ProviderName == provider {
			known[e.ProviderVersion] = true
		}
	}

	var steps []string
	for v := range known {
		if semver.Compare(v, from) > 0 && semver.Compare(v, to) <= 0 {
			steps = append(steps, v)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		return semver.Compare(steps[i], steps[j]) < 0
	})

	result := UpgradePath{Path: []string{from}, Blockers: []Blocker{}}
	reachedTarget := from == to
	for _, v := range steps {
		e, ok := m.Get(consumer, consumerVersion, provider, v, env)
		switch {
		case !ok:
			result.Blockers = append(result.Blockers, Blocker{ProviderVersion: v, Reason: BlockerUntested})
		case !e.IsCompatible:
			result.Blockers = append(result.Blockers, Blocker{ProviderVersion: v, Reason: BlockerIncompatible, Score: e.CompatibilityScore})
		default:
			result.Path = append(result.Path, v)
			if v == to {
				reachedTarget = true
			}
		}
	}

	result.IsViable = len(result.Blockers) == 0 && reachedTarget
	return result
}

type NodeType string

const (
	NodeConsumer NodeType = "consumer"
	NodeProvider NodeType = "provider"
)

type Node struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Type    NodeType `json:"type"`
}

type Edge struct {
	From         string `json:"from"`
	To           string `json:"to"`
	IsCompatible bool   `json:"isCompatible"`
	Score        int    `json:"score"`
	Environment  string `json:"environment"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// GetDependencyGraph returns consumer and provider versions as nodes and the tested
// pairs as edges. An empty env includes every environment.
func (m *Matrix) GetDependencyGraph(env string) Graph {
	g := Graph{Nodes: []Node{}, Edges: []Edge{}}
	seen := make(map[string]bool)

	addNode := func(name, version string, t NodeType) string {
		id := name + "@" + version
		if !seen[id] {
			seen[id] = true
			g.Nodes = append(g.Nodes, Node{ID: id, Name: name, Version: version, Type: t})
		}
		return id
	}

	for _, e := range m.All() {
		if env != "" && e.Environment != env {
			continue
		}
		from := addNode(e.ConsumerName, e.ConsumerVersion, NodeConsumer)
		to := addNode(e.ProviderName, e.ProviderVersion, NodeProvider)
		g.Edges = append(g.Edges, Edge{
			From:         from,
			To:           to,
			IsCompatible: e.IsCompatible,
			Score:        e.CompatibilityScore,
			Environment:  e.Environment,
		})
	}
	return g
}
