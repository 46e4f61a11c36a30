package community

import (
	"sort"

	"github.com/agenthands/symbiosis/internal/core/model"
)

// Edge is an undirected, weighted link between two companies.
type Edge struct {
	SourceID string
	TargetID string
	Weight   float64
}

type Detector interface {
	Detect(nodes []model.MatchParty, edges []Edge) ([][]model.MatchParty, error)
}

// LabelPropagationDetector groups companies with weighted label propagation.
type LabelPropagationDetector struct {
	MaxIterations int
}

func NewLabelPropagationDetector() *LabelPropagationDetector {
	return &LabelPropagationDetector{
		MaxIterations: 20,
	}
}

// Detect returns clusters of two or more companies. Members of each cluster are
// sorted by ID and clusters are ordered by size, then by first member ID.
func (d *LabelPropagationDetector) Detect(nodes []model.MatchParty, edges []Edge) ([][]model.MatchParty, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	adj := make(map[string]map[string]float64) // node -> neighbor -> weight
	nodeMap := make(map[string]model.MatchParty)

	for _, n := range nodes {
		nodeMap[n.ID] = n
		adj[n.ID] = make(map[string]float64)
	}

	for _, e := range edges {
		if _, ok := nodeMap[e.SourceID]; !ok {
			continue
		}
		if _, ok := nodeMap[e.TargetID]; !ok {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		adj[e.SourceID][e.TargetID] += w
		adj[e.TargetID][e.SourceID] += w
	}

	labels := make(map[string]string)
	ids := make([]string, 0, len(nodeMap))
	for id := range nodeMap {
		labels[id] = id
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for iter := 0; iter < d.MaxIterations; iter++ {
		changeCount := 0

		for _, u := range ids {
			neighbors := adj[u]
			if len(neighbors) == 0 {
				continue
			}

			labelWeights := make(map[string]float64)
			maxWeight := 0.0
			for v, weight := range neighbors {
				label := labels[v]
				labelWeights[label] += weight
				if labelWeights[label] > maxWeight {
					maxWeight = labelWeights[label]
				}
			}

			var candidates []string
			for label, w := range labelWeights {
				if w == maxWeight {
					candidates = append(candidates, label)
				}
			}

			// Ties go to the lexicographically largest label for stability.
			sort.Strings(candidates)
			bestLabel := candidates[len(candidates)-1]

			if labels[u] != bestLabel {
				labels[u] = bestLabel
				changeCount++
			}
		}

		if changeCount == 0 {
			break
		}
	}

	clusters := make(map[string][]model.MatchParty)
	for _, id := range ids {
		clusters[labels[id]] = append(clusters[labels[id]], nodeMap[id])
	}

	var communities [][]model.MatchParty
	for _, cluster := range clusters {
		if len(cluster) >= 2 {
			communities = append(communities, cluster)
		}
	}
	sort.Slice(communities, func(i, j int) bool {
		if len(communities[i]) != len(communities[j]) {
			return len(communities[i]) > len(communities[j])
		}
		return communities[i][0].ID < communities[j][0].ID
	})

	return communities, nil
}
