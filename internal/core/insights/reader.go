// Package insights reads stored POTENTIAL_MATCH edges back for dashboards.
package insights

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core/community"
	"github.com/agenthands/symbiosis/internal/core/model"
	"github.com/agenthands/symbiosis/internal/driver"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type Reader struct {
	Driver   driver.GraphDriver
	Detector community.Detector
	log      *zap.Logger
}

func NewReader(d driver.GraphDriver, log *zap.Logger) *Reader {
	return &Reader{
		Driver:   d,
		Detector: community.NewLabelPropagationDetector(),
		log:      log,
	}
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using
// DefaultLimit for zero or negative values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// TopMatches returns the highest scoring matches. An empty graph yields an
// empty, non-nil slice.
func (r *Reader) TopMatches(ctx context.Context, limit int) ([]model.MatchView, error) {
	res, err := r.Driver.ExecuteReadQuery(ctx, driver.TopPotentialMatchesQuery, map[string]interface{}{
		"limit": int64(ClampLimit(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("read top matches: %w", err)
	}

	matches := make([]model.MatchView, 0, len(res.Records))
	for _, rec := range res.Records {
		m, err := model.MatchViewFromRecord(rec)
		if err != nil {
			r.log.Warn("skipping malformed match row", zap.Error(err))
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Clusters groups companies linked by potential matches. Stronger scores pull
// companies together harder; companies with no match are left out.
func (r *Reader) Clusters(ctx context.Context) ([]model.Cluster, error) {
	res, err := r.Driver.ExecuteReadQuery(ctx, driver.ListPotentialMatchEdgesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("read match edges: %w", err)
	}

	var nodes []model.MatchParty
	seen := make(map[string]bool)
	addNode := func(p model.MatchParty) {
		if !seen[p.ID] {
			seen[p.ID] = true
			nodes = append(nodes, p)
		}
	}

	edges := make([]community.Edge, 0, len(res.Records))
	for _, rec := range res.Records {
		e, err := model.MatchEdgeFromRecord(rec)
		if err != nil {
			r.log.Warn("skipping malformed match edge", zap.Error(err))
			continue
		}
		addNode(e.Source)
		addNode(e.Target)
		edges = append(edges, community.Edge{SourceID: e.Source.ID, TargetID: e.Target.ID, Weight: e.Score})
	}

	groups, err := r.Detector.Detect(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("detect clusters: %w", err)
	}

	clusters := make([]model.Cluster, 0, len(groups))
	for _, g := range groups {
		clusters = append(clusters, model.Cluster{Members: g})
	}
	return clusters, nil
}
