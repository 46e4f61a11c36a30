package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core/model"
	"github.com/agenthands/symbiosis/internal/driver"
)

// Materializer replaces the POTENTIAL_MATCH edge set with a freshly scored one.
type Materializer struct {
	Driver     driver.GraphDriver
	SampleSize int
	log        *zap.Logger
}

func NewMaterializer(d driver.GraphDriver, sampleSize int, log *zap.Logger) *Materializer {
	return &Materializer{Driver: d, SampleSize: clampSampleSize(sampleSize), log: log}
}

// Clear deletes every POTENTIAL_MATCH edge and returns how many were removed.
func (m *Materializer) Clear(ctx context.Context) (int64, error) {
	res, err := m.Driver.ExecuteQuery(ctx, driver.DeletePotentialMatchesQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("delete potential matches: %w", err)
	}
	return int64Field(res.Records, "deleted"), nil
}

// WriteResult counts per-pair outcomes of Write.
type WriteResult struct {
	Written int
	Failed  int
}

// Write creates one edge per pair. A failed pair is logged and skipped; only
// context cancellation stops the batch.
func (m *Materializer) Write(ctx context.Context, pairs []model.ScoredPair, runID string, computedAt time.Time) (WriteResult, error) {
	var wr WriteResult
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return wr, err
		}
		if err := m.writeOne(ctx, p, runID, computedAt); err != nil {
			wr.Failed++
			m.log.Warn("skipping potential match",
				zap.String("source_id", p.SourceID),
				zap.String("target_id", p.TargetID),
				zap.Error(err))
			continue
		}
		wr.Written++
	}
	return wr, nil
}

func (m *Materializer) writeOne(ctx context.Context, p model.ScoredPair, runID string, computedAt time.Time) error {
	names := p.SharedNames
	if limit := clampSampleSize(m.SampleSize); len(names) > limit {
		names = names[:limit]
	}
	if names == nil {
		names = []string{}
	}

	params := map[string]interface{}{
		"source_id":        p.SourceID,
		"target_id":        p.TargetID,
		"score":            p.Score,
		"shared_materials": int64(p.SharedMaterials),
		"shared_names":     names,
		"computed_at":      computedAt,
		"run_id":           runID,
	}
	res, err := m.Driver.ExecuteQuery(ctx, driver.CreatePotentialMatchQuery, params)
	if err != nil {
		return err
	}
	if int64Field(res.Records, "created") == 0 {
		return fmt.Errorf("endpoint missing for %s -> %s", p.SourceID, p.TargetID)
	}
	return nil
}

// Stats returns the persisted edge count and the average score (0 when empty).
func (m *Materializer) Stats(ctx context.Context) (int64, float64, error) {
	res, err := m.Driver.ExecuteQuery(ctx, driver.PotentialMatchStatsQuery, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("verify potential matches: %w", err)
	}
	total := int64Field(res.Records, "total")
	var avg float64
	if len(res.Records) > 0 {
		if v, ok := res.Records[0].Get("avg_score"); ok {
			if f, ok := v.(float64); ok {
				avg = f
			}
		}
	}
	return total, avg, nil
}
