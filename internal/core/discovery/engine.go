// Package discovery computes cross-industry partnership candidates from the
// material graph and stores them as POTENTIAL_MATCH edges.
//
// A run reads every company's material profile, scores pairs of companies in
// different industries by Jaccard similarity, deletes all existing
// POTENTIAL_MATCH edges, and writes the pairs at or above the threshold.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/core/model"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/metrics"
)

var ErrRunInProgress = errors.New("discovery run already in progress")

// A lock file older than this is left over from a crashed run.
const DefaultLockStaleAfter = 6 * time.Hour

type Engine struct {
	Extractor    *Extractor
	Scorer       *Scorer
	Materializer *Materializer
	ReportTop    int

	// Cross-process lock taken by every non-dry run. Empty disables it.
	LockFile       string
	LockStaleAfter time.Duration

	Now            func() time.Time
	RunIDGenerator func() string

	metrics *metrics.Discovery
	log     *zap.Logger
	mu      sync.Mutex
}

// NewEngine wires the three stages over one driver. m may be nil.
func NewEngine(d driver.GraphDriver, cfg config.DiscoveryConfig, workers int, log *zap.Logger, m *metrics.Discovery) *Engine {
	return &Engine{
		Extractor:      NewExtractor(d, log),
		Scorer:         NewScorer(cfg.Threshold, cfg.SampleSize, workers),
		Materializer:   NewMaterializer(d, cfg.SampleSize, log),
		ReportTop:      cfg.ReportTop,
		LockFile:       cfg.LockFile,
		LockStaleAfter: DefaultLockStaleAfter,
		Now:            time.Now,
		RunIDGenerator: func() string { return uuid.New().String() },
		metrics:        m,
		log:            log,
	}
}

type RunOptions struct {
	// Score and report without touching the stored matches.
	DryRun bool
}

type Report struct {
	RunID      string             `json:"run_id"`
	DryRun     bool               `json:"dry_run"`
	Companies  int                `json:"companies"`
	Skipped    int                `json:"skipped"`
	Deleted    int64              `json:"deleted"`
	Candidates int                `json:"candidates"`
	Retained   int                `json:"retained"`
	Written    int                `json:"written"`
	Failed     int                `json:"failed"`
	Verified   int64              `json:"verified"`
	AvgScore   float64            `json:"avg_score"`
	Top        []model.ScoredPair `json:"top"`
	ComputedAt time.Time          `json:"computed_at"`
	Duration   time.Duration      `json:"duration"`
}

// Run executes one full discovery pass. Only one Run per Engine proceeds at a
// time; a concurrent call returns ErrRunInProgress. Non-dry runs also hold
// LockFile, so a run in another process yields ErrLockHeld before anything is
// deleted. Read and delete failures abort the run, per-pair write failures do
// not.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	if !opts.DryRun && e.LockFile != "" {
		lock, err := AcquireFileLock(e.LockFile, e.LockStaleAfter)
		if err != nil {
			e.log.Warn("discovery lock unavailable", zap.String("lock_file", e.LockFile), zap.Error(err))
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				e.log.Warn("failed to release discovery lock", zap.Error(err))
			}
		}()
	}

	start := e.Now()
	report := &Report{
		RunID:      e.RunIDGenerator(),
		DryRun:     opts.DryRun,
		ComputedAt: start.UTC(),
	}
	log := e.log.With(zap.String("run_id", report.RunID))

	err := e.run(ctx, log, opts, report)
	report.Duration = e.Now().Sub(start)
	e.record(report, err)
	if err != nil {
		return report, err
	}

	e.logReport(log, report)
	return report, nil
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, opts RunOptions, report *Report) error {
	snap, err := e.Extractor.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract profiles: %w", err)
	}
	report.Companies = len(snap.Profiles)
	report.Skipped = snap.Skipped

	scored, err := e.Scorer.Score(ctx, snap)
	if err != nil {
		return fmt.Errorf("score pairs: %w", err)
	}
	report.Candidates = scored.Candidates
	report.Retained = len(scored.Pairs)
	report.Top = topN(scored.Pairs, e.ReportTop)
	log.Info("scored company pairs",
		zap.Int("companies", report.Companies),
		zap.Int("candidates", report.Candidates),
		zap.Int("retained", report.Retained),
		zap.Float64("threshold", e.Scorer.Threshold))

	if opts.DryRun {
		return nil
	}

	report.Deleted, err = e.Materializer.Clear(ctx)
	if err != nil {
		return err
	}
	log.Info("deleted stale potential matches", zap.Int64("deleted", report.Deleted))

	wr, err := e.Materializer.Write(ctx, scored.Pairs, report.RunID, report.ComputedAt)
	report.Written, report.Failed = wr.Written, wr.Failed
	if err != nil {
		return fmt.Errorf("write potential matches: %w", err)
	}

	report.Verified, report.AvgScore, err = e.Materializer.Stats(ctx)
	if err != nil {
		log.Warn("could not verify persisted matches", zap.Error(err))
	}
	return nil
}

func (e *Engine) record(r *Report, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.Duration.Observe(r.Duration.Seconds())
	e.metrics.WriteFailures.Add(float64(r.Failed))
	if err != nil {
		e.metrics.Runs.WithLabelValues("error").Inc()
		return
	}
	e.metrics.Runs.WithLabelValues("success").Inc()
	e.metrics.Candidates.Set(float64(r.Candidates))
	if r.DryRun {
		return
	}
	e.metrics.Deleted.Set(float64(r.Deleted))
	e.metrics.Matches.Set(float64(r.Verified))
	e.metrics.AvgScore.Set(r.AvgScore)
	e.metrics.LastSuccess.Set(float64(r.ComputedAt.Unix()))
}

func (e *Engine) logReport(log *zap.Logger, r *Report) {
	for i, p := range r.Top {
		log.Info("top match",
			zap.Int("rank", i+1),
			zap.String("source", p.SourceName),
			zap.String("source_industry", p.SourceIndustry),
			zap.String("target", p.TargetName),
			zap.String("target_industry", p.TargetIndustry),
			zap.Float64("score", p.Score),
			zap.Int("shared_materials", p.SharedMaterials))
	}
	log.Info("discovery complete",
		zap.Bool("dry_run", r.DryRun),
		zap.Int64("deleted", r.Deleted),
		zap.Int("retained", r.Retained),
		zap.Int("written", r.Written),
		zap.Int("failed", r.Failed),
		zap.Int64("verified", r.Verified),
		zap.Float64("avg_score", r.AvgScore),
		zap.Duration("duration", r.Duration))
}

func topN(pairs []model.ScoredPair, n int) []model.ScoredPair {
	if n <= 0 || len(pairs) == 0 {
		return nil
	}
	if n > len(pairs) {
		n = len(pairs)
	}
	out := make([]model.ScoredPair, n)
	copy(out, pairs[:n])
	return out
}

func int64Field(records []*neo4j.Record, key string) int64 {
	if len(records) == 0 {
		return 0
	}
	v, ok := records[0].Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
