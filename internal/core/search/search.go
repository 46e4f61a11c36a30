// Package search finds waste materials for buyers and records unmet demand.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core/model"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/llm"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	ModeVector = "vector"
	ModeText   = "text"
)

var (
	ErrEmptyQuery     = errors.New("search query is empty")
	ErrUnknownCompany = errors.New("company not found")
)

type Request struct {
	Query string `json:"query"`
	// Buyer to record demand for when nothing matches. Optional.
	CompanyID string `json:"company_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type Result struct {
	Query string              `json:"query"`
	Mode  string              `json:"mode"`
	Hits  []model.MaterialHit `json:"hits"`
	// Set when the search came up empty and the demand was recorded.
	Demand *model.MaterialHit `json:"demand,omitempty"`
}

type Searcher struct {
	Driver   driver.GraphDriver
	Embedder llm.EmbedderClient
	Reranker llm.RerankerClient
	Now      func() time.Time
	log      *zap.Logger
}

// NewSearcher builds a Searcher. embedder and reranker may be nil, in which
// case search is text-only and results keep database order.
func NewSearcher(d driver.GraphDriver, embedder llm.EmbedderClient, reranker llm.RerankerClient, log *zap.Logger) *Searcher {
	return &Searcher{
		Driver:   d,
		Embedder: embedder,
		Reranker: reranker,
		Now:      time.Now,
		log:      log,
	}
}

// Materials runs a vector search when an embedder is available and falls back
// to substring matching when the embedding or the vector index fails or finds
// nothing. Requested (ghost) materials are never returned.
func (s *Searcher) Materials(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	res := &Result{Query: query, Hits: []model.MaterialHit{}}

	if hits, ok := s.vectorSearch(ctx, query, limit); ok && len(hits) > 0 {
		res.Mode = ModeVector
		res.Hits = hits
	} else {
		hits, err := s.query(ctx, driver.SearchMaterialsByTextQuery, map[string]interface{}{
			"query": query,
			"limit": int64(limit),
		})
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		res.Mode = ModeText
		res.Hits = hits
	}

	if len(res.Hits) > 1 && s.Reranker != nil {
		res.Hits = s.rerank(ctx, query, res.Hits)
	}

	if len(res.Hits) == 0 && req.CompanyID != "" {
		demand, err := s.CaptureDemand(ctx, req.CompanyID, query)
		if err != nil {
			return nil, err
		}
		res.Demand = demand
	}
	return res, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, query string, limit int) ([]model.MaterialHit, bool) {
	if s.Embedder == nil {
		return nil, false
	}
	vec, err := s.Embedder.Embed(ctx, query)
	if err != nil || len(vec) == 0 {
		s.log.Debug("embedding unavailable, using text search", zap.Error(err))
		return nil, false
	}
	hits, err := s.query(ctx, driver.SearchMaterialsByEmbeddingQuery, map[string]interface{}{
		"embedding": vec,
		"limit":     int64(limit),
	})
	if err != nil {
		s.log.Warn("vector search failed, using text search", zap.Error(err))
		return nil, false
	}
	return hits, true
}

func (s *Searcher) query(ctx context.Context, cypher string, params map[string]interface{}) ([]model.MaterialHit, error) {
	result, err := s.Driver.ExecuteQuery(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	hits := make([]model.MaterialHit, 0, len(result.Records))
	for _, rec := range result.Records {
		h, err := model.MaterialHitFromRecord(rec)
		if err != nil {
			s.log.Warn("skipping malformed material row", zap.Error(err))
			continue
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *Searcher) rerank(ctx context.Context, query string, hits []model.MaterialHit) []model.MaterialHit {
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = strings.TrimSpace(h.Name + " " + h.Category + " " + h.Description)
	}
	order, err := s.Reranker.Rank(ctx, query, docs)
	if err != nil || len(order) != len(hits) {
		return hits
	}
	out := make([]model.MaterialHit, 0, len(hits))
	for _, i := range order {
		if i < 0 || i >= len(hits) {
			return hits
		}
		out = append(out, hits[i])
	}
	return out
}

// CaptureDemand records that companyID is looking for a material by name. The
// material node is created with status "requested" if it does not exist, and
// repeated captures for the same buyer are idempotent.
func (s *Searcher) CaptureDemand(ctx context.Context, companyID, name string) (*model.MaterialHit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyQuery
	}
	result, err := s.Driver.ExecuteQuery(ctx, driver.CaptureDemandQuery, map[string]interface{}{
		"company_id":   companyID,
		"name":         name,
		"material_id":  uuid.New().String(),
		"requested_at": s.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("capture demand: %w", err)
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompany, companyID)
	}
	hit, err := model.MaterialHitFromRecord(result.Records[0])
	if err != nil {
		return nil, fmt.Errorf("capture demand: %w", err)
	}
	s.log.Info("captured material demand",
		zap.String("company_id", companyID),
		zap.String("material", hit.Name),
		zap.String("status", hit.Status))
	return &hit, nil
}
