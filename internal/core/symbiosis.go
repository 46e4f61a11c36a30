package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/core/discovery"
	"github.com/agenthands/symbiosis/internal/core/insights"
	"github.com/agenthands/symbiosis/internal/core/nlquery"
	"github.com/agenthands/symbiosis/internal/core/search"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/llm"
	"github.com/agenthands/symbiosis/internal/metrics"
)

// Symbiosis bundles every service that runs over one graph connection.
type Symbiosis struct {
	Driver   driver.GraphDriver
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient

	Discovery *discovery.Engine
	Insights  *insights.Reader
	Search    *search.Searcher
	Query     *nlquery.Translator
}

// NewSymbiosis wires the services. llmClient and embedderClient may be nil:
// search then uses text matching only and natural-language queries fail with
// nlquery.ErrNoLLM. m may be nil to disable metrics.
func NewSymbiosis(d driver.GraphDriver, llmClient llm.LLMClient, embedderClient llm.EmbedderClient, cfg *config.Config, log *zap.Logger, m *metrics.Discovery) *Symbiosis {
	var reranker llm.RerankerClient
	if llmClient != nil {
		reranker = llm.NewSimpleLLMReranker(llmClient)
	}

	return &Symbiosis{
		Driver:    d,
		LLM:       llmClient,
		Embedder:  embedderClient,
		Discovery: discovery.NewEngine(d, cfg.Discovery, cfg.Concurrency.ScoreWorkers, log.Named("discovery"), m),
		Insights:  insights.NewReader(d, log.Named("insights")),
		Search:    search.NewSearcher(d, embedderClient, reranker, log.Named("search")),
		Query:     nlquery.NewTranslator(llmClient, d, cfg.Prompts.Translate, log.Named("nlquery")),
	}
}

func (s *Symbiosis) BuildIndices(ctx context.Context) error {
	return s.Driver.BuildIndices(ctx)
}

func (s *Symbiosis) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}
