package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/core"
	"github.com/agenthands/symbiosis/internal/core/discovery"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/driver/drivertest"
	"github.com/agenthands/symbiosis/internal/llm"
	"github.com/agenthands/symbiosis/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedLLM string

func (f fixedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return string(f), nil
}

func graph() *drivertest.FakeGraph {
	return drivertest.New().
		AddCompany("C1", "SteelCo", "Steel").
		AddCompany("C2", "ChemCo", "Chemicals").
		AddCompany("C3", "SteelCo2", "Steel").
		Produces("C1", "SlagA", "SlagB").
		Produces("C2", "SlagA", "Acid1").
		Produces("C3", "SlagA", "SlagB")
}

func newTestServer(t *testing.T, d driver.GraphDriver, llmClient llm.LLMClient) (*Server, *gin.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Discovery.LockFile = filepath.Join(t.TempDir(), "discovery.lock")
	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)
	s := NewServer(core.NewSymbiosis(d, llmClient, nil, cfg, zap.NewNop(), m), reg, zap.NewNop())
	return s, s.SetupRouter()
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t, drivertest.New(), nil)
	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunDiscoveryThenReadMatches(t *testing.T) {
	_, r := newTestServer(t, graph(), nil)

	w := do(r, http.MethodPost, "/discovery/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.Equal(t, 2.0, report["written"])
	assert.Equal(t, 2.0, report["verified"])

	w = do(r, http.MethodGet, "/insights/matches?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"])
	first := body["matches"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 0.333, first["score"])
	assert.Equal(t, "SteelCo", first["source"].(map[string]interface{})["name"])

	w = do(r, http.MethodGet, "/insights/clusters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = do(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `symbiosis_discovery_runs_total{result="success"} 1`)
	assert.Contains(t, w.Body.String(), "symbiosis_discovery_matches 2")
}

func TestDryRunLeavesGraphUntouched(t *testing.T) {
	g := graph()
	_, r := newTestServer(t, g, nil)

	w := do(r, http.MethodPost, "/discovery/run?dry_run=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["dry_run"])
	assert.Empty(t, g.Matches)
}

func TestTopMatches_EmptyAndInvalidLimit(t *testing.T) {
	_, r := newTestServer(t, drivertest.New(), nil)

	w := do(r, http.MethodGet, "/insights/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"matches":[],"count":0}`, w.Body.String())

	w = do(r, http.MethodGet, "/insights/matches?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type blockingDriver struct {
	*drivertest.FakeGraph
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	if query == driver.ListCompaniesQuery {
		close(d.entered)
		<-d.release
	}
	return d.FakeGraph.ExecuteQuery(ctx, query, params)
}

func TestRunDiscovery_ConflictWhileRunning(t *testing.T) {
	d := &blockingDriver{FakeGraph: graph(), entered: make(chan struct{}), release: make(chan struct{})}
	s, r := newTestServer(t, d, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Symbiosis.Discovery.Run(context.Background(), discovery.RunOptions{})
		done <- err
	}()
	<-d.entered

	w := do(r, http.MethodPost, "/discovery/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(d.release)
	require.NoError(t, <-done)
}

func TestRunDiscovery_ConflictWhenLockHeldElsewhere(t *testing.T) {
	g := graph()
	s, r := newTestServer(t, g, nil)

	other, err := discovery.AcquireFileLock(s.Symbiosis.Discovery.LockFile, discovery.DefaultLockStaleAfter)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/discovery/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotContains(t, g.Queries, driver.DeletePotentialMatchesQuery)

	// Dry runs never write, so they proceed while the lock is held.
	w = do(r, http.MethodPost, "/discovery/run?dry_run=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, other.Release())
	w = do(r, http.MethodPost, "/discovery/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, g.Matches, 2)
}

func TestRunDiscovery_SurvivesClientDisconnect(t *testing.T) {
	g := graph()
	_, r := newTestServer(t, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.FailCreate = func(params map[string]interface{}) error {
		cancel()
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/discovery/run", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["written"])
	assert.Len(t, g.Matches, 2)
}

func TestSearchMaterials(t *testing.T) {
	g := graph().AddMaterial(map[string]interface{}{"id": "m1", "name": "Fly Ash", "status": "available"})
	_, r := newTestServer(t, g, nil)

	w := do(r, http.MethodPost, "/search/materials", map[string]interface{}{"query": "ash"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "text", body["mode"])
	assert.Len(t, body["hits"], 1)

	w = do(r, http.MethodPost, "/search/materials", map[string]interface{}{"query": "carbon black", "company_id": "C2"})
	require.Equal(t, http.StatusOK, w.Code)
	demand := decode(t, w)["demand"].(map[string]interface{})
	assert.Equal(t, "requested", demand["status"])
	assert.Equal(t, []string{"carbon black"}, g.Seeking("C2"))

	w = do(r, http.MethodPost, "/search/materials", map[string]interface{}{"query": "carbon black", "company_id": "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/search/materials", map[string]interface{}{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery(t *testing.T) {
	g := graph()
	g.Default = neo4j.EagerResult{
		Keys:    []string{"n"},
		Records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{int64(3)}}},
	}

	_, r := newTestServer(t, g, fixedLLM(`{"cypher": "MATCH (c:Company) RETURN count(c) AS n"}`))
	w := do(r, http.MethodPost, "/query", map[string]string{"question": "how many companies?"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "MATCH (c:Company) RETURN count(c) AS n", body["cypher"])
	assert.Equal(t, 3.0, body["rows"].([]interface{})[0].(map[string]interface{})["n"])
}

func TestQuery_Errors(t *testing.T) {
	_, r := newTestServer(t, graph(), fixedLLM("MATCH (c:Company) DETACH DELETE c"))
	w := do(r, http.MethodPost, "/query", map[string]string{"question": "remove everyone"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodPost, "/query", map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, r = newTestServer(t, graph(), nil)
	w = do(r, http.MethodPost, "/query", map[string]string{"question": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
