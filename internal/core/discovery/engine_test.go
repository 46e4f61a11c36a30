package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/driver/drivertest"
	"github.com/agenthands/symbiosis/internal/metrics"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(d driver.GraphDriver, m *metrics.Discovery) *Engine {
	cfg := config.DiscoveryConfig{Threshold: 0.12, SampleSize: 5, ReportTop: 3}
	e := NewEngine(d, cfg, 4, zap.NewNop(), m)
	e.Now = func() time.Time { return fixedNow }
	runs := 0
	e.RunIDGenerator = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	return e
}

// SteelCo and SteelCo2 share an industry; ChemCo overlaps both on SlagA.
func scenarioGraph() *drivertest.FakeGraph {
	return drivertest.New().
		AddCompany("C1", "SteelCo", "Steel").
		AddCompany("C2", "ChemCo", "Chemicals").
		AddCompany("C3", "SteelCo2", "Steel").
		Produces("C1", "SlagA", "SlagB").
		Produces("C2", "SlagA", "Acid1").
		Produces("C3", "SlagA", "SlagB")
}

type matchKey struct {
	source, target string
	score          float64
	shared         int64
}

func persisted(g *drivertest.FakeGraph) []matchKey {
	var out []matchKey
	for _, m := range g.Matches {
		out = append(out, matchKey{m.SourceID, m.TargetID, m.Props["score"].(float64), m.Props["shared_materials"].(int64)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].source != out[j].source {
			return out[i].source < out[j].source
		}
		return out[i].target < out[j].target
	})
	return out
}

func TestRun_EndToEndScenario(t *testing.T) {
	g := scenarioGraph()
	e := newTestEngine(g, nil)

	report, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []matchKey{
		{"C1", "C2", 0.333, 1},
		{"C2", "C3", 0.333, 1},
	}, persisted(g))
	assert.Equal(t, 3, report.Companies)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Retained)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, int64(2), report.Verified)
	assert.InDelta(t, 0.333, report.AvgScore, 1e-9)
	assert.Equal(t, "run-1", report.RunID)

	m := g.Matches[0]
	assert.Equal(t, []string{"SlagA"}, m.Props["shared_names"])
	assert.Equal(t, fixedNow, m.Props["computed_at"])
	assert.Equal(t, "run-1", m.Props["run_id"])
}

func TestRun_Invariants(t *testing.T) {
	g := drivertest.New()
	industries := map[string]string{}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("C%02d", i)
		industry := []string{"Steel", "Chemicals", "Paper"}[i%3]
		industries[id] = industry
		g.AddCompany(id, id, industry)
		g.Produces(id, fmt.Sprintf("m%d", i%4), fmt.Sprintf("m%d", i%6))
		g.CanUpcycle(id, fmt.Sprintf("u%d", i%5))
	}

	_, err := newTestEngine(g, nil).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, g.Matches)

	seen := map[[2]string]bool{}
	for _, m := range g.Matches {
		assert.Less(t, m.SourceID, m.TargetID)
		assert.NotEqual(t, industries[m.SourceID], industries[m.TargetID])
		assert.GreaterOrEqual(t, m.Props["score"].(float64), 0.12)
		assert.LessOrEqual(t, len(m.Props["shared_names"].([]string)), 5)

		pair := [2]string{m.SourceID, m.TargetID}
		assert.False(t, seen[pair], "duplicate pair %v", pair)
		seen[pair] = true
	}
}

func TestRun_Idempotent(t *testing.T) {
	g := scenarioGraph()
	e := newTestEngine(g, nil)

	_, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	first := persisted(g)

	report, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, persisted(g))
	assert.Equal(t, int64(2), report.Deleted)
	assert.Equal(t, "run-2", g.Matches[0].Props["run_id"])
}

func TestRun_WipesStalePairs(t *testing.T) {
	g := scenarioGraph()
	e := newTestEngine(g, nil)

	_, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, g.Matches, 2)

	g.RemoveMaterial("SlagA")

	report, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, g.Matches)
	assert.Equal(t, int64(2), report.Deleted)
	assert.Zero(t, report.Verified)
	assert.Zero(t, report.AvgScore)
}

func TestRun_PairWriteFailureIsSkipped(t *testing.T) {
	g := scenarioGraph()
	g.FailCreate = func(params map[string]interface{}) error {
		if params["source_id"] == "C1" {
			return errors.New("constraint violation")
		}
		return nil
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)

	report, err := newTestEngine(g, m).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []matchKey{{"C2", "C3", 0.333, 1}}, persisted(g))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Matches))
}

type deletingDriver struct {
	*drivertest.FakeGraph
	deleteOnClear string
}

// Simulates a company disappearing between scoring and writing.
func (d *deletingDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	res, err := d.FakeGraph.ExecuteQuery(ctx, query, params)
	if query == driver.DeletePotentialMatchesQuery {
		d.FakeGraph.DeleteCompany(d.deleteOnClear)
	}
	return res, err
}

func TestRun_MissingEndpointIsSkipped(t *testing.T) {
	d := &deletingDriver{FakeGraph: scenarioGraph(), deleteOnClear: "C3"}

	report, err := newTestEngine(d, nil).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []matchKey{{"C1", "C2", 0.333, 1}}, persisted(d.FakeGraph))
}

func TestRun_ReadFailureAbortsBeforeMutation(t *testing.T) {
	g := scenarioGraph()
	g.Fail[driver.ListCompaniesQuery] = errors.New("connection refused")
	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)

	_, err := newTestEngine(g, m).Run(context.Background(), RunOptions{})
	require.ErrorContains(t, err, "connection refused")
	assert.NotContains(t, g.Queries, driver.DeletePotentialMatchesQuery)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))
}

func TestRun_DeleteFailureIsFatal(t *testing.T) {
	g := scenarioGraph()
	g.Fail[driver.DeletePotentialMatchesQuery] = errors.New("read-only replica")

	_, err := newTestEngine(g, nil).Run(context.Background(), RunOptions{})
	require.ErrorContains(t, err, "read-only replica")
	assert.NotContains(t, g.Queries, driver.CreatePotentialMatchQuery)
}

func TestRun_ZeroMatchesIsNotAnError(t *testing.T) {
	g := drivertest.New().
		AddCompany("C1", "A", "Steel").
		AddCompany("C2", "B", "Steel").
		Produces("C1", "x").
		Produces("C2", "x")

	report, err := newTestEngine(g, nil).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Retained)
	assert.Empty(t, report.Top)
	assert.Empty(t, g.Matches)
}

func TestRun_SameNamedMaterialNodesStayDistinct(t *testing.T) {
	g := drivertest.New().
		AddCompany("C1", "SteelCo", "Steel").
		AddCompany("C2", "ChemCo", "Chemicals").
		ProducesNode("C1", "4:db:1", "Fly Ash").
		ProducesNode("C1", "4:db:2", "Slag").
		ProducesNode("C2", "4:db:3", "Fly Ash").
		ProducesNode("C2", "4:db:2", "Slag")

	report, err := newTestEngine(g, nil).Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, report.Top, 1)
	assert.Equal(t, 0.333, report.Top[0].Score)
	assert.Equal(t, 1, report.Top[0].SharedMaterials)
	assert.Equal(t, []string{"Slag"}, report.Top[0].SharedNames)
}

func TestRun_DryRunDoesNotMutate(t *testing.T) {
	g := scenarioGraph()

	report, err := newTestEngine(g, nil).Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Retained)
	assert.Len(t, report.Top, 2)
	assert.Empty(t, g.Matches)
	assert.NotContains(t, g.Queries, driver.DeletePotentialMatchesQuery)
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

func TestRun_ConcurrentRunRejected(t *testing.T) {
	d := &blockingDriver{FakeGraph: scenarioGraph(), entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(d, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), RunOptions{})
		done <- err
	}()
	<-d.entered

	_, err := e.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(d.release)
	require.NoError(t, <-done)
	assert.Len(t, d.FakeGraph.Matches, 2)
}

func TestRun_LockHeldByAnotherProcess(t *testing.T) {
	g := scenarioGraph()
	e := newTestEngine(g, nil)
	e.LockFile = filepath.Join(t.TempDir(), "discovery.lock")

	other, err := AcquireFileLock(e.LockFile, DefaultLockStaleAfter)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Empty(t, g.Queries)

	report, err := e.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Retained)

	require.NoError(t, other.Release())
	_, err = e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, g.Matches, 2)

	_, statErr := os.Stat(e.LockFile)
	assert.True(t, os.IsNotExist(statErr), "lock file released after run")
}

func TestRun_TwoEnginesShareOneLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "discovery.lock")
	d := &blockingDriver{FakeGraph: scenarioGraph(), entered: make(chan struct{}), release: make(chan struct{})}
	first := newTestEngine(d, nil)
	first.LockFile = lockPath
	second := newTestEngine(scenarioGraph(), nil)
	second.LockFile = lockPath

	done := make(chan error, 1)
	go func() {
		_, err := first.Run(context.Background(), RunOptions{})
		done <- err
	}()
	<-d.entered

	_, err := second.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrLockHeld)

	close(d.release)
	require.NoError(t, <-done)
	_, err = second.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)
}
