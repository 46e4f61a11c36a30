// Package drivertest provides an in-memory driver.GraphDriver that understands
// the Cypher constants in package driver.
package drivertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/symbiosis/internal/driver"
)

type link struct {
	companyID    string
	materialID   string
	materialName string
	rel          string
}

type Match struct {
	SourceID string
	TargetID string
	Props    map[string]interface{}
}

type FakeGraph struct {
	mu sync.Mutex

	companies []map[string]interface{}
	links     []link
	materials []map[string]interface{}
	seeking   map[string][]string

	Matches []Match
	Queries []string
	// Queries sent through ExecuteReadQuery, also recorded in Queries.
	ReadQueries []string
	// Params of the most recent query.
	LastParams map[string]interface{}

	// Errors returned for a given query constant.
	Fail map[string]error
	// Called before each CreatePotentialMatchQuery; a non-nil error fails that write.
	FailCreate func(params map[string]interface{}) error
	// Returned for queries the fake does not recognise.
	Default neo4j.EagerResult
	// Returned for SearchMaterialsByEmbeddingQuery.
	VectorHits []map[string]interface{}
}

func New() *FakeGraph {
	return &FakeGraph{Fail: make(map[string]error), seeking: make(map[string][]string)}
}

// AddCompany adds a company; an empty industry is stored as a missing property.
func (g *FakeGraph) AddCompany(id, name, industry string) *FakeGraph {
	props := map[string]interface{}{"id": id, "name": name, "location": name + " City"}
	if industry != "" {
		props["industry"] = industry
	}
	return g.AddCompanyProps(props)
}

func (g *FakeGraph) AddCompanyProps(props map[string]interface{}) *FakeGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.companies = append(g.companies, props)
	return g
}

func (g *FakeGraph) DeleteCompany(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.companies[:0]
	for _, c := range g.companies {
		if c["id"] != id {
			kept = append(kept, c)
		}
	}
	g.companies = kept
	var keptMatches []Match
	for _, m := range g.Matches {
		if m.SourceID != id && m.TargetID != id {
			keptMatches = append(keptMatches, m)
		}
	}
	g.Matches = keptMatches
}

// Produces links a company to materials; material IDs double as names.
func (g *FakeGraph) Produces(companyID string, materials ...string) *FakeGraph {
	return g.addLinks("PRODUCES", companyID, materials)
}

func (g *FakeGraph) CanUpcycle(companyID string, materials ...string) *FakeGraph {
	return g.addLinks("CAN_UPCYCLE", companyID, materials)
}

func (g *FakeGraph) addLinks(rel, companyID string, materials []string) *FakeGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range materials {
		g.links = append(g.links, link{companyID: companyID, materialID: m, materialName: m, rel: rel})
	}
	return g
}

// ProducesNode links companyID to a material node identified by elementID
// and displayed as name, for graphs where several nodes share a name.
func (g *FakeGraph) ProducesNode(companyID, elementID, name string) *FakeGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links = append(g.links, link{companyID: companyID, materialID: elementID, materialName: name, rel: "PRODUCES"})
	return g
}

// RemoveMaterial deletes a material node and every edge to it.
func (g *FakeGraph) RemoveMaterial(materialID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.links[:0]
	for _, l := range g.links {
		if l.materialID != materialID {
			kept = append(kept, l)
		}
	}
	g.links = kept
}

func (g *FakeGraph) AddMaterial(props map[string]interface{}) *FakeGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.materials = append(g.materials, props)
	return g
}

func (g *FakeGraph) Seeking(companyID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seeking[companyID]...)
}

func (g *FakeGraph) BuildIndices(ctx context.Context) error { return nil }

func (g *FakeGraph) Close(ctx context.Context) error { return nil }

func (g *FakeGraph) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.execute(ctx, query, params)
}

func (g *FakeGraph) ExecuteReadQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReadQueries = append(g.ReadQueries, query)
	return g.execute(ctx, query, params)
}

func (g *FakeGraph) execute(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	g.Queries = append(g.Queries, query)
	g.LastParams = params
	if err := ctx.Err(); err != nil {
		return neo4j.EagerResult{}, err
	}
	if err := g.Fail[query]; err != nil {
		return neo4j.EagerResult{}, err
	}

	switch query {
	case driver.ListCompaniesQuery:
		return g.listCompanies(), nil
	case driver.ListMaterialLinksQuery:
		return g.listLinks(), nil
	case driver.DeletePotentialMatchesQuery:
		n := int64(len(g.Matches))
		g.Matches = nil
		return result([]string{"deleted"}, []interface{}{n}), nil
	case driver.CreatePotentialMatchQuery:
		return g.createMatch(params)
	case driver.PotentialMatchStatsQuery:
		return g.stats(), nil
	case driver.TopPotentialMatchesQuery:
		return g.topMatches(params), nil
	case driver.ListPotentialMatchEdgesQuery:
		return g.matchEdges(), nil
	case driver.SearchMaterialsByEmbeddingQuery:
		return g.vectorSearch(), nil
	case driver.SearchMaterialsByTextQuery:
		return g.textSearch(params), nil
	case driver.CaptureDemandQuery:
		return g.captureDemand(params), nil
	}
	return g.Default, nil
}

func result(keys []string, rows ...[]interface{}) neo4j.EagerResult {
	res := neo4j.EagerResult{Keys: keys}
	for _, values := range rows {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: values})
	}
	return res
}

func (g *FakeGraph) company(id string) map[string]interface{} {
	for _, c := range g.companies {
		if c["id"] == id {
			return c
		}
	}
	return nil
}

func (g *FakeGraph) listCompanies() neo4j.EagerResult {
	keys := []string{"id", "name", "industry", "location", "latitude", "longitude", "carbon_rating", "capacity"}
	rows := make([][]interface{}, 0, len(g.companies))
	for _, c := range g.companies {
		row := make([]interface{}, len(keys))
		for i, k := range keys {
			row[i] = c[k]
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return fmt.Sprint(rows[i][0]) < fmt.Sprint(rows[j][0])
	})
	return result(keys, rows...)
}

func (g *FakeGraph) listLinks() neo4j.EagerResult {
	seen := make(map[[2]string]bool)
	var ls []link
	for _, l := range g.links {
		key := [2]string{l.companyID, l.materialID}
		if seen[key] || g.company(l.companyID) == nil {
			continue
		}
		seen[key] = true
		ls = append(ls, l)
	}
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].companyID != ls[j].companyID {
			return ls[i].companyID < ls[j].companyID
		}
		if ls[i].materialName != ls[j].materialName {
			return ls[i].materialName < ls[j].materialName
		}
		return ls[i].materialID < ls[j].materialID
	})
	rows := make([][]interface{}, 0, len(ls))
	for _, l := range ls {
		rows = append(rows, []interface{}{l.companyID, l.materialID, l.materialName})
	}
	return result([]string{"company_id", "material_id", "material_name"}, rows...)
}

func (g *FakeGraph) createMatch(params map[string]interface{}) (neo4j.EagerResult, error) {
	if g.FailCreate != nil {
		if err := g.FailCreate(params); err != nil {
			return neo4j.EagerResult{}, err
		}
	}
	src, _ := params["source_id"].(string)
	dst, _ := params["target_id"].(string)
	if g.company(src) == nil || g.company(dst) == nil {
		return result([]string{"created"}, []interface{}{int64(0)}), nil
	}
	props := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k != "source_id" && k != "target_id" {
			props[k] = v
		}
	}
	g.Matches = append(g.Matches, Match{SourceID: src, TargetID: dst, Props: props})
	return result([]string{"created"}, []interface{}{int64(1)}), nil
}

func (g *FakeGraph) stats() neo4j.EagerResult {
	if len(g.Matches) == 0 {
		return result([]string{"total", "avg_score"}, []interface{}{int64(0), nil})
	}
	var sum float64
	for _, m := range g.Matches {
		sum += m.Props["score"].(float64)
	}
	return result([]string{"total", "avg_score"}, []interface{}{int64(len(g.Matches)), sum / float64(len(g.Matches))})
}

func (g *FakeGraph) sortedMatches() []Match {
	ms := append([]Match(nil), g.Matches...)
	sort.SliceStable(ms, func(i, j int) bool {
		si, sj := ms[i].Props["score"].(float64), ms[j].Props["score"].(float64)
		if si != sj {
			return si > sj
		}
		if ms[i].SourceID != ms[j].SourceID {
			return ms[i].SourceID < ms[j].SourceID
		}
		return ms[i].TargetID < ms[j].TargetID
	})
	return ms
}

func (g *FakeGraph) topMatches(params map[string]interface{}) neo4j.EagerResult {
	keys := []string{"source_id", "source_name", "source_industry", "source_location",
		"target_id", "target_name", "target_industry", "target_location",
		"score", "shared_materials", "shared_names", "computed_at"}
	limit := len(g.Matches)
	switch l := params["limit"].(type) {
	case int:
		limit = l
	case int64:
		limit = int(l)
	}
	var rows [][]interface{}
	for _, m := range g.sortedMatches() {
		if len(rows) >= limit {
			break
		}
		a, b := g.company(m.SourceID), g.company(m.TargetID)
		names := make([]interface{}, 0)
		if ns, ok := m.Props["shared_names"].([]string); ok {
			for _, n := range ns {
				names = append(names, n)
			}
		}
		rows = append(rows, []interface{}{
			a["id"], a["name"], a["industry"], a["location"],
			b["id"], b["name"], b["industry"], b["location"],
			m.Props["score"], m.Props["shared_materials"], names, m.Props["computed_at"],
		})
	}
	return result(keys, rows...)
}

func (g *FakeGraph) matchEdges() neo4j.EagerResult {
	keys := []string{"source_id", "source_name", "target_id", "target_name", "score"}
	var rows [][]interface{}
	for _, m := range g.Matches {
		a, b := g.company(m.SourceID), g.company(m.TargetID)
		rows = append(rows, []interface{}{m.SourceID, a["name"], m.TargetID, b["name"], m.Props["score"]})
	}
	return result(keys, rows...)
}

var materialKeys = []string{"id", "name", "category", "description", "status", "score"}

func materialRow(m map[string]interface{}, score float64) []interface{} {
	return []interface{}{m["id"], m["name"], m["category"], m["description"], m["status"], score}
}

func (g *FakeGraph) vectorSearch() neo4j.EagerResult {
	var rows [][]interface{}
	for _, h := range g.VectorHits {
		score, _ := h["score"].(float64)
		rows = append(rows, materialRow(h, score))
	}
	return result(materialKeys, rows...)
}

func (g *FakeGraph) textSearch(params map[string]interface{}) neo4j.EagerResult {
	q := strings.ToLower(fmt.Sprint(params["query"]))
	var rows [][]interface{}
	for _, m := range g.materials {
		if m["status"] == "requested" {
			continue
		}
		hay := strings.ToLower(fmt.Sprint(m["name"], " ", m["description"], " ", m["category"]))
		if strings.Contains(hay, q) {
			rows = append(rows, materialRow(m, 0.0))
		}
	}
	return result(materialKeys, rows...)
}

func (g *FakeGraph) captureDemand(params map[string]interface{}) neo4j.EagerResult {
	companyID, _ := params["company_id"].(string)
	name, _ := params["name"].(string)
	if g.company(companyID) == nil {
		return result([]string{"id", "name", "status"})
	}
	var mat map[string]interface{}
	for _, m := range g.materials {
		if m["name"] == name {
			mat = m
		}
	}
	if mat == nil {
		mat = map[string]interface{}{"id": params["material_id"], "name": name, "status": "requested"}
		g.materials = append(g.materials, mat)
	}
	for _, s := range g.seeking[companyID] {
		if s == name {
			return result([]string{"id", "name", "status"}, []interface{}{mat["id"], mat["name"], mat["status"]})
		}
	}
	g.seeking[companyID] = append(g.seeking[companyID], name)
	return result([]string{"id", "name", "status"}, []interface{}{mat["id"], mat["name"], mat["status"]})
}
