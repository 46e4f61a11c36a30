package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

var ErrMissingField = errors.New("missing required field")

// CompanyFromRecord builds a Company from a row of ListCompaniesQuery.
// Only id is required; a missing industry is left empty.
func CompanyFromRecord(rec *neo4j.Record) (Company, error) {
	id, ok := stringValue(rec, "id")
	if !ok || id == "" {
		return Company{}, fmt.Errorf("company: id: %w", ErrMissingField)
	}
	c := Company{ID: id}
	c.Name, _ = stringValue(rec, "name")
	if c.Name == "" {
		c.Name = id
	}
	industry, _ := stringValue(rec, "industry")
	c.Industry = strings.TrimSpace(industry)
	c.Location, _ = stringValue(rec, "location")
	if v, ok := floatValue(rec, "latitude"); ok {
		c.Latitude = &v
	}
	if v, ok := floatValue(rec, "longitude"); ok {
		c.Longitude = &v
	}
	if v, ok := rec.Get("carbon_rating"); ok && v != nil {
		c.CarbonRating = fmt.Sprint(v)
	}
	if v, ok := floatValue(rec, "capacity"); ok {
		c.Capacity = int64(v)
	}
	return c, nil
}

// MaterialLinkFromRecord builds a MaterialLink from a row of ListMaterialLinksQuery.
func MaterialLinkFromRecord(rec *neo4j.Record) (MaterialLink, error) {
	companyID, ok := stringValue(rec, "company_id")
	if !ok || companyID == "" {
		return MaterialLink{}, fmt.Errorf("material link: company_id: %w", ErrMissingField)
	}
	materialID, _ := stringValue(rec, "material_id")
	name, _ := stringValue(rec, "material_name")
	if materialID == "" {
		materialID = name
	}
	if materialID == "" {
		return MaterialLink{}, fmt.Errorf("material link from %s: material_id: %w", companyID, ErrMissingField)
	}
	if name == "" {
		name = materialID
	}
	return MaterialLink{CompanyID: companyID, MaterialID: materialID, MaterialName: name}, nil
}

// MatchViewFromRecord builds a MatchView from a row of TopPotentialMatchesQuery.
func MatchViewFromRecord(rec *neo4j.Record) (MatchView, error) {
	var m MatchView
	var ok bool
	if m.Source.ID, ok = stringValue(rec, "source_id"); !ok {
		return MatchView{}, fmt.Errorf("match: source_id: %w", ErrMissingField)
	}
	if m.Target.ID, ok = stringValue(rec, "target_id"); !ok {
		return MatchView{}, fmt.Errorf("match: target_id: %w", ErrMissingField)
	}
	m.Source.Name, _ = stringValue(rec, "source_name")
	m.Source.Industry, _ = stringValue(rec, "source_industry")
	m.Source.Location, _ = stringValue(rec, "source_location")
	m.Target.Name, _ = stringValue(rec, "target_name")
	m.Target.Industry, _ = stringValue(rec, "target_industry")
	m.Target.Location, _ = stringValue(rec, "target_location")
	m.Score, _ = floatValue(rec, "score")
	if v, ok := floatValue(rec, "shared_materials"); ok {
		m.SharedMaterials = int(v)
	}
	m.SharedNames = stringsValue(rec, "shared_names")
	if t, ok := timeValue(rec, "computed_at"); ok {
		m.ComputedAt = &t
	}
	return m, nil
}

func stringValue(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatValue(rec *neo4j.Record, key string) (float64, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func stringsValue(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeValue(rec *neo4j.Record, key string) (time.Time, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case dbtype.LocalDateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// MatchEdgeFromRecord builds a MatchEdge from a row of ListPotentialMatchEdgesQuery.
func MatchEdgeFromRecord(rec *neo4j.Record) (MatchEdge, error) {
	var e MatchEdge
	var ok bool
	if e.Source.ID, ok = stringValue(rec, "source_id"); !ok {
		return MatchEdge{}, fmt.Errorf("match edge: source_id: %w", ErrMissingField)
	}
	if e.Target.ID, ok = stringValue(rec, "target_id"); !ok {
		return MatchEdge{}, fmt.Errorf("match edge: target_id: %w", ErrMissingField)
	}
	e.Source.Name, _ = stringValue(rec, "source_name")
	e.Target.Name, _ = stringValue(rec, "target_name")
	e.Score, _ = floatValue(rec, "score")
	return e, nil
}

// MaterialHitFromRecord builds a MaterialHit from a material search row.
func MaterialHitFromRecord(rec *neo4j.Record) (MaterialHit, error) {
	var h MaterialHit
	h.Name, _ = stringValue(rec, "name")
	if h.Name == "" {
		return MaterialHit{}, fmt.Errorf("material: name: %w", ErrMissingField)
	}
	h.ID, _ = stringValue(rec, "id")
	if h.ID == "" {
		h.ID = h.Name
	}
	h.Category, _ = stringValue(rec, "category")
	h.Description, _ = stringValue(rec, "description")
	h.Status, _ = stringValue(rec, "status")
	if h.Status == "" {
		h.Status = MaterialAvailable
	}
	h.Score, _ = floatValue(rec, "score")
	return h, nil
}
