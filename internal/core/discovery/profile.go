package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core/model"
	"github.com/agenthands/symbiosis/internal/driver"
)

// Profile is a company's material profile: the distinct materials it
// produces or can upcycle, in traversal order.
type Profile struct {
	Company   model.Company
	Materials []string
	names     map[string]string
}

func (p *Profile) Size() int {
	return len(p.Materials)
}

func (p *Profile) Has(materialID string) bool {
	_, ok := p.names[materialID]
	return ok
}

func (p *Profile) Name(materialID string) string {
	return p.names[materialID]
}

func (p *Profile) add(materialID, name string) {
	if p.Has(materialID) {
		return
	}
	p.names[materialID] = name
	p.Materials = append(p.Materials, materialID)
}

// Snapshot is the set of profiles read in one run, sorted by company ID.
type Snapshot struct {
	Profiles []*Profile
	// Malformed companies or links dropped at the read boundary.
	Skipped int
}

// BuildSnapshot groups links into per-company profiles. Duplicate company IDs
// keep the first occurrence; links to unknown companies are dropped.
func BuildSnapshot(companies []model.Company, links []model.MaterialLink) *Snapshot {
	snap := &Snapshot{}
	byID := make(map[string]*Profile, len(companies))

	for _, c := range companies {
		if _, dup := byID[c.ID]; dup {
			snap.Skipped++
			continue
		}
		p := &Profile{Company: c, names: make(map[string]string)}
		byID[c.ID] = p
		snap.Profiles = append(snap.Profiles, p)
	}

	for _, l := range links {
		p, ok := byID[l.CompanyID]
		if !ok {
			snap.Skipped++
			continue
		}
		p.add(l.MaterialID, l.MaterialName)
	}

	sort.Slice(snap.Profiles, func(i, j int) bool {
		return snap.Profiles[i].Company.ID < snap.Profiles[j].Company.ID
	})
	return snap
}

// Extractor reads companies and their PRODUCES/CAN_UPCYCLE edges. It never writes.
type Extractor struct {
	Driver driver.GraphDriver
	log    *zap.Logger
}

func NewExtractor(d driver.GraphDriver, log *zap.Logger) *Extractor {
	return &Extractor{Driver: d, log: log}
}

func (e *Extractor) Extract(ctx context.Context) (*Snapshot, error) {
	res, err := e.Driver.ExecuteQuery(ctx, driver.ListCompaniesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	skipped := 0
	companies := make([]model.Company, 0, len(res.Records))
	for _, rec := range res.Records {
		c, err := model.CompanyFromRecord(rec)
		if err != nil {
			e.log.Warn("skipping malformed company", zap.Error(err))
			skipped++
			continue
		}
		if !c.HasIndustry() {
			e.log.Debug("company has no industry, excluded from matching", zap.String("company_id", c.ID))
		}
		companies = append(companies, c)
	}

	res, err = e.Driver.ExecuteQuery(ctx, driver.ListMaterialLinksQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("list material links: %w", err)
	}

	links := make([]model.MaterialLink, 0, len(res.Records))
	for _, rec := range res.Records {
		l, err := model.MaterialLinkFromRecord(rec)
		if err != nil {
			e.log.Warn("skipping malformed material link", zap.Error(err))
			skipped++
			continue
		}
		links = append(links, l)
	}

	snap := BuildSnapshot(companies, links)
	snap.Skipped += skipped
	return snap, nil
}
