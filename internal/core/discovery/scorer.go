package discovery

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/symbiosis/internal/core/model"
)

const (
	DefaultThreshold  = 0.12
	DefaultSampleSize = 5
	// Upper bound on shared material names stored per match.
	MaxSampleSize = 5
)

// clampSampleSize maps n onto [1, MaxSampleSize], using DefaultSampleSize
// when n is not positive.
func clampSampleSize(n int) int {
	if n <= 0 {
		return DefaultSampleSize
	}
	if n > MaxSampleSize {
		return MaxSampleSize
	}
	return n
}

// Scorer computes Jaccard similarity between material profiles of companies
// in different industries.
type Scorer struct {
	Threshold  float64
	SampleSize int
	Workers    int
}

func NewScorer(threshold float64, sampleSize, workers int) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	sampleSize = clampSampleSize(sampleSize)
	if workers <= 0 {
		workers = 1
	}
	return &Scorer{Threshold: threshold, SampleSize: sampleSize, Workers: workers}
}

// ScoreResult holds the retained pairs ordered by score descending.
type ScoreResult struct {
	// Cross-industry pairs sharing at least one material.
	Candidates int
	Pairs      []model.ScoredPair
}

// Jaccard returns |A∩B| / |A∪B| given the intersection and both set sizes.
// ok is false when the union is empty.
func Jaccard(shared, sizeA, sizeB int) (float64, bool) {
	union := sizeA + sizeB - shared
	if union <= 0 {
		return 0, false
	}
	return float64(shared) / float64(union), true
}

// RoundScore rounds to 3 decimal places.
func RoundScore(f float64) float64 {
	return math.Round(f*1000) / 1000
}

type rowResult struct {
	candidates int
	pairs      []model.ScoredPair
}

// Score evaluates every unordered pair of profiles that co-occur in at least
// one material's company list. Each pair is emitted once, lower company ID first.
func (s *Scorer) Score(ctx context.Context, snap *Snapshot) (*ScoreResult, error) {
	profiles := snap.Profiles

	// material -> indexes into profiles, ascending
	index := make(map[string][]int)
	for i, p := range profiles {
		if !p.Company.HasIndustry() {
			continue
		}
		for _, m := range p.Materials {
			index[m] = append(index[m], i)
		}
	}

	rows := make([]rowResult, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)

	for i := range profiles {
		if !profiles[i].Company.HasIndustry() || profiles[i].Size() == 0 {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = s.scoreRow(profiles, index, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScoreResult{}
	for _, r := range rows {
		result.Candidates += r.candidates
		result.Pairs = append(result.Pairs, r.pairs...)
	}
	sort.SliceStable(result.Pairs, func(i, j int) bool {
		a, b := result.Pairs[i], result.Pairs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.TargetID < b.TargetID
	})
	return result, nil
}

// scoreRow scores profile i against every later profile it shares a material with.
func (s *Scorer) scoreRow(profiles []*Profile, index map[string][]int, i int) rowResult {
	a := profiles[i]
	shared := make(map[int]int)
	for _, m := range a.Materials {
		for _, j := range index[m] {
			if j > i {
				shared[j]++
			}
		}
	}

	targets := make([]int, 0, len(shared))
	for j := range shared {
		targets = append(targets, j)
	}
	sort.Ints(targets)

	var out rowResult
	for _, j := range targets {
		b := profiles[j]
		if !model.CrossIndustry(a.Company, b.Company) {
			continue
		}
		out.candidates++

		raw, ok := Jaccard(shared[j], a.Size(), b.Size())
		if !ok {
			continue
		}
		score := RoundScore(raw)
		if raw < s.Threshold || score < s.Threshold {
			continue
		}
		out.pairs = append(out.pairs, model.ScoredPair{
			SourceID:        a.Company.ID,
			SourceName:      a.Company.Name,
			SourceIndustry:  a.Company.Industry,
			TargetID:        b.Company.ID,
			TargetName:      b.Company.Name,
			TargetIndustry:  b.Company.Industry,
			SharedMaterials: shared[j],
			Score:           score,
			SharedNames:     s.sharedNames(a, b),
		})
	}
	return out
}

func (s *Scorer) sharedNames(a, b *Profile) []string {
	limit := clampSampleSize(s.SampleSize)
	names := make([]string, 0, limit)
	for _, m := range a.Materials {
		if len(names) == limit {
			break
		}
		if b.Has(m) {
			names = append(names, a.Name(m))
		}
	}
	return names
}
