package indexing

import (
	"errors"
	"fmt"
	"sort"

	"serialed/internal/models"
	"serialed/pkg/pattern"
)

// volumeNorm is the reference cell volume for cross-phase score
// scaling. Scores are comparable within one library but not across
// cells of different reciprocal density, so multi-phase rankings
// multiply each score by volume/volumeNorm before mixing them.
const volumeNorm = 5000.0

// MultiIndexer searches several candidate phases over the same image
// and merges their solutions into a single volume-normalized ranking.
type MultiIndexer struct {
	indexers []*Indexer
	byPhase  map[string]*Indexer

	// NSolutions caps the merged ranking.
	NSolutions int
}

// NewMultiIndexer combines per-phase indexers. Phase names must be
// unique since results are routed back by name.
func NewMultiIndexer(indexers []*Indexer, nsolutions int) (*MultiIndexer, error) {
	if len(indexers) == 0 {
		return nil, fmt.Errorf("indexing: multi-phase search needs at least one indexer")
	}
	if nsolutions <= 0 {
		nsolutions = 20
	}
	m := &MultiIndexer{
		indexers:   indexers,
		byPhase:    make(map[string]*Indexer, len(indexers)),
		NSolutions: nsolutions,
	}
	for _, ix := range indexers {
		name := ix.Phase()
		if _, dup := m.byPhase[name]; dup {
			return nil, fmt.Errorf("indexing: duplicate phase name %q", name)
		}
		m.byPhase[name] = ix
	}
	return m, nil
}

// Indexers exposes the per-phase indexers in configuration order.
func (m *MultiIndexer) Indexers() []*Indexer {
	return m.indexers
}

// normalize rescales a raw score for cross-phase comparison.
func (m *MultiIndexer) normalize(ix *Indexer, score float64) float64 {
	return score * ix.lib.Cell.Volume() / volumeNorm
}

// Index runs every phase over the image and interleaves the solutions
// by normalized score. The image counts as unindexed only when every
// phase fails.
func (m *MultiIndexer) Index(pat *pattern.Pattern) ([]Result, error) {
	var merged []Result
	for _, ix := range m.indexers {
		results, err := ix.Index(pat)
		if err != nil {
			if errors.Is(err, ErrUnindexed) {
				continue
			}
			return nil, err
		}
		for _, r := range results {
			r.Score = m.normalize(ix, r.Score)
			merged = append(merged, r)
		}
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: image %q matched no phase", ErrUnindexed, pat.Name)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > m.NSolutions {
		merged = merged[:m.NSolutions]
	}
	return merged, nil
}

// Refine routes the solution to its phase's indexer and re-normalizes
// the refined score.
func (m *MultiIndexer) Refine(pat *pattern.Pattern, res Result, opt RefineOptions) (Result, error) {
	ix, ok := m.byPhase[res.Phase]
	if !ok {
		return res, fmt.Errorf("indexing: unknown phase %q", res.Phase)
	}
	// Undo the normalization so the refiner compares raw scores.
	raw := res
	raw.Score = res.Score * volumeNorm / ix.lib.Cell.Volume()
	refined := ix.Refine(pat, raw, opt)
	refined.Score = m.normalize(ix, refined.Score)
	return refined, nil
}

// ExtractIntensities routes extraction to the solution's phase.
func (m *MultiIndexer) ExtractIntensities(pat *pattern.Pattern, res Result, radius int) ([]models.Observation, error) {
	ix, ok := m.byPhase[res.Phase]
	if !ok {
		return nil, fmt.Errorf("indexing: unknown phase %q", res.Phase)
	}
	return ix.ExtractIntensities(pat, res, radius), nil
}
