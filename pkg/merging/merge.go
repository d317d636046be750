// Package merging fuses the per-image reflection observations of a
// serial diffraction experiment into one consensus intensity ranking.
// Individual images only order the reflections they happen to show, so
// the merge is a rank-aggregation problem instead of a numeric average:
// pairwise majorities between reflections are collected across images,
// seeded into a Borda order and locally Kemenized into the final table.
package merging

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"serialed/internal/models"
	"serialed/pkg/crystal"
)

// Options configures a merge.
type Options struct {
	// Group standardizes observation indices onto canonical
	// representatives before anything is compared.
	Group *crystal.SpaceGroup

	// TopImages keeps only the N best-scoring image sets; zero keeps
	// all of them. Ties fall back to image name, so the selection is
	// reproducible. Skipped images stay in storage, they just sit out
	// the merge.
	TopImages int

	// TopPerImage keeps only the N strongest observations of every
	// image; zero keeps all of them.
	TopPerImage int

	// MinImages drops reflections observed on fewer images.
	MinImages int

	// Expected is the number of symmetry-unique reflections the
	// resolution shell holds; it is the completeness denominator.
	// Zero leaves completeness unset.
	Expected int

	// KemenySweeps caps the adjacent-swap passes of the local
	// Kemenization; zero means one pass per table entry, which is
	// enough to fully sort any transitive majority relation.
	KemenySweeps int
}

// Entry is one merged reflection.
type Entry struct {
	H, K, L int

	// Rank is the 1-based consensus position, strongest first.
	Rank int

	// Proxy is the rank-derived amplitude stand-in, 100*(N-rank+1)/N,
	// and Sigma its confidence scaled by redundancy.
	Proxy float64
	Sigma float64

	// Redundancy counts the images that observed this reflection,
	// Pairs the pairwise rank comparisons it took part in across them.
	Redundancy int
	Pairs      int
}

// Stats summarizes a merge.
type Stats struct {
	// Images is the number of input sets, Used how many survived the
	// gates and contributed observations.
	Images int
	Used   int

	// Reflections is the merged table length; Expected the shell's
	// unique-reflection count and Completeness their percentage ratio.
	Reflections  int
	Expected     int
	Completeness float64

	MeanRedundancy float64

	// Tau is the mean Kendall rank correlation between each image's
	// observed intensity order and the consensus order, a
	// self-consistency measure in [-1, 1]. LowConfidence flags a weak
	// consensus, whether from disagreement or from too few
	// contributing images.
	Tau           float64
	LowConfidence bool
}

// lowTauThreshold flags merges whose images barely agree with the
// consensus they produced; lowImageFloor flags merges built from too
// few images for pairwise majorities to mean much.
const (
	lowTauThreshold = 0.3
	lowImageFloor   = 3
)

// Table is a merged reflection table.
type Table struct {
	Entries []Entry
	Stats   Stats
}

// trip keys a standardized reflection.
type trip struct{ h, k, l int }

// imageObs is one image's gated, standardized observation list.
type imageObs struct {
	image string
	// refs sorted by descending intensity; pos[t] is the 0-based rank.
	refs []trip
	inty map[trip]float64
	pos  map[trip]int
}

// Merge aggregates the image sets into a consensus table. The input
// slice is not modified; sets are processed in image-name order, so the
// result does not depend on how the caller happened to order them. With
// TopImages set, only the best-scoring sets enter the merge.
func Merge(sets []models.ImageSet, opt Options) (*Table, error) {
	if opt.Group == nil {
		return nil, fmt.Errorf("merging: no space group given")
	}
	if opt.MinImages < 1 {
		opt.MinImages = 1
	}

	ordered := make([]models.ImageSet, len(sets))
	copy(ordered, sets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Image < ordered[j].Image })

	if opt.TopImages > 0 && len(ordered) > opt.TopImages {
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })
		ordered = ordered[:opt.TopImages]
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Image < ordered[j].Image })
	}

	images := gateImages(ordered, opt)

	// Count appearances and comparison partners, collect the candidates.
	count := make(map[trip]int)
	pairs := make(map[trip]int)
	for _, im := range images {
		for _, t := range im.refs {
			count[t]++
			pairs[t] += len(im.refs) - 1
		}
	}
	var cands []trip
	for t, c := range count {
		if c >= opt.MinImages {
			cands = append(cands, t)
		}
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("merging: no reflection observed on at least %d image(s)", opt.MinImages)
	}

	order := bordaOrder(cands, images)
	wins := pairwiseWins(images)
	kemenize(order, wins, opt.KemenySweeps)

	t := &Table{Entries: make([]Entry, len(order))}
	n := len(order)
	for i, tr := range order {
		proxy := 100 * float64(n-i) / float64(n)
		t.Entries[i] = Entry{
			H: tr.h, K: tr.k, L: tr.l,
			Rank:       i + 1,
			Proxy:      proxy,
			Sigma:      proxy / math.Sqrt(float64(count[tr])),
			Redundancy: count[tr],
			Pairs:      pairs[tr],
		}
	}

	t.Stats = summarize(t, images, len(sets), opt)
	return t, nil
}

// gateImages standardizes, de-duplicates and trims each image's
// observations. Zero and negative intensities carry no ranking signal
// and are dropped; symmetry mates observed twice on one image keep
// their strongest sample.
func gateImages(sets []models.ImageSet, opt Options) []imageObs {
	var images []imageObs
	for _, set := range sets {
		inty := make(map[trip]float64)
		for _, ob := range set.Observations {
			if ob.Intensity <= 0 {
				continue
			}
			h, k, l := opt.Group.Standardize(ob.H, ob.K, ob.L)
			t := trip{h, k, l}
			if v, ok := inty[t]; !ok || ob.Intensity > v {
				inty[t] = ob.Intensity
			}
		}
		if len(inty) == 0 {
			continue
		}

		refs := make([]trip, 0, len(inty))
		for t := range inty {
			refs = append(refs, t)
		}
		// Strongest first; index ties cannot happen since refs are
		// unique, so break intensity ties lexicographically.
		sort.Slice(refs, func(i, j int) bool {
			a, b := refs[i], refs[j]
			if inty[a] != inty[b] {
				return inty[a] > inty[b]
			}
			if a.l != b.l {
				return a.l > b.l
			}
			if a.k != b.k {
				return a.k > b.k
			}
			return a.h > b.h
		})
		if opt.TopPerImage > 0 && len(refs) > opt.TopPerImage {
			for _, t := range refs[opt.TopPerImage:] {
				delete(inty, t)
			}
			refs = refs[:opt.TopPerImage]
		}

		pos := make(map[trip]int, len(refs))
		for i, t := range refs {
			pos[t] = i
		}
		images = append(images, imageObs{image: set.Image, refs: refs, inty: inty, pos: pos})
	}
	return images
}

// bordaOrder seeds the consensus with the mean normalized rank each
// reflection achieves on the images that saw it. Ties fall back to the
// canonical index order so the seed is deterministic.
func bordaOrder(cands []trip, images []imageObs) []trip {
	sum := make(map[trip]float64, len(cands))
	cnt := make(map[trip]int, len(cands))
	for _, im := range images {
		if len(im.refs) < 2 {
			// A single observation says nothing about relative rank
			// but still counts for redundancy elsewhere.
			continue
		}
		norm := float64(len(im.refs) - 1)
		for p, t := range im.refs {
			sum[t] += float64(p) / norm
			cnt[t]++
		}
	}

	mean := make(map[trip]float64, len(cands))
	for _, t := range cands {
		if c := cnt[t]; c > 0 {
			mean[t] = sum[t] / float64(c)
		} else {
			mean[t] = 0.5
		}
	}

	order := make([]trip, len(cands))
	copy(order, cands)
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if mean[a] != mean[b] {
			return mean[a] < mean[b]
		}
		if a.l != b.l {
			return a.l > b.l
		}
		if a.k != b.k {
			return a.k > b.k
		}
		return a.h > b.h
	})
	return order
}

// pairwiseWins tallies, for every reflection pair co-observed on an
// image, which one the image ranked stronger.
func pairwiseWins(images []imageObs) map[trip]map[trip]int {
	wins := make(map[trip]map[trip]int)
	add := func(a, b trip) {
		m := wins[a]
		if m == nil {
			m = make(map[trip]int)
			wins[a] = m
		}
		m[b]++
	}
	for _, im := range images {
		for i := 0; i < len(im.refs); i++ {
			for j := i + 1; j < len(im.refs); j++ {
				// refs are intensity-sorted, so i outranks j unless the
				// sampled intensities were exactly equal.
				a, b := im.refs[i], im.refs[j]
				if im.inty[a] > im.inty[b] {
					add(a, b)
				}
			}
		}
	}
	return wins
}

// kemenize runs bounded adjacent-swap passes over the order: whenever
// the majority of co-observing images prefers the lower neighbor above
// the upper one, the two swap. Every swap strictly increases pairwise
// agreement, so the loop cannot cycle; sweeps bound the worst case.
func kemenize(order []trip, wins map[trip]map[trip]int, sweeps int) {
	if sweeps <= 0 {
		sweeps = len(order)
	}
	for s := 0; s < sweeps; s++ {
		swapped := false
		for i := 1; i < len(order); i++ {
			a, b := order[i-1], order[i]
			if wins[b][a] > wins[a][b] {
				order[i-1], order[i] = b, a
				swapped = true
			}
		}
		if !swapped {
			return
		}
	}
}

// summarize computes the merge statistics, including the per-image
// Kendall tau against the consensus.
func summarize(t *Table, images []imageObs, totalSets int, opt Options) Stats {
	st := Stats{
		Images:      totalSets,
		Used:        len(images),
		Reflections: len(t.Entries),
		Expected:    opt.Expected,
	}
	if opt.Expected > 0 {
		st.Completeness = 100 * float64(len(t.Entries)) / float64(opt.Expected)
	}

	var redSum int
	consensus := make(map[trip]int, len(t.Entries))
	for _, e := range t.Entries {
		redSum += e.Redundancy
		consensus[trip{e.H, e.K, e.L}] = e.Rank
	}
	if len(t.Entries) > 0 {
		st.MeanRedundancy = float64(redSum) / float64(len(t.Entries))
	}

	var tauSum float64
	var tauN int
	for _, im := range images {
		var strength, inty []float64
		for _, tr := range im.refs {
			rank, ok := consensus[tr]
			if !ok {
				continue
			}
			// Strength grows as rank position shrinks, so agreement
			// with intensity comes out as positive correlation.
			strength = append(strength, float64(len(t.Entries)-rank))
			inty = append(inty, im.inty[tr])
		}
		if len(strength) < 2 {
			continue
		}
		tauSum += stat.Kendall(strength, inty, nil)
		tauN++
	}
	if tauN > 0 {
		st.Tau = tauSum / float64(tauN)
	}
	st.LowConfidence = st.Used < lowImageFloor || tauN == 0 || st.Tau < lowTauThreshold
	return st
}
