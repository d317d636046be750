// Package batch drives the indexing of a whole image series through a
// worker pool. Images are independent, so the pool fans them out to the
// configured number of goroutines, collects per-image outcomes and
// supports cooperative cancellation that keeps everything already
// finished.
package batch

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"serialed/internal/models"
	"serialed/pkg/indexing"
	"serialed/pkg/pattern"
)

// Engine is the per-image solver the runner drives. The multi-phase
// indexer satisfies it directly; single-phase work just wraps one
// indexer in a MultiIndexer.
type Engine interface {
	Index(pat *pattern.Pattern) ([]indexing.Result, error)
	Refine(pat *pattern.Pattern, res indexing.Result, opt indexing.RefineOptions) (indexing.Result, error)
	ExtractIntensities(pat *pattern.Pattern, res indexing.Result, radius int) ([]models.Observation, error)
}

// Options configures a batch run.
type Options struct {
	// Workers sizes the pool; zero or negative means one per CPU.
	Workers int

	// Refine re-optimizes every candidate solution of an image before
	// the best one is kept.
	Refine        bool
	RefineOptions indexing.RefineOptions

	// ExtractRadius is the disk radius used when reflection
	// intensities are read off an indexed image.
	ExtractRadius int

	// OnProgress, when set, is called after every finished image from
	// the collecting goroutine.
	OnProgress func(done, total int)
}

// Failure records one image that produced no solution.
type Failure struct {
	Image string
	Err   error
}

// Summary is the outcome of a batch: the best solution and the
// extracted observations per indexed image, the images that stayed
// unindexed, and whether the run was cut short. All slices are sorted
// by image name, so a summary is reproducible for a given input no
// matter how many workers ran.
type Summary struct {
	Results      []indexing.Result
	Observations []models.ImageSet
	Unindexed    []Failure
	Interrupted  bool
}

// outcome carries one image's processing result to the collector.
type outcome struct {
	image string
	res   indexing.Result
	obs   []models.Observation
	err   error
}

// Run indexes every pattern through the engine. Cancelling the context
// stops dispatching new images; workers finish what they hold and the
// summary comes back with Interrupted set and all completed work
// intact.
func Run(ctx context.Context, eng Engine, pats []*pattern.Pattern, opt Options) *Summary {
	sum := &Summary{}
	if len(pats) == 0 {
		return sum
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pats) {
		workers = len(pats)
	}

	jobs := make(chan *pattern.Pattern)
	outs := make(chan outcome)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for pat := range jobs {
				outs <- processImage(eng, pat, opt)
			}
		}()
	}

	// The dispatcher alone writes interrupted; the channel-close chain
	// below orders that write before the collector's read.
	interrupted := false
	go func() {
		defer close(jobs)
		for _, p := range pats {
			select {
			case <-ctx.Done():
				interrupted = true
				return
			case jobs <- p:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outs)
	}()

	done := 0
	for out := range outs {
		if out.err != nil {
			sum.Unindexed = append(sum.Unindexed, Failure{Image: out.image, Err: out.err})
		} else {
			sum.Results = append(sum.Results, out.res)
			sum.Observations = append(sum.Observations, models.ImageSet{
				Image:        out.image,
				Phase:        out.res.Phase,
				Score:        out.res.Score,
				Observations: out.obs,
			})
		}
		done++
		if opt.OnProgress != nil {
			opt.OnProgress(done, len(pats))
		}
	}
	sum.Interrupted = interrupted

	sort.Slice(sum.Results, func(i, j int) bool { return sum.Results[i].Image < sum.Results[j].Image })
	sort.Slice(sum.Observations, func(i, j int) bool { return sum.Observations[i].Image < sum.Observations[j].Image })
	sort.Slice(sum.Unindexed, func(i, j int) bool { return sum.Unindexed[i].Image < sum.Unindexed[j].Image })
	return sum
}

// processImage runs the full per-image pipeline: orientation search,
// optional refinement of every candidate, and intensity extraction for
// the winner.
func processImage(eng Engine, pat *pattern.Pattern, opt Options) outcome {
	results, err := eng.Index(pat)
	if err != nil {
		return outcome{image: pat.Name, err: err}
	}

	if opt.Refine {
		refined := make([]indexing.Result, 0, len(results))
		for _, r := range results {
			rr, rerr := eng.Refine(pat, r, opt.RefineOptions)
			if rerr != nil {
				return outcome{image: pat.Name, err: rerr}
			}
			refined = append(refined, rr)
		}
		sort.SliceStable(refined, func(i, j int) bool { return refined[i].Score > refined[j].Score })
		results = refined
	}

	best := results[0]
	obs, err := eng.ExtractIntensities(pat, best, opt.ExtractRadius)
	if err != nil {
		return outcome{image: pat.Name, err: err}
	}
	return outcome{image: pat.Name, res: best, obs: obs}
}
