package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"serialed/internal/models"
	"serialed/internal/observability"
	"serialed/pkg/batch"
	"serialed/pkg/config"
	"serialed/pkg/crystal"
	"serialed/pkg/indexing"
	"serialed/pkg/pattern"
	"serialed/pkg/projection"
	"serialed/pkg/results"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "serialed.yaml", "Configuration file (YAML)")
	imagesDir := flag.String("images", "", "Directory containing diffraction images (TIFF)")
	resultsPath := flag.String("results", "results.csv", "Output file for indexing results")
	obsPath := flag.String("observations", "observations.csv", "Output file for extracted observations")
	dbPath := flag.String("db", "", "Optional SQLite database for resumable runs")
	resume := flag.Bool("resume", false, "Skip images already present in the database")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	logLevel := flag.String("loglevel", "", "Log level override: debug, info, warn or error")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to the given path and exit")
	selftest := flag.Bool("selftest", false, "Index a synthetic pattern per phase and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	observability.InitLogger("serialed", *logLevel)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *logLevel == "" {
		observability.InitLogger("serialed", cfg.Runtime.LogLevel)
	}
	if *numCores > 0 {
		cfg.Runtime.NumCores = *numCores
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build indexing engine")
	}

	if *selftest {
		if err := runSelftest(engine, cfg); err != nil {
			log.Fatal().Err(err).Msg("selftest failed")
		}
		log.Info().Msg("selftest passed")
		return
	}

	if *imagesDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Stop dispatching new images on Ctrl-C; in-flight work still lands.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pats, skipped, err := pattern.LoadDir(*imagesDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *imagesDir).Msg("failed to load images")
	}
	for _, serr := range skipped {
		log.Warn().Err(serr).Msg("skipping unreadable image")
	}
	if len(pats) == 0 {
		log.Fatal().Str("dir", *imagesDir).Msg("no readable images found")
	}
	log.Info().Int("images", len(pats)).Str("dir", *imagesDir).Msg("images loaded")

	var store *results.Store
	if *dbPath != "" {
		store, err = results.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		defer store.Close()
		if err := store.SaveConfig(cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to record configuration")
		}
		if *resume {
			pats, err = filterDone(store, pats)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to check processed images")
			}
		}
	} else if *resume {
		log.Fatal().Msg("-resume requires -db")
	}

	opt := batch.Options{
		Workers:       cfg.Runtime.NumCores,
		Refine:        cfg.Refinement.Enabled,
		RefineOptions: refineOptions(cfg),
		ExtractRadius: cfg.Indexing.ExtractRadius,
		OnProgress: func(done, total int) {
			log.Debug().Int("done", done).Int("total", total).Msg("progress")
		},
	}

	start := time.Now()
	sum := batch.Run(ctx, engine, pats, opt)
	elapsed := time.Since(start)

	for _, f := range sum.Unindexed {
		log.Warn().Str("image", f.Image).Err(f.Err).Msg("image not indexed")
	}

	if store != nil {
		obsByImage := make(map[string][]models.Observation, len(sum.Observations))
		for _, set := range sum.Observations {
			obsByImage[set.Image] = set.Observations
		}
		for _, r := range sum.Results {
			if err := store.SaveImage(r, obsByImage[r.Image]); err != nil {
				log.Fatal().Err(err).Msg("failed to save result")
			}
		}
		for _, f := range sum.Unindexed {
			if err := store.SaveFailure(f.Image, f.Err.Error()); err != nil {
				log.Fatal().Err(err).Msg("failed to save failure")
			}
		}
	}

	// A resumed run exports everything accumulated so far, not just this
	// session's share.
	rs, sets := sum.Results, sum.Observations
	if store != nil && *resume {
		if rs, err = store.Results(); err != nil {
			log.Fatal().Err(err).Msg("failed to read stored results")
		}
		if sets, err = store.Observations(); err != nil {
			log.Fatal().Err(err).Msg("failed to read stored observations")
		}
	}
	if err := results.SaveResults(*resultsPath, cfg, rs); err != nil {
		log.Fatal().Err(err).Msg("failed to write results")
	}
	if err := results.SaveObservations(*obsPath, cfg, sets); err != nil {
		log.Fatal().Err(err).Msg("failed to write observations")
	}

	log.Info().
		Int("indexed", len(rs)).
		Int("unindexed", len(sum.Unindexed)).
		Bool("interrupted", sum.Interrupted).
		Dur("elapsed", elapsed).
		Str("results", *resultsPath).
		Str("observations", *obsPath).
		Msg("run finished")
	if sum.Interrupted {
		log.Warn().Msg("run was interrupted; restart with -db and -resume to continue")
	}
}

// buildEngine turns the configured cells into per-phase orientation
// libraries and wraps them into one multi-phase indexer.
func buildEngine(cfg *config.Config) (*indexing.MultiIndexer, error) {
	params := projection.Params{
		Dmin:        cfg.Projections.Dmin,
		Dmax:        cfg.Projections.Dmax,
		Thickness:   cfg.Projections.Thickness,
		Wavelength:  cfg.Projections.Wavelength,
		AngularStep: cfg.Projections.AngularStep,
		Workers:     cfg.Runtime.NumCores,
	}

	indexers := make([]*indexing.Indexer, 0, len(cfg.Cells))
	for _, cell := range cfg.Cells {
		group, err := crystal.ParseSpaceGroup(cell.SpaceGroup)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		lib, err := projection.Build(cell.Unit(), group, params)
		if err != nil {
			return nil, fmt.Errorf("building library for %s: %w", cell.Name, err)
		}
		log.Info().
			Str("phase", cell.Name).
			Str("spaceGroup", group.Symbol).
			Int("reflections", lib.NReflections).
			Int("unique", lib.NUnique).
			Int("orientations", len(lib.Axes)).
			Dur("elapsed", time.Since(start)).
			Msg("orientation library built")

		ix, err := indexing.NewIndexer(lib, indexing.Options{
			Scale:       1.0 / cfg.Experiment.PixelSize,
			NSolutions:  cfg.Indexing.NSolutions,
			MinSpots:    cfg.Indexing.MinSpots,
			MinScore:    cfg.Indexing.MinScore,
			PresenceEps: cfg.Indexing.PresenceEps,
		})
		if err != nil {
			return nil, err
		}
		indexers = append(indexers, ix)
	}
	return indexing.NewMultiIndexer(indexers, cfg.Indexing.NSolutions)
}

func refineOptions(cfg *config.Config) indexing.RefineOptions {
	var vary indexing.VaryFlags
	for _, name := range cfg.Refinement.Vary {
		switch name {
		case "center":
			vary.Center = true
		case "scale":
			vary.Scale = true
		case "angles":
			vary.Angles = true
		case "gamma":
			vary.Gamma = true
		}
	}
	return indexing.RefineOptions{
		Method:  cfg.Refinement.Method,
		Vary:    vary,
		MaxIter: cfg.Refinement.MaxIter,
		Tol:     cfg.Refinement.Tol,
	}
}

func filterDone(store *results.Store, pats []*pattern.Pattern) ([]*pattern.Pattern, error) {
	kept := pats[:0]
	skipped := 0
	for _, p := range pats {
		done, err := store.Has(p.Name)
		if err != nil {
			return nil, err
		}
		if done {
			skipped++
			continue
		}
		kept = append(kept, p)
	}
	if skipped > 0 {
		log.Info().Int("skipped", skipped).Msg("resume: images already processed")
	}
	return kept, nil
}

// runSelftest renders one synthetic pattern per configured phase at a
// known orientation and checks that indexing recovers it.
func runSelftest(engine *indexing.MultiIndexer, cfg *config.Config) error {
	scale := 1.0 / cfg.Experiment.PixelSize
	for _, ix := range engine.Indexers() {
		lib := ix.Library()
		n := len(lib.Axes) / 3
		ax := lib.Axes[n]
		spots := lib.Projections[n]
		if len(spots) < cfg.Indexing.MinSpots {
			return fmt.Errorf("selftest: orientation %d of %s carries only %d spots", n, ix.Phase(), len(spots))
		}

		pat := indexing.Synthesize(spots, "selftest-"+ix.Phase(), indexing.SynthOptions{
			Width:   512,
			Height:  512,
			CenterX: 256,
			CenterY: 256,
			Scale:   scale,
		})
		rs, err := ix.Index(pat)
		if err != nil {
			return fmt.Errorf("selftest: %s: %w", ix.Phase(), err)
		}
		best := rs[0]
		if best.Orientation != n {
			return fmt.Errorf("selftest: %s recovered orientation %d, want %d", ix.Phase(), best.Orientation, n)
		}
		log.Info().
			Str("phase", ix.Phase()).
			Int("orientation", best.Orientation).
			Float64("alpha", ax.Alpha).
			Float64("beta", ax.Beta).
			Float64("score", best.Score).
			Msg("selftest recovered orientation")
	}
	return nil
}
