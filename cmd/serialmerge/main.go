package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"serialed/internal/models"
	"serialed/internal/observability"
	"serialed/pkg/config"
	"serialed/pkg/crystal"
	"serialed/pkg/merging"
	"serialed/pkg/results"
)

func main() {
	// Parse command line arguments
	obsPath := flag.String("observations", "", "Observations file written by serialed")
	dbPath := flag.String("db", "", "SQLite database written by serialed")
	hklPath := flag.String("hkl", "merged.hkl", "Output reflection file (SHELX HKL format)")
	phase := flag.String("phase", "", "Phase to merge (default: the only phase present)")
	topImages := flag.Int("topimages", -1, "Merge only the N best-scoring images (-1: from config)")
	top := flag.Int("top", -1, "Keep only the strongest N reflections per image (-1: from config)")
	minImages := flag.Int("minimages", -1, "Minimum observation count per reflection (-1: from config)")
	sweeps := flag.Int("sweeps", -1, "Kemenization sweep cap (-1: from config)")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	observability.InitLogger("serialmerge", *logLevel)

	if (*obsPath == "") == (*dbPath == "") {
		log.Fatal().Msg("exactly one of -observations or -db must be given")
	}

	cfg, sets, err := loadSets(*obsPath, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load observations")
	}
	if len(sets) == 0 {
		log.Fatal().Msg("no observations to merge")
	}

	sets, name, err := selectPhase(sets, *phase)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to select phase")
	}

	cell, ok := findCell(cfg, name)
	if !ok {
		log.Fatal().Str("phase", name).Msg("phase not present in the stored configuration")
	}
	group, err := crystal.ParseSpaceGroup(cell.SpaceGroup)
	if err != nil {
		log.Fatal().Err(err).Msg("bad space group in stored configuration")
	}

	expected := len(crystal.Unique(cell.Unit(), group, cfg.Projections.Dmin, cfg.Projections.Dmax))

	opt := merging.Options{
		Group:        group,
		TopImages:    cfg.Merging.TopImages,
		TopPerImage:  cfg.Merging.TopPerImage,
		MinImages:    cfg.Merging.MinImages,
		Expected:     expected,
		KemenySweeps: cfg.Merging.KemenySweeps,
	}
	if *topImages >= 0 {
		opt.TopImages = *topImages
	}
	if *top >= 0 {
		opt.TopPerImage = *top
	}
	if *minImages >= 0 {
		opt.MinImages = *minImages
	}
	if *sweeps >= 0 {
		opt.KemenySweeps = *sweeps
	}

	table, err := merging.Merge(sets, opt)
	if err != nil {
		log.Fatal().Err(err).Msg("merge failed")
	}

	f, err := os.Create(*hklPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create output file")
	}
	if err := merging.WriteHKL(f, table); err != nil {
		f.Close()
		log.Fatal().Err(err).Msg("failed to write reflection file")
	}
	if err := f.Close(); err != nil {
		log.Fatal().Err(err).Msg("failed to write reflection file")
	}

	st := table.Stats
	log.Info().
		Str("phase", name).
		Int("images", st.Images).
		Int("used", st.Used).
		Int("reflections", st.Reflections).
		Int("expected", st.Expected).
		Float64("completeness", st.Completeness).
		Float64("meanRedundancy", st.MeanRedundancy).
		Float64("tau", st.Tau).
		Str("hkl", *hklPath).
		Msg("merge finished")
	if st.LowConfidence {
		log.Warn().Msg("consensus rests on too few images or barely agrees with them; inspect the input before using the table")
	}
}

func loadSets(obsPath, dbPath string) (*config.Config, []models.ImageSet, error) {
	if dbPath != "" {
		store, err := results.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		defer store.Close()
		cfg, err := store.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		sets, err := store.Observations()
		if err != nil {
			return nil, nil, err
		}
		return cfg, sets, nil
	}
	return results.LoadObservations(obsPath)
}

// selectPhase narrows the input down to one phase. Without an explicit
// choice a single-phase input passes through and a mixed one is
// rejected, listing what it contains.
func selectPhase(sets []models.ImageSet, want string) ([]models.ImageSet, string, error) {
	present := make(map[string]bool)
	for _, s := range sets {
		present[s.Phase] = true
	}

	if want == "" {
		if len(present) > 1 {
			names := make([]string, 0, len(present))
			for n := range present {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, "", fmt.Errorf("input contains phases %s, pick one with -phase", strings.Join(names, ", "))
		}
		for n := range present {
			want = n
		}
		return sets, want, nil
	}

	kept := make([]models.ImageSet, 0, len(sets))
	for _, s := range sets {
		if s.Phase == want {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, "", fmt.Errorf("no observations for phase %q", want)
	}
	return kept, want, nil
}

func findCell(cfg *config.Config, name string) (config.Cell, bool) {
	for _, c := range cfg.Cells {
		if c.Name == name {
			return c, true
		}
	}
	// Observation files written before phases were recorded carry an
	// empty name; a single-cell config still identifies the phase.
	if name == "" && len(cfg.Cells) == 1 {
		return cfg.Cells[0], true
	}
	return config.Cell{}, false
}
