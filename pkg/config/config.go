// Package config provides configuration loading and management for serialed.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"serialed/pkg/crystal"
)

// Cell describes one candidate phase: unit cell parameters in Å and
// degrees plus the Hermann-Mauguin space group symbol.
type Cell struct {
	// Name identifies the phase in results and logs
	Name string `yaml:"name"`

	// A, B, C are the cell edges in Å
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`

	// Alpha, Beta, Gamma are the cell angles in degrees
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`

	// SpaceGroup is the short Hermann-Mauguin symbol, e.g. "P21/c"
	SpaceGroup string `yaml:"spaceGroup"`
}

// Unit converts the configuration record into a crystal cell.
func (c Cell) Unit() crystal.UnitCell {
	return crystal.UnitCell{
		Name:       c.Name,
		A:          c.A,
		B:          c.B,
		C:          c.C,
		Alpha:      c.Alpha,
		Beta:       c.Beta,
		Gamma:      c.Gamma,
		SpaceGroup: c.SpaceGroup,
	}
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Cells lists the candidate phases to index against
	Cells []Cell `yaml:"cells"`

	// Projection parameters for the orientation library
	Projections struct {
		// Dmin is the high-resolution cutoff in Å
		Dmin float64 `yaml:"dmin"`

		// Dmax is the low-resolution cutoff in Å
		Dmax float64 `yaml:"dmax"`

		// Thickness is the effective crystal thickness in Å
		Thickness float64 `yaml:"thickness"`

		// Wavelength is the electron wavelength in Å
		Wavelength float64 `yaml:"wavelength"`

		// AngularStep is the zone-axis grid spacing in radians
		AngularStep float64 `yaml:"angularStep"`
	} `yaml:"projections"`

	// Experiment parameters describing the detector
	Experiment struct {
		// PixelSize is the reciprocal pixel size in 1/Å, so that a
		// scattering vector maps to pixels as g/pixelSize
		PixelSize float64 `yaml:"pixelSize"`
	} `yaml:"experiment"`

	// Indexing parameters for the orientation search
	Indexing struct {
		// NSolutions is how many ranked solutions to keep per image
		NSolutions int `yaml:"nSolutions"`

		// MinSpots is the minimum peak count for an image to be indexable
		MinSpots int `yaml:"minSpots"`

		// MinScore marks images whose best candidate scores below this
		// floor as unindexed, zero accepts anything with signal
		MinScore float64 `yaml:"minScore"`

		// PresenceEps is the intensity floor above which a pixel counts
		// as a present reflection during scoring
		PresenceEps float64 `yaml:"presenceEps"`

		// ExtractRadius is the disk radius in pixels used when reading
		// intensities off an indexed image
		ExtractRadius int `yaml:"extractRadius"`
	} `yaml:"indexing"`

	// Refinement parameters for the local optimization of solutions
	Refinement struct {
		// Enabled turns refinement of indexing solutions on or off
		Enabled bool `yaml:"enabled"`

		// Method selects the optimizer: "neldermead" or "coordinate"
		Method string `yaml:"method"`

		// Vary lists the free parameter groups: center, scale, angles, gamma
		Vary []string `yaml:"vary"`

		// MaxIter caps the number of optimizer iterations
		MaxIter int `yaml:"maxIter"`

		// Tol is the convergence tolerance on the objective
		Tol float64 `yaml:"tol"`
	} `yaml:"refinement"`

	// Merging parameters for the rank aggregation
	Merging struct {
		// TopImages merges only the N best-scoring images, zero merges
		// everything that indexed
		TopImages int `yaml:"topImages"`

		// TopPerImage keeps only the strongest N reflections per image,
		// zero keeps everything
		TopPerImage int `yaml:"topPerImage"`

		// MinImages is the minimum observation count for a reflection
		// to enter the consensus table
		MinImages int `yaml:"minImages"`

		// KemenySweeps caps the local Kemenization passes, zero picks
		// a cap from the table size
		KemenySweeps int `yaml:"kemenySweeps"`
	} `yaml:"merging"`

	// Runtime parameters
	Runtime struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// LogLevel sets the log verbosity: debug, info, warn or error
		LogLevel string `yaml:"logLevel"`
	} `yaml:"runtime"`
}

// DefaultConfig returns a configuration with default values. Cells have
// no universal default and must come from the user's config file.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default projection parameters
	cfg.Projections.Dmin = 1.0
	cfg.Projections.Dmax = 10.0
	cfg.Projections.Thickness = 500.0
	cfg.Projections.Wavelength = 0.0251
	cfg.Projections.AngularStep = 0.03

	// Set default experiment parameters
	cfg.Experiment.PixelSize = 0.003

	// Set default indexing parameters
	cfg.Indexing.NSolutions = 25
	cfg.Indexing.MinSpots = 10
	cfg.Indexing.MinScore = 0.0
	cfg.Indexing.PresenceEps = 0.0
	cfg.Indexing.ExtractRadius = 1

	// Set default refinement parameters
	cfg.Refinement.Enabled = true
	cfg.Refinement.Method = "neldermead"
	cfg.Refinement.Vary = []string{"center", "scale", "angles", "gamma"}
	cfg.Refinement.MaxIter = 200
	cfg.Refinement.Tol = 1e-4

	// Set default merging parameters
	cfg.Merging.TopImages = 0
	cfg.Merging.TopPerImage = 0
	cfg.Merging.MinImages = 1
	cfg.Merging.KemenySweeps = 0

	// Set default runtime parameters
	cfg.Runtime.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Runtime.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the configuration before any expensive work starts, so
// bad cells or calibration surface here instead of deep inside the engine.
func (cfg *Config) Validate() error {
	if len(cfg.Cells) == 0 {
		return fmt.Errorf("config: no cells defined")
	}
	seen := make(map[string]bool, len(cfg.Cells))
	for _, cell := range cfg.Cells {
		if cell.Name == "" {
			return fmt.Errorf("config: cell without a name")
		}
		if seen[cell.Name] {
			return fmt.Errorf("config: duplicate cell name %q", cell.Name)
		}
		seen[cell.Name] = true

		unit := cell.Unit()
		if err := unit.Validate(); err != nil {
			return err
		}
		group, err := crystal.ParseSpaceGroup(cell.SpaceGroup)
		if err != nil {
			return err
		}
		if err := crystal.CheckConsistent(unit, group); err != nil {
			return err
		}
	}

	p := cfg.Projections
	if p.Dmin <= 0 || p.Dmax < p.Dmin {
		return fmt.Errorf("config: bad resolution range [%g, %g]", p.Dmin, p.Dmax)
	}
	if p.Thickness <= 0 {
		return fmt.Errorf("config: thickness must be positive, got %g", p.Thickness)
	}
	if p.Wavelength <= 0 {
		return fmt.Errorf("config: wavelength must be positive, got %g", p.Wavelength)
	}
	if p.AngularStep <= 0 {
		return fmt.Errorf("config: angular step must be positive, got %g", p.AngularStep)
	}
	if cfg.Experiment.PixelSize <= 0 {
		return fmt.Errorf("config: pixelSize must be positive, got %g", cfg.Experiment.PixelSize)
	}
	if cfg.Indexing.MinScore < 0 {
		return fmt.Errorf("config: minScore must not be negative, got %g", cfg.Indexing.MinScore)
	}

	switch cfg.Refinement.Method {
	case "", "neldermead", "coordinate":
	default:
		return fmt.Errorf("config: unknown refinement method %q", cfg.Refinement.Method)
	}
	for _, v := range cfg.Refinement.Vary {
		switch v {
		case "center", "scale", "angles", "gamma":
		default:
			return fmt.Errorf("config: unknown refinement parameter %q", v)
		}
	}

	if cfg.Merging.TopImages < 0 || cfg.Merging.TopPerImage < 0 ||
		cfg.Merging.MinImages < 0 || cfg.Merging.KemenySweeps < 0 {
		return fmt.Errorf("config: merging settings must not be negative")
	}
	return nil
}
