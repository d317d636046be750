// Package models holds the small data records shared between the
// indexing, merging and persistence layers.
package models

// Observation is one reflection intensity read off a single image at a
// projected spot position. Indices are as extracted, not standardized;
// symmetry reduction happens when observations are merged.
type Observation struct {
	H, K, L   int
	Intensity float64
}

// ImageSet groups the observations of one indexed image together with
// the indexing score of the solution that produced them. The score acts
// as the image's reliability weight during merging; Phase names the cell
// the solution belongs to, so multi-phase runs can be merged per phase.
type ImageSet struct {
	Image        string
	Phase        string
	Score        float64
	Observations []Observation
}
