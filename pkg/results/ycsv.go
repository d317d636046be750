// Package results persists the per-image output of an indexing run. Two
// carriers are supported: a text format with a YAML header describing
// the run followed by a CSV table, and a SQLite database that also
// backs resumable batches.
package results

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"serialed/internal/models"
	"serialed/pkg/config"
	"serialed/pkg/indexing"
)

// separator divides the YAML header from the CSV body.
const separator = "---\n"

var resultsHeader = []string{
	"image", "score", "orientation", "alpha", "beta", "gamma",
	"center_x", "center_y", "scale", "phase", "varied", "improved",
}

var observationsHeader = []string{"image", "phase", "score", "h", "k", "l", "intensity"}

// ftoa formats floats so they survive a write/read cycle bit for bit.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteResults writes the run configuration as a YAML header, a
// separator line, and one CSV row per solution.
func WriteResults(w io.Writer, cfg *config.Config, rs []indexing.Result) error {
	if err := writeHeader(w, cfg); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return fmt.Errorf("results: writing header: %w", err)
	}
	for _, r := range rs {
		rec := []string{
			r.Image,
			ftoa(r.Score),
			strconv.Itoa(r.Orientation),
			ftoa(r.Alpha),
			ftoa(r.Beta),
			ftoa(r.Gamma),
			ftoa(r.CenterX),
			ftoa(r.CenterY),
			ftoa(r.Scale),
			r.Phase,
			r.Varied,
			strconv.FormatBool(r.Improved),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("results: writing row for %s: %w", r.Image, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveResults writes the results file at path.
func SaveResults(path string, cfg *config.Config, rs []indexing.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("results: creating %s: %w", path, err)
	}
	if err := WriteResults(f, cfg, rs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadResults parses a results file back into the configuration it was
// produced with and the solution rows.
func ReadResults(r io.Reader) (*config.Config, []indexing.Result, error) {
	cfg, body, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	records, err := readCSV(body, resultsHeader)
	if err != nil {
		return nil, nil, err
	}

	rs := make([]indexing.Result, 0, len(records))
	for _, rec := range records {
		var res indexing.Result
		res.Image = rec[0]
		if res.Score, err = atof(rec[1], "score"); err != nil {
			return nil, nil, err
		}
		if res.Orientation, err = atoi(rec[2], "orientation"); err != nil {
			return nil, nil, err
		}
		if res.Alpha, err = atof(rec[3], "alpha"); err != nil {
			return nil, nil, err
		}
		if res.Beta, err = atof(rec[4], "beta"); err != nil {
			return nil, nil, err
		}
		if res.Gamma, err = atof(rec[5], "gamma"); err != nil {
			return nil, nil, err
		}
		if res.CenterX, err = atof(rec[6], "center_x"); err != nil {
			return nil, nil, err
		}
		if res.CenterY, err = atof(rec[7], "center_y"); err != nil {
			return nil, nil, err
		}
		if res.Scale, err = atof(rec[8], "scale"); err != nil {
			return nil, nil, err
		}
		res.Phase = rec[9]
		res.Varied = rec[10]
		if res.Improved, err = strconv.ParseBool(rec[11]); err != nil {
			return nil, nil, fmt.Errorf("results: bad improved flag %q: %w", rec[11], err)
		}
		rs = append(rs, res)
	}
	return cfg, rs, nil
}

// LoadResults reads the results file at path.
func LoadResults(path string) (*config.Config, []indexing.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("results: opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadResults(f)
}

// WriteObservations writes per-image reflection lists with the same
// YAML header, so a merge can run from this one file.
func WriteObservations(w io.Writer, cfg *config.Config, sets []models.ImageSet) error {
	if err := writeHeader(w, cfg); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(observationsHeader); err != nil {
		return fmt.Errorf("results: writing header: %w", err)
	}
	for _, set := range sets {
		for _, ob := range set.Observations {
			rec := []string{
				set.Image,
				set.Phase,
				ftoa(set.Score),
				strconv.Itoa(ob.H),
				strconv.Itoa(ob.K),
				strconv.Itoa(ob.L),
				ftoa(ob.Intensity),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("results: writing row for %s: %w", set.Image, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveObservations writes the observations file at path.
func SaveObservations(path string, cfg *config.Config, sets []models.ImageSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("results: creating %s: %w", path, err)
	}
	if err := WriteObservations(f, cfg, sets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadObservations parses an observations file. Rows are grouped back
// into per-image sets in order of first appearance.
func ReadObservations(r io.Reader) (*config.Config, []models.ImageSet, error) {
	cfg, body, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	records, err := readCSV(body, observationsHeader)
	if err != nil {
		return nil, nil, err
	}

	var sets []models.ImageSet
	pos := make(map[string]int)
	for _, rec := range records {
		image, phase := rec[0], rec[1]
		score, err := atof(rec[2], "score")
		if err != nil {
			return nil, nil, err
		}
		var ob models.Observation
		if ob.H, err = atoi(rec[3], "h"); err != nil {
			return nil, nil, err
		}
		if ob.K, err = atoi(rec[4], "k"); err != nil {
			return nil, nil, err
		}
		if ob.L, err = atoi(rec[5], "l"); err != nil {
			return nil, nil, err
		}
		if ob.Intensity, err = atof(rec[6], "intensity"); err != nil {
			return nil, nil, err
		}

		i, ok := pos[image]
		if !ok {
			i = len(sets)
			pos[image] = i
			sets = append(sets, models.ImageSet{Image: image, Phase: phase, Score: score})
		}
		sets[i].Observations = append(sets[i].Observations, ob)
	}
	return cfg, sets, nil
}

// LoadObservations reads the observations file at path.
func LoadObservations(path string) (*config.Config, []models.ImageSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("results: opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadObservations(f)
}

func writeHeader(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("results: marshaling header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("results: writing header: %w", err)
	}
	if _, err := io.WriteString(w, separator); err != nil {
		return fmt.Errorf("results: writing separator: %w", err)
	}
	return nil
}

// readHeader splits the stream at the first separator line, parses the
// YAML part and returns the CSV body.
func readHeader(r io.Reader) (*config.Config, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("results: reading: %w", err)
	}

	var head, body []byte
	if bytes.HasPrefix(data, []byte(separator)) {
		body = data[len(separator):]
	} else {
		i := bytes.Index(data, []byte("\n"+separator))
		if i < 0 {
			return nil, nil, fmt.Errorf("results: missing %q separator", "---")
		}
		head = data[:i+1]
		body = data[i+1+len(separator):]
	}

	cfg := config.DefaultConfig()
	if len(head) > 0 {
		if err := yaml.Unmarshal(head, cfg); err != nil {
			return nil, nil, fmt.Errorf("results: parsing header: %w", err)
		}
	}
	return cfg, body, nil
}

func readCSV(body []byte, header []string) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(body))
	cr.FieldsPerRecord = len(header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("results: parsing rows: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("results: missing CSV header row")
	}
	for i, name := range header {
		if records[0][i] != name {
			return nil, fmt.Errorf("results: unexpected column %q, want %q", records[0][i], name)
		}
	}
	return records[1:], nil
}

func atof(s, col string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("results: bad %s value %q: %w", col, s, err)
	}
	return v, nil
}

func atoi(s, col string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("results: bad %s value %q: %w", col, s, err)
	}
	return v, nil
}
