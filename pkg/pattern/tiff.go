package pattern

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

// sidecar mirrors the YAML file that preprocessing writes next to each
// image: the beam center and the detected peaks.
type sidecar struct {
	Center []float64   `yaml:"center"`
	Peaks  [][]float64 `yaml:"peaks"`
}

// ReadTIFF loads one diffraction image. Gray and Gray16 frames keep
// their raw counts; other color models are averaged down to one channel.
func ReadTIFF(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("pattern: decoding %s: %w", path, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &Pattern{
		Name:    stem(path),
		Width:   w,
		Height:  h,
		Pix:     make([]float64, w*h),
		CenterX: float64(w) / 2,
		CenterY: float64(h) / 2,
	}

	switch im := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := im.Pix[y*im.Stride : y*im.Stride+w]
			for x, v := range row {
				p.Pix[y*w+x] = float64(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*im.Stride + 2*x
				p.Pix[y*w+x] = float64(uint16(im.Pix[i])<<8 | uint16(im.Pix[i+1]))
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				p.Pix[y*w+x] = float64(r+g+bb) / 3
			}
		}
	}
	return p, nil
}

// stem strips the directory and extension from a path.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadSidecar applies <image>.yaml metadata to the pattern if present.
// A missing sidecar is not an error; the pattern keeps its default
// center and an empty peak list.
func loadSidecar(p *Pattern, imgPath string) error {
	scPath := strings.TrimSuffix(imgPath, filepath.Ext(imgPath)) + ".yaml"
	data, err := os.ReadFile(scPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}

	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("pattern: parsing %s: %w", scPath, err)
	}
	if len(sc.Center) == 2 {
		p.CenterX, p.CenterY = sc.Center[0], sc.Center[1]
	} else if sc.Center != nil {
		return fmt.Errorf("pattern: %s: center needs exactly 2 values, got %d", scPath, len(sc.Center))
	}
	for _, pk := range sc.Peaks {
		switch len(pk) {
		case 2:
			p.Peaks = append(p.Peaks, Peak{X: pk[0], Y: pk[1]})
		case 3:
			p.Peaks = append(p.Peaks, Peak{X: pk[0], Y: pk[1], Intensity: pk[2]})
		default:
			return fmt.Errorf("pattern: %s: peak needs 2 or 3 values, got %d", scPath, len(pk))
		}
	}
	return nil
}

// LoadDir reads every TIFF image under dir in name order. Images that
// fail to load are skipped and reported in the second return value, so
// one corrupt frame does not abort a long batch. The error return covers
// directory-level failures only.
func LoadDir(dir string) ([]*Pattern, []error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("pattern: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".tif", ".tiff":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var pats []*Pattern
	var skipped []error
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := ReadTIFF(path)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if err := loadSidecar(p, path); err != nil {
			skipped = append(skipped, err)
			continue
		}
		pats = append(pats, p)
	}
	return pats, skipped, nil
}
