// Package analysis derives summary statistics from a decoded volume:
// B-scan quality, boundary coverage and a retinal thickness map built from
// two segmentation boundaries.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"octvol/internal/models"
)

// InvalidBoundary is the threshold above which a boundary sample marks a
// missing segmentation. The device stores the largest float32 there.
const InvalidBoundary = 1e30

// Stats holds descriptive statistics of a set of samples
type Stats struct {
	// Count is the number of samples that entered the statistics
	Count int `yaml:"count"`

	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stdDev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Median float64 `yaml:"median"`
}

// BoundaryStats describes one boundary slot across the volume
type BoundaryStats struct {
	// Index is the 1-based boundary number
	Index int `yaml:"index"`

	// Coverage is the fraction of valid samples, from 0 to 1
	Coverage float64 `yaml:"coverage"`

	// Depth holds the statistics of the valid sample positions in pixels
	Depth Stats `yaml:"depth"`
}

// Summary holds the statistics reported for a volume
type Summary struct {
	SizeX     int `yaml:"sizeX"`
	NumBScans int `yaml:"numBScans"`
	SizeZ     int `yaml:"sizeZ"`

	// Quality holds the statistics of the per B-scan image quality scores
	Quality Stats `yaml:"quality"`

	// Boundaries has one entry per boundary slot
	Boundaries []BoundaryStats `yaml:"boundaries"`

	// Thickness holds the statistics of the thickness map in micrometres.
	// It is nil when fewer than two boundaries are present.
	Thickness *Stats `yaml:"thickness,omitempty"`
}

// Describe computes Stats over values, skipping NaN entries. An input
// without valid samples yields a zero Stats.
func Describe(values []float64) Stats {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return Stats{}
	}

	sort.Float64s(valid)
	s := Stats{
		Count:  len(valid),
		Min:    floats.Min(valid),
		Max:    floats.Max(valid),
		Median: stat.Quantile(0.5, stat.Empirical, valid, nil),
	}
	if len(valid) == 1 {
		s.Mean = valid[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(valid, nil)
	return s
}

func validBoundary(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) < InvalidBoundary
}

// ThicknessMap returns the distance between boundary slots inner and outer
// (0-based) in micrometres, one row per B-scan and one column per A-scan.
// Positions where either boundary is invalid hold NaN.
func ThicknessMap(v *models.Volume, inner, outer int) (*mat.Dense, error) {
	if inner < 0 || outer < 0 || inner >= v.NumBoundaries || outer >= v.NumBoundaries {
		return nil, fmt.Errorf("boundary slots %d and %d outside 0..%d", inner, outer, v.NumBoundaries-1)
	}
	rows, cols := len(v.BScans), int(v.Header.SizeX)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("volume has no scans")
	}

	// ScaleZ is in mm per pixel
	umPerPixel := v.Header.ScaleZ * 1000
	m := mat.NewDense(rows, cols, nil)
	for i, b := range v.BScans {
		for x := 0; x < cols; x++ {
			top, bottom := b.Boundaries[inner][x], b.Boundaries[outer][x]
			if !validBoundary(top) || !validBoundary(bottom) {
				m.Set(i, x, math.NaN())
				continue
			}
			m.Set(i, x, math.Abs(float64(bottom)-float64(top))*umPerPixel)
		}
	}
	return m, nil
}

// Summarize computes the volume summary. The thickness statistics use the
// first two boundary slots, which hold ILM and BM on device exports.
func Summarize(v *models.Volume) (*Summary, error) {
	s := &Summary{
		SizeX:     int(v.Header.SizeX),
		NumBScans: len(v.BScans),
		SizeZ:     int(v.Header.SizeZ),
	}

	quality := make([]float64, len(v.BScans))
	for i, b := range v.BScans {
		quality[i] = float64(b.Header.Quality)
	}
	s.Quality = Describe(quality)

	for k := 0; k < v.NumBoundaries; k++ {
		var depths []float64
		total := 0
		for _, b := range v.BScans {
			for _, d := range b.Boundaries[k] {
				total++
				if validBoundary(d) {
					depths = append(depths, float64(d))
				}
			}
		}
		bs := BoundaryStats{Index: k + 1, Depth: Describe(depths)}
		if total > 0 {
			bs.Coverage = float64(len(depths)) / float64(total)
		}
		s.Boundaries = append(s.Boundaries, bs)
	}

	if v.NumBoundaries >= 2 && len(v.BScans) > 0 && v.Header.SizeX > 0 {
		m, err := ThicknessMap(v, 0, 1)
		if err != nil {
			return nil, err
		}
		r, c := m.Dims()
		values := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			values = append(values, m.RawRowView(i)...)
		}
		th := Describe(values)
		s.Thickness = &th
	}
	return s, nil
}
