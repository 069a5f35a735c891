// Package interpolation fills missing samples of maps sampled on the scan
// raster, such as a thickness map with gaps in the segmentation.
package interpolation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// ErrNoSamples is returned when a map with gaps has no valid sample to fill them from
var ErrNoSamples = errors.New("no valid samples")

// Sample is a valid map entry positioned in mm on the scan raster
type Sample struct {
	X, Y  float64
	Value float64
}

// Compare implements the kdtree.Comparable interface
func (p Sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Sample)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Sample) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two samples
func (p Sample) Distance(c kdtree.Comparable) float64 {
	q := c.(Sample)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Samples is a collection of Sample that satisfies kdtree.Interface
type Samples []Sample

func (p Samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p Samples) Len() int                              { return len(p) }
func (p Samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Samples) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(samplePlane{Samples: p, Dim: d}, kdtree.MedianOfRandoms(samplePlane{Samples: p, Dim: d}, 100))
}

type samplePlane struct {
	Samples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Samples[i].X < p.Samples[j].X
	case 1:
		return p.Samples[i].Y < p.Samples[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{Samples: p.Samples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.Samples[i], p.Samples[j] = p.Samples[j], p.Samples[i]
}

// GapFiller replaces missing (NaN) entries of a map whose rows are B-scans
// and whose columns are A-scans
type GapFiller struct {
	// RowPitch and ColPitch are the B-scan and A-scan spacing in mm
	RowPitch, ColPitch float64

	// Neighbors is the number of nearest valid samples averaged per gap
	Neighbors int

	// Power is the inverse distance weighting exponent
	Power float64
}

// NewGapFiller returns a filler for the given raster spacing using the
// 8 nearest samples and inverse squared distance weights
func NewGapFiller(rowPitch, colPitch float64) *GapFiller {
	return &GapFiller{
		RowPitch:  rowPitch,
		ColPitch:  colPitch,
		Neighbors: 8,
		Power:     2,
	}
}

// Fill replaces the NaN entries of m in place and returns how many were
// filled. Values are interpolated from the original valid entries only.
func (g *GapFiller) Fill(m *mat.Dense) (int, error) {
	if !(g.RowPitch > 0) || !(g.ColPitch > 0) {
		return 0, fmt.Errorf("invalid raster pitch %v x %v", g.RowPitch, g.ColPitch)
	}
	if g.Neighbors < 1 {
		return 0, fmt.Errorf("neighbors must be at least 1, got %d", g.Neighbors)
	}

	rows, cols := m.Dims()
	var valid Samples
	var gaps [][2]int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			if math.IsNaN(v) {
				gaps = append(gaps, [2]int{r, c})
				continue
			}
			valid = append(valid, Sample{X: float64(c) * g.ColPitch, Y: float64(r) * g.RowPitch, Value: v})
		}
	}
	if len(gaps) == 0 {
		return 0, nil
	}
	if len(valid) == 0 {
		return 0, ErrNoSamples
	}

	tree := kdtree.New(valid, false)
	for _, gap := range gaps {
		q := Sample{X: float64(gap[1]) * g.ColPitch, Y: float64(gap[0]) * g.RowPitch}
		keeper := kdtree.NewNKeeper(g.Neighbors)
		tree.NearestSet(keeper, q)

		var sum, weights float64
		for _, item := range keeper.Heap {
			// Skip the sentinel left when fewer samples exist than requested
			if item.Comparable == nil {
				continue
			}
			w := 1 / math.Pow(item.Dist, g.Power/2)
			sum += w * item.Comparable.(Sample).Value
			weights += w
		}
		m.Set(gap[0], gap[1], sum/weights)
	}
	return len(gaps), nil
}
