// Package crop cuts a square region around the thickness grid centre out of
// a decoded volume and rewrites the geometry so the result is a valid file.
package crop

import (
	"errors"
	"fmt"
	"math"

	"octvol/internal/models"
)

// ETDRSSize is the crop size in mm that turns the thickness grid into a
// standard ETDRS grid
const ETDRSSize = 6

var (
	// ErrEmptyWindow is reported when the clamped crop window holds no scans
	ErrEmptyWindow = errors.New("crop window is empty")

	// ErrNoGrid is reported when the volume has no thickness grid to centre on
	ErrNoGrid = errors.New("volume has no thickness grid")

	// ErrBadSize is reported for non-positive or non-finite crop sizes
	ErrBadSize = errors.New("invalid crop size")

	// ErrShape is reported when the B-scan arrays do not match the header sizes
	ErrShape = errors.New("b-scan arrays do not match header")
)

// GeometryError describes a crop that cannot produce a valid volume
type GeometryError struct {
	// Axis is "a-scan" or "b-scan" for window errors, empty otherwise
	Axis string

	// First and Last are the clamped 1-based window bounds
	First, Last int

	Err error
}

func (e *GeometryError) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("crop: %s window %d..%d: %v", e.Axis, e.First, e.Last, e.Err)
	}
	return fmt.Sprintf("crop: %v", e.Err)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// Window is the inclusive 1-based range of scans kept by a crop
type Window struct {
	FirstAScan, LastAScan int
	FirstBScan, LastBScan int

	// CenterAScan and CenterBScan are the grid centre in half-index steps
	CenterAScan, CenterBScan float64

	// Angle is the rotation of the acquisition plane on the reference image
	Angle float64
}

// SizeX returns the number of A-scans in the window
func (w Window) SizeX() int {
	return w.LastAScan - w.FirstAScan + 1
}

// NumBScans returns the number of B-scans in the window
func (w Window) NumBScans() int {
	return w.LastBScan - w.FirstBScan + 1
}

// ScanAngle returns the rotation of the acquisition plane, derived from the
// end points of the first and last B-scan
func ScanAngle(first, last models.BScanHeader) float64 {
	angle := math.Atan((first.EndY - last.EndY) / (first.EndX - last.EndX))
	if last.EndX > first.EndX {
		angle += math.Pi
	}
	return angle
}

// roundHalf rounds to the nearest half index with ties to even
func roundHalf(x float64) float64 {
	return math.RoundToEven(x*2) / 2
}

// ComputeWindow locates the grid centre on the scan raster and returns the
// window of cropSize mm around it, clamped to the volume
func ComputeWindow(v *models.Volume, cropSize float64) (Window, error) {
	if !(cropSize > 0) || math.IsInf(cropSize, 0) {
		return Window{}, &GeometryError{Err: fmt.Errorf("%w: %v", ErrBadSize, cropSize)}
	}
	if v.Grid == nil {
		return Window{}, &GeometryError{Err: ErrNoGrid}
	}
	if len(v.BScans) == 0 {
		return Window{}, &GeometryError{Axis: "b-scan", First: 1, Last: 0, Err: ErrEmptyWindow}
	}
	h := &v.Header
	if err := checkShape(v); err != nil {
		return Window{}, &GeometryError{Err: err}
	}
	first := v.BScans[0].Header
	last := v.BScans[len(v.BScans)-1].Header

	angle := ScanAngle(first, last)
	sin, cos := math.Sin(angle), math.Cos(angle)

	// Grid centre relative to the end of the last B-scan, rotated into the
	// acquisition plane
	dx := v.Grid.CenterPos[0] - last.EndX
	dy := v.Grid.CenterPos[1] - last.EndY
	centerXmm := -dx*sin + dy*cos
	centerYmm := dx*cos + dy*sin

	w := Window{Angle: angle}
	w.CenterAScan = float64(h.SizeX) - roundHalf(centerXmm/h.ScaleX)
	w.CenterBScan = float64(h.NumBScans) - roundHalf(centerYmm/h.Distance)

	halfA := cropSize / h.ScaleX / 2
	halfB := cropSize / h.Distance / 2
	w.FirstAScan = clampLow(math.Ceil(w.CenterAScan-halfA), 1)
	w.LastAScan = clampHigh(math.Floor(w.CenterAScan+halfA), int(h.SizeX))
	w.FirstBScan = clampLow(math.Ceil(w.CenterBScan-halfB), 1)
	w.LastBScan = clampHigh(math.Floor(w.CenterBScan+halfB), int(h.NumBScans))

	if w.FirstAScan > w.LastAScan {
		return w, &GeometryError{Axis: "a-scan", First: w.FirstAScan, Last: w.LastAScan, Err: ErrEmptyWindow}
	}
	if w.FirstBScan > w.LastBScan {
		return w, &GeometryError{Axis: "b-scan", First: w.FirstBScan, Last: w.LastBScan, Err: ErrEmptyWindow}
	}
	return w, nil
}

// checkShape makes sure every array Apply slices has the size the header claims
func checkShape(v *models.Volume) error {
	h := &v.Header
	if len(v.BScans) != int(h.NumBScans) {
		return fmt.Errorf("%w: %d b-scans, header says %d", ErrShape, len(v.BScans), h.NumBScans)
	}
	sizeX := int(h.SizeX)
	for i, b := range v.BScans {
		if len(b.Image) != sizeX*int(h.SizeZ) {
			return fmt.Errorf("%w: b-scan %d image has %d samples, want %d", ErrShape, i, len(b.Image), sizeX*int(h.SizeZ))
		}
		for k, curve := range b.Boundaries {
			if len(curve) != sizeX {
				return fmt.Errorf("%w: b-scan %d boundary %d has %d samples, want %d", ErrShape, i, k+1, len(curve), sizeX)
			}
		}
	}
	return nil
}

// clampLow and clampHigh also map NaN from degenerate geometry to an
// out-of-range bound so the window check rejects it
func clampLow(x float64, lo int) int {
	if math.IsNaN(x) || x > math.MaxInt32 {
		return math.MaxInt32
	}
	if x < float64(lo) {
		return lo
	}
	return int(x)
}

func clampHigh(x float64, hi int) int {
	if math.IsNaN(x) || x < math.MinInt32 {
		return math.MinInt32
	}
	if x > float64(hi) {
		return hi
	}
	return int(x)
}

// Crop cuts cropSize mm around the thickness grid centre in both scan
// directions. The volume is only modified when the crop succeeds.
//
// A crop of exactly ETDRSSize mm turns the grid into an ETDRS grid and
// zeroes its statistics, which no longer describe the cropped volume.
func Crop(v *models.Volume, cropSize float64) error {
	w, err := ComputeWindow(v, cropSize)
	if err != nil {
		return err
	}
	Apply(v, w)
	if cropSize == ETDRSSize {
		ResetGrid(v.Grid)
	}
	return nil
}

// Apply cuts v down to a window returned by ComputeWindow for the same volume
func Apply(v *models.Volume, w Window) {
	h := &v.Header
	sizeX := int(h.SizeX)
	sizeZ := int(h.SizeZ)
	a0, a1 := w.FirstAScan-1, w.LastAScan
	newSizeX := w.SizeX()

	// Trimmed A-scans move the start forward and the end backward along the scan line
	startShift := float64(w.FirstAScan-1) * h.ScaleX
	endShift := float64(sizeX-w.LastAScan) * h.ScaleX
	startDirX, startDirY := math.Cos(3*math.Pi/2+w.Angle), math.Sin(3*math.Pi/2+w.Angle)
	endDirX, endDirY := math.Cos(math.Pi/2+w.Angle), math.Sin(math.Pi/2+w.Angle)

	kept := make([]models.BScan, 0, w.NumBScans())
	for _, b := range v.BScans[w.FirstBScan-1 : w.LastBScan] {
		b.Header.StartX += startShift * startDirX
		b.Header.StartY += startShift * startDirY
		b.Header.EndX += endShift * endDirX
		b.Header.EndY += endShift * endDirY

		boundaries := make([][]float32, len(b.Boundaries))
		for k, curve := range b.Boundaries {
			boundaries[k] = append([]float32(nil), curve[a0:a1]...)
		}
		b.Boundaries = boundaries

		img := make([]float32, sizeZ*newSizeX)
		for z := 0; z < sizeZ; z++ {
			copy(img[z*newSizeX:(z+1)*newSizeX], b.Image[z*sizeX+a0:z*sizeX+a1])
		}
		b.Image = img

		kept = append(kept, b)
	}
	v.BScans = kept

	h.SizeX = int32(newSizeX)
	h.NumBScans = int32(w.NumBScans())
	h.GridOffset = int32(h.ExpectedGridOffset())
}

// ResetGrid turns g into an empty ETDRS grid
func ResetGrid(g *models.ThicknessGrid) {
	if g == nil {
		return
	}
	g.Type = models.GridTypeETDRS
	g.Diameter = [3]float64{1, 3, 6}
	g.CentralThk = 0
	g.MinCentralThk = 0
	g.MaxCentralThk = 0
	g.TotalVolume = 0
	g.Sectors = [models.NumSectors]models.Sector{}
}
