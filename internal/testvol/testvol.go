// Package testvol builds small synthetic volumes for tests.
package testvol

import (
	"octvol/internal/models"
)

// Params describes the synthetic volume to build
type Params struct {
	SizeX, NumBScans, SizeZ int
	NumSeg                  int
	SLOWidth, SLOHeight     int

	// ScaleX and Distance are the A-scan and B-scan pitch in mm
	ScaleX, Distance float64

	// Center is the thickness grid centre on the reference image in mm.
	// A nil Center builds a volume without thickness grid.
	Center *[2]float64
}

// DefaultParams returns the 10x10 geometry used across the tests
func DefaultParams() Params {
	return Params{
		SizeX:     10,
		NumBScans: 10,
		SizeZ:     6,
		NumSeg:    3,
		SLOWidth:  8,
		SLOHeight: 5,
		ScaleX:    0.5,
		Distance:  0.5,
		Center:    &[2]float64{2.5, 2.0},
	}
}

// BScanHdrSize is the per-record header size used by New
const BScanHdrSize = 512

// New builds a volume whose B-scans are horizontal lines on the reference
// image. Record i lies at y = i*Distance and runs from x = (SizeX-1)*ScaleX
// down to x = 0, so A-scan k (1-based) sits at x = (SizeX-k)*ScaleX.
func New(p Params) *models.Volume {
	v := &models.Volume{NumBoundaries: p.NumSeg}
	h := &v.Header
	h.Version = "HSF-OCT-103"
	h.SizeX = int32(p.SizeX)
	h.NumBScans = int32(p.NumBScans)
	h.SizeZ = int32(p.SizeZ)
	h.ScaleX = p.ScaleX
	h.Distance = p.Distance
	h.ScaleZ = 0.0038
	h.SizeXSlo = int32(p.SLOWidth)
	h.SizeYSlo = int32(p.SLOHeight)
	h.ScaleXSlo = 0.0113
	h.ScaleYSlo = 0.0113
	h.FieldSizeSlo = 30
	h.ScanFocus = -0.77
	h.ScanPosition = "OD"
	h.RawExamTime = 131482335000000000
	h.ScanPattern = 3
	h.BScanHdrSize = BScanHdrSize
	h.ID = "EXAM0001"
	h.ReferenceID = "REF0001"
	h.PID = 42
	h.PatientID = "PAT-000042"
	h.Padding = [3]byte{1, 2, 3}
	h.RawDOB = 29221.0
	h.VID = 7
	h.VisitID = "VISIT-7"
	h.RawVisitDate = 42736.5
	for i := range h.Spare {
		h.Spare[i] = byte(i * 7)
	}

	v.SLO = models.ReferenceImage{
		Width:  p.SLOWidth,
		Height: p.SLOHeight,
		Pix:    make([]uint8, p.SLOWidth*p.SLOHeight),
	}
	for i := range v.SLO.Pix {
		v.SLO.Pix[i] = uint8(i * 3)
	}

	v.BScans = make([]models.BScan, p.NumBScans)
	for i := range v.BScans {
		b := &v.BScans[i]
		b.Header = models.BScanHeader{
			Version: "HSF-BS-103",
			HdrSize: BScanHdrSize,
			StartX:  float64(p.SizeX-1) * p.ScaleX,
			StartY:  float64(i) * p.Distance,
			EndX:    0,
			EndY:    float64(i) * p.Distance,
			NumSeg:  int32(p.NumSeg),
			OffSeg:  models.BScanFieldsSize,
			Quality: 20 + float32(i),
			Shift:   int32(i % 3),
		}
		b.Header.Spare[0] = byte(i)

		b.Boundaries = make([][]float32, p.NumSeg)
		for k := range b.Boundaries {
			curve := make([]float32, p.SizeX)
			for x := range curve {
				curve[x] = float32(10*(k+1) + x + i)
			}
			b.Boundaries[k] = curve
		}

		b.Image = make([]float32, p.SizeX*p.SizeZ)
		for j := range b.Image {
			b.Image[j] = float32(i*1000+j) / 1000
		}
	}

	if p.Center != nil {
		h.GridType = 2
		h.GridOffset = int32(h.ExpectedGridOffset())
		v.Grid = &models.ThicknessGrid{
			Type:          2,
			Diameter:      [3]float64{1, 2.22, 3.45},
			CenterPos:     *p.Center,
			CentralThk:    0.27,
			MinCentralThk: 0.21,
			MaxCentralThk: 0.33,
			TotalVolume:   8.6,
		}
		for s := range v.Grid.Sectors {
			v.Grid.Sectors[s] = models.Sector{Thickness: 0.3 + float32(s)/100, Volume: 0.1 * float32(s+1)}
		}
	}
	return v
}
