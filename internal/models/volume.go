package models

import (
	"time"
)

// Fixed sizes of the .vol container layout
const (
	// HeaderSize is the size of the global header including its spare region
	HeaderSize = 2048

	// HeaderSpareSize is the reserved tail of the global header
	HeaderSpareSize = 1832

	// BScanFieldsSize is the number of bytes taken by the fixed B-scan header fields
	BScanFieldsSize = 256

	// BScanSpareSize is the reserved tail of the fixed B-scan header fields
	BScanSpareSize = 192

	// NumSectors is the number of sectors in a thickness grid
	NumSectors = 9

	// ThicknessGridSize is the serialized size of a thickness grid
	ThicknessGridSize = 4 + 3*8 + 2*8 + 4*4 + NumSectors*8
)

// GridTypeETDRS is the grid type code of the standard 3-ring (1, 3, 6 mm) grid
const GridTypeETDRS = 3

// GlobalHeader holds the fixed fields of the 2048 byte file header in file order
type GlobalHeader struct {
	Version string

	// SizeX is the number of A-scans per B-scan
	SizeX int32

	// NumBScans is the number of B-scans in the volume
	NumBScans int32

	// SizeZ is the number of samples per A-scan
	SizeZ int32

	// ScaleX is the A-scan pitch in mm
	ScaleX float64

	// Distance is the B-scan pitch in mm
	Distance float64

	// ScaleZ is the axial sample size in mm
	ScaleZ float64

	// SizeXSlo and SizeYSlo are the reference image dimensions in pixels
	SizeXSlo int32
	SizeYSlo int32

	// ScaleXSlo and ScaleYSlo are the reference image pixel sizes in mm
	ScaleXSlo float64
	ScaleYSlo float64

	FieldSizeSlo int32
	ScanFocus    float64
	ScanPosition string

	// RawExamTime is the exam time in 100ns ticks since 1601-01-01
	RawExamTime uint64

	ScanPattern int32

	// BScanHdrSize is the byte size of each B-scan header including segmentation
	BScanHdrSize int32

	ID          string
	ReferenceID string
	PID         int32
	PatientID   string
	Padding     [3]byte

	// RawDOB is the date of birth in days since 1899-12-30
	RawDOB float64

	VID     int32
	VisitID string

	// RawVisitDate is the visit date in days since 1899-12-30
	RawVisitDate float64

	// GridType is zero when the file carries no thickness grid
	GridType int32

	// GridOffset is the absolute byte offset of the thickness grid
	GridOffset int32

	Spare [HeaderSpareSize]byte

	// ExamTime, DOB and VisitDate are derived from the raw fields on decode
	// and are never written back
	ExamTime  time.Time `yaml:"-"`
	DOB       time.Time `yaml:"-"`
	VisitDate time.Time `yaml:"-"`
}

// ReferenceImage is the SLO en-face image stored row-major
type ReferenceImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// At returns the sample at column x, row y
func (r *ReferenceImage) At(x, y int) uint8 {
	return r.Pix[y*r.Width+x]
}

// BScanHeader holds the fixed fields of one B-scan header
type BScanHeader struct {
	Version string
	HdrSize int32

	// StartX, StartY, EndX and EndY locate the scan line on the reference image in mm
	StartX float64
	StartY float64
	EndX   float64
	EndY   float64

	// NumSeg is the number of boundary lines this record reports
	NumSeg int32

	// OffSeg is the offset of the segmentation block from the record start
	OffSeg int32

	Quality float32
	Shift   int32
	Spare   [BScanSpareSize]byte
}

// BScan is one cross-sectional image with its header and segmentation
type BScan struct {
	Header BScanHeader

	// Boundaries holds one curve of SizeX values per boundary slot
	Boundaries [][]float32

	// Image holds SizeZ rows of SizeX samples
	Image []float32
}

// ImageAt returns the sample at depth z and A-scan x
func (b *BScan) ImageAt(z, x, sizeX int) float32 {
	return b.Image[z*sizeX+x]
}

// Sector holds the statistics of one thickness grid sector
type Sector struct {
	Thickness float32
	Volume    float32
}

// ThicknessGrid is the thickness map summary stored after the B-scans
type ThicknessGrid struct {
	Type int32

	// Diameter holds the ring diameters in mm
	Diameter [3]float64

	// CenterPos is the grid centre on the reference image in mm
	CenterPos [2]float64

	CentralThk    float32
	MinCentralThk float32
	MaxCentralThk float32
	TotalVolume   float32

	Sectors [NumSectors]Sector
}

// Volume is a decoded .vol file
type Volume struct {
	Header GlobalHeader
	SLO    ReferenceImage
	BScans []BScan

	// NumBoundaries is the number of boundary slots per B-scan, fixed by
	// the first record on decode
	NumBoundaries int

	// Grid is nil when Header.GridType is zero
	Grid *ThicknessGrid
}

// SLOBytes returns the byte size of the reference image
func (h *GlobalHeader) SLOBytes() int64 {
	return int64(h.SizeXSlo) * int64(h.SizeYSlo)
}

// BScanStride returns the byte distance between consecutive B-scan records
func (h *GlobalHeader) BScanStride() int64 {
	return int64(h.BScanHdrSize) + int64(h.SizeX)*int64(h.SizeZ)*4
}

// BScanOffset returns the absolute offset of record i
func (h *GlobalHeader) BScanOffset(i int) int64 {
	return HeaderSize + h.SLOBytes() + int64(i)*h.BScanStride()
}

// ExpectedGridOffset returns the offset directly after the last B-scan record
func (h *GlobalHeader) ExpectedGridOffset() int64 {
	return h.BScanOffset(int(h.NumBScans))
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Header:        v.Header,
		SLO:           v.SLO,
		NumBoundaries: v.NumBoundaries,
	}
	out.SLO.Pix = append([]uint8(nil), v.SLO.Pix...)

	out.BScans = make([]BScan, len(v.BScans))
	for i, b := range v.BScans {
		nb := BScan{
			Header:     b.Header,
			Image:      append([]float32(nil), b.Image...),
			Boundaries: make([][]float32, len(b.Boundaries)),
		}
		for k, curve := range b.Boundaries {
			nb.Boundaries[k] = append([]float32(nil), curve...)
		}
		out.BScans[i] = nb
	}

	if v.Grid != nil {
		g := *v.Grid
		out.Grid = &g
	}
	return out
}
