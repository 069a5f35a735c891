package vol

import (
	"fmt"
	"io"
	"math"
	"os"

	"octvol/internal/models"
)

// Decode reads a whole .vol file from r
func Decode(r io.Reader) (*models.Volume, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading vol data: %w", err)
	}
	return DecodeBytes(data)
}

// ReadFile decodes the .vol file at path. The path is not checked for the
// .vol extension.
func ReadFile(path string) (*models.Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading vol file: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes a complete .vol file held in memory
func DecodeBytes(data []byte) (*models.Volume, error) {
	r := &reader{buf: data}
	v := &models.Volume{}

	readHeader(r, &v.Header)
	if r.err != nil {
		return nil, r.err
	}
	h := &v.Header
	if err := checkLayout(h, int64(len(data))); err != nil {
		return nil, err
	}

	// Reference image
	v.SLO = models.ReferenceImage{
		Width:  int(h.SizeXSlo),
		Height: int(h.SizeYSlo),
		Pix:    make([]uint8, h.SLOBytes()),
	}
	r.seek(models.HeaderSize)
	r.bytes(v.SLO.Pix, "slo")

	// B-scans with their headers and segmentation
	v.BScans = make([]models.BScan, h.NumBScans)
	for i := range v.BScans {
		if err := readBScan(r, v, i); err != nil {
			return nil, err
		}
	}

	if h.GridType != 0 {
		r.seek(int64(h.GridOffset))
		v.Grid = readGrid(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	return v, nil
}

func readHeader(r *reader, h *models.GlobalHeader) {
	r.seek(0)
	h.Version = r.cstring(12, "version")
	h.SizeX = r.int32("size_x")
	h.NumBScans = r.int32("num_b_scans")
	h.SizeZ = r.int32("size_z")
	h.ScaleX = r.float64("scale_x")
	h.Distance = r.float64("distance")
	h.ScaleZ = r.float64("scale_z")
	h.SizeXSlo = r.int32("size_x_slo")
	h.SizeYSlo = r.int32("size_y_slo")
	h.ScaleXSlo = r.float64("scale_x_slo")
	h.ScaleYSlo = r.float64("scale_y_slo")
	h.FieldSizeSlo = r.int32("field_size_slo")
	h.ScanFocus = r.float64("scan_focus")
	h.ScanPosition = r.cstring(4, "scan_position")
	h.RawExamTime = r.uint64("exam_time")
	h.ScanPattern = r.int32("scan_pattern")
	h.BScanHdrSize = r.int32("b_scan_hdr_size")
	h.ID = r.cstring(16, "id")
	h.ReferenceID = r.cstring(16, "reference_id")
	h.PID = r.int32("pid")
	h.PatientID = r.cstring(21, "patient_id")
	r.bytes(h.Padding[:], "padding")
	h.RawDOB = r.float64("dob")
	h.VID = r.int32("vid")
	h.VisitID = r.cstring(24, "visit_id")
	h.RawVisitDate = r.float64("visit_date")
	h.GridType = r.int32("grid_type")
	h.GridOffset = r.int32("grid_offset")
	r.bytes(h.Spare[:], "spare")

	h.ExamTime = ExamTimeFromRaw(h.RawExamTime)
	h.DOB = BirthDateFromRaw(h.RawDOB)
	h.VisitDate = DateFromRaw(h.RawVisitDate)
}

// checkLayout rejects negative sizes and inputs too short to hold the
// B-scan region before anything large is allocated
func checkLayout(h *models.GlobalHeader, size int64) error {
	dims := []struct {
		name string
		val  int32
	}{
		{"size_x", h.SizeX},
		{"num_b_scans", h.NumBScans},
		{"size_z", h.SizeZ},
		{"size_x_slo", h.SizeXSlo},
		{"size_y_slo", h.SizeYSlo},
		{"b_scan_hdr_size", h.BScanHdrSize},
	}
	for _, d := range dims {
		if d.val < 0 {
			return &FormatError{Op: "decode", Field: d.name, Offset: -1,
				Err: fmt.Errorf("%w: negative value %d", ErrInconsistent, d.val)}
		}
	}

	// Divisions keep the products below from overflowing on hostile headers
	avail := size - models.HeaderSize
	truncated := &FormatError{Op: "decode", Field: "b_scans", Offset: size, Err: ErrTruncated}
	if avail < 0 || h.SLOBytes() > avail {
		return truncated
	}
	avail -= h.SLOBytes()
	if h.NumBScans == 0 {
		return nil
	}
	if int64(h.SizeX) > avail/4 {
		return truncated
	}
	if h.SizeZ > 0 && int64(h.SizeX) > avail/4/int64(h.SizeZ) {
		return truncated
	}
	// Every record reads its fixed fields even when the stride is smaller
	if int64(h.NumBScans) > avail/recordSpan(h) {
		return truncated
	}
	return nil
}

// recordSpan is the input a single B-scan record accounts for
func recordSpan(h *models.GlobalHeader) int64 {
	return max(h.BScanStride(), models.BScanFieldsSize)
}

// checkSegmentation bounds the boundary lines of a record by the input
// length and by the record span, so the boundary slots allocated per
// record never exceed what the file can hold
func checkSegmentation(h *models.GlobalHeader, bh *models.BScanHeader, base, size int64, i int) error {
	if bh.NumSeg == 0 {
		return nil
	}
	if bh.OffSeg < 0 {
		return &FormatError{Op: "decode", Field: "b_scan.off_seg", Offset: base + 52,
			Err: fmt.Errorf("%w: negative segmentation offset %d in b-scan %d", ErrInconsistent, bh.OffSeg, i)}
	}
	lineBytes := int64(h.SizeX) * 4
	start := base + int64(bh.OffSeg)
	if lineBytes > 0 && (start > size || int64(bh.NumSeg) > (size-start)/lineBytes) {
		return &FormatError{Op: "decode", Field: "b_scan.num_seg", Offset: base + 48,
			Err: fmt.Errorf("%w: %d boundaries of %d bytes from offset %d", ErrTruncated, bh.NumSeg, lineBytes, start)}
	}
	if int64(bh.NumSeg) > recordSpan(h)/max(lineBytes, 1) {
		return &FormatError{Op: "decode", Field: "b_scan.num_seg", Offset: base + 48,
			Err: fmt.Errorf("%w: %d boundaries do not fit a %d byte record", ErrInconsistent, bh.NumSeg, recordSpan(h))}
	}
	return nil
}

func readBScan(r *reader, v *models.Volume, i int) error {
	h := &v.Header
	base := h.BScanOffset(i)
	b := &v.BScans[i]
	bh := &b.Header

	r.seek(base)
	bh.Version = r.cstring(12, "b_scan.version")
	bh.HdrSize = r.int32("b_scan.b_scan_hdr_size")
	bh.StartX = r.float64("b_scan.start_x")
	bh.StartY = r.float64("b_scan.start_y")
	bh.EndX = r.float64("b_scan.end_x")
	bh.EndY = r.float64("b_scan.end_y")
	bh.NumSeg = r.int32("b_scan.num_seg")
	bh.OffSeg = r.int32("b_scan.off_seg")
	bh.Quality = r.float32("b_scan.quality")
	bh.Shift = r.int32("b_scan.shift")
	r.bytes(bh.Spare[:], "b_scan.spare")
	if r.err != nil {
		return r.err
	}

	if bh.NumSeg < 0 {
		return &FormatError{Op: "decode", Field: "b_scan.num_seg", Offset: base + 48,
			Err: fmt.Errorf("%w: negative boundary count %d in b-scan %d", ErrInconsistent, bh.NumSeg, i)}
	}
	if err := checkSegmentation(h, bh, base, int64(len(r.buf)), i); err != nil {
		return err
	}
	if i == 0 {
		v.NumBoundaries = int(bh.NumSeg)
	}
	if int(bh.NumSeg) > v.NumBoundaries {
		return &FormatError{Op: "decode", Field: "b_scan.num_seg", Offset: base + 48,
			Err: fmt.Errorf("%w: b-scan %d reports %d boundaries, first b-scan reported %d",
				ErrInconsistent, i, bh.NumSeg, v.NumBoundaries)}
	}

	// Slots the record does not report stay NaN
	b.Boundaries = make([][]float32, v.NumBoundaries)
	for k := range b.Boundaries {
		b.Boundaries[k] = make([]float32, h.SizeX)
		if k >= int(bh.NumSeg) {
			nan := float32(math.NaN())
			for x := range b.Boundaries[k] {
				b.Boundaries[k][x] = nan
			}
		}
	}
	r.seek(base + int64(bh.OffSeg))
	for k := 0; k < int(bh.NumSeg); k++ {
		r.float32s(b.Boundaries[k], fmt.Sprintf("b_scan.boundary_%d", k+1))
	}

	b.Image = make([]float32, int64(h.SizeX)*int64(h.SizeZ))
	r.seek(base + int64(h.BScanHdrSize))
	r.float32s(b.Image, "b_scan.image")
	return r.err
}

func readGrid(r *reader) *models.ThicknessGrid {
	g := &models.ThicknessGrid{}
	g.Type = r.int32("grid.type")
	for i := range g.Diameter {
		g.Diameter[i] = r.float64("grid.diameter")
	}
	for i := range g.CenterPos {
		g.CenterPos[i] = r.float64("grid.center_pos")
	}
	g.CentralThk = r.float32("grid.central_thk")
	g.MinCentralThk = r.float32("grid.min_central_thk")
	g.MaxCentralThk = r.float32("grid.max_central_thk")
	g.TotalVolume = r.float32("grid.total_volume")
	for i := range g.Sectors {
		g.Sectors[i].Thickness = r.float32("grid.sector.thickness")
		g.Sectors[i].Volume = r.float32("grid.sector.volume")
	}
	return g
}
