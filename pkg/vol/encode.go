package vol

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"octvol/internal/models"
)

// Encode writes v to w in the .vol layout. Every field goes to the offset
// Decode would read it from given v's current header.
func Encode(w io.Writer, v *models.Volume) error {
	data, err := EncodeBytes(v)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error writing vol data: %w", err)
	}
	return nil
}

// WriteFile encodes v into the file at path, replacing it
func WriteFile(path string, v *models.Volume) error {
	data, err := EncodeBytes(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing vol file: %w", err)
	}
	return nil
}

// EncodeBytes returns the serialized form of v
func EncodeBytes(v *models.Volume) ([]byte, error) {
	if err := checkVolume(v); err != nil {
		return nil, err
	}
	h := &v.Header

	w := newWriter(h.ExpectedGridOffset())
	writeHeader(w, h)

	w.seek(models.HeaderSize)
	w.bytes(v.SLO.Pix)

	for i := range v.BScans {
		writeBScan(w, v, i)
	}

	if h.GridType != 0 {
		w.seek(int64(h.GridOffset))
		writeGrid(w, v.Grid)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func inconsistent(field string, format string, args ...interface{}) error {
	return &FormatError{
		Op:     "encode",
		Field:  field,
		Offset: -1,
		Err:    fmt.Errorf("%w: "+format, append([]interface{}{ErrInconsistent}, args...)...),
	}
}

// checkVolume verifies that every array matches the sizes the header
// declares, since the header alone drives the layout
func checkVolume(v *models.Volume) error {
	h := &v.Header
	if h.SizeX < 0 || h.SizeZ < 0 || h.SizeXSlo < 0 || h.SizeYSlo < 0 || h.BScanHdrSize < 0 {
		return inconsistent("header", "negative size")
	}
	if int(h.SizeXSlo) != v.SLO.Width || int(h.SizeYSlo) != v.SLO.Height ||
		int64(len(v.SLO.Pix)) != h.SLOBytes() {
		return inconsistent("slo", "reference image is %dx%d with %d samples, header says %dx%d",
			v.SLO.Width, v.SLO.Height, len(v.SLO.Pix), h.SizeXSlo, h.SizeYSlo)
	}
	if int(h.NumBScans) != len(v.BScans) {
		return inconsistent("num_b_scans", "header says %d, volume has %d", h.NumBScans, len(v.BScans))
	}
	imageLen := int64(h.SizeX) * int64(h.SizeZ)
	for i, b := range v.BScans {
		if int64(len(b.Image)) != imageLen {
			return inconsistent("b_scan.image", "b-scan %d has %d samples, want %d", i, len(b.Image), imageLen)
		}
		if b.Header.NumSeg > 0 && b.Header.OffSeg < 0 {
			return inconsistent("b_scan.off_seg", "b-scan %d has negative segmentation offset %d", i, b.Header.OffSeg)
		}
		if b.Header.NumSeg < 0 || int(b.Header.NumSeg) > len(b.Boundaries) {
			return inconsistent("b_scan.num_seg", "b-scan %d reports %d boundaries, has %d",
				i, b.Header.NumSeg, len(b.Boundaries))
		}
		for k := 0; k < int(b.Header.NumSeg); k++ {
			if len(b.Boundaries[k]) != int(h.SizeX) {
				return inconsistent("b_scan.boundary", "b-scan %d boundary %d has %d values, want %d",
					i, k+1, len(b.Boundaries[k]), h.SizeX)
			}
		}
	}
	if h.GridType != 0 {
		if v.Grid == nil {
			return inconsistent("grid", "grid type %d without thickness grid", h.GridType)
		}
		if h.GridOffset < 0 {
			return inconsistent("grid_offset", "negative offset %d", h.GridOffset)
		}
	}
	return nil
}

func writeHeader(w *writer, h *models.GlobalHeader) {
	w.seek(0)
	w.cstring(h.Version, 12, "version")
	w.int32(h.SizeX)
	w.int32(h.NumBScans)
	w.int32(h.SizeZ)
	w.float64(h.ScaleX)
	w.float64(h.Distance)
	w.float64(h.ScaleZ)
	w.int32(h.SizeXSlo)
	w.int32(h.SizeYSlo)
	w.float64(h.ScaleXSlo)
	w.float64(h.ScaleYSlo)
	w.int32(h.FieldSizeSlo)
	w.float64(h.ScanFocus)
	w.cstring(h.ScanPosition, 4, "scan_position")
	w.uint64(h.RawExamTime)
	w.int32(h.ScanPattern)
	w.int32(h.BScanHdrSize)
	w.cstring(h.ID, 16, "id")
	w.cstring(h.ReferenceID, 16, "reference_id")
	w.int32(h.PID)
	w.cstring(h.PatientID, 21, "patient_id")
	w.bytes(h.Padding[:])
	w.float64(h.RawDOB)
	w.int32(h.VID)
	w.cstring(h.VisitID, 24, "visit_id")
	w.float64(h.RawVisitDate)
	w.int32(h.GridType)
	w.int32(h.GridOffset)
	w.bytes(h.Spare[:])
}

// writeBScan writes header, segmentation and image in that order. When a
// segmentation block runs into the image region the image bytes are kept.
func writeBScan(w *writer, v *models.Volume, i int) {
	h := &v.Header
	base := h.BScanOffset(i)
	b := &v.BScans[i]
	bh := &b.Header

	w.seek(base)
	w.cstring(bh.Version, 12, "b_scan.version")
	w.int32(bh.HdrSize)
	w.float64(bh.StartX)
	w.float64(bh.StartY)
	w.float64(bh.EndX)
	w.float64(bh.EndY)
	w.int32(bh.NumSeg)
	w.int32(bh.OffSeg)
	w.float32(bh.Quality)
	w.int32(bh.Shift)
	w.bytes(bh.Spare[:])

	w.seek(base + int64(bh.OffSeg))
	for k := 0; k < int(bh.NumSeg); k++ {
		w.float32s(b.Boundaries[k])
	}

	w.seek(base + int64(h.BScanHdrSize))
	w.float32s(b.Image)
}

func writeGrid(w *writer, g *models.ThicknessGrid) {
	w.int32(g.Type)
	for _, d := range g.Diameter {
		w.float64(d)
	}
	for _, c := range g.CenterPos {
		w.float64(c)
	}
	w.float32(g.CentralThk)
	w.float32(g.MinCentralThk)
	w.float32(g.MaxCentralThk)
	w.float32(g.TotalVolume)
	for _, s := range g.Sectors {
		w.float32(s.Thickness)
		w.float32(s.Volume)
	}
}
