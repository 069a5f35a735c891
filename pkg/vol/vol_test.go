package vol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"octvol/internal/models"
	"octvol/internal/testvol"
)

var volumeOpts = cmp.Options{
	cmpopts.EquateNaNs(),
	cmpopts.EquateEmpty(),
}

// ignoreDerived drops the calendar fields a hand-built volume does not carry
var ignoreDerived = cmpopts.IgnoreFields(models.GlobalHeader{}, "ExamTime", "DOB", "VisitDate")

func mustEncode(t *testing.T, v *models.Volume) []byte {
	t.Helper()
	data, err := EncodeBytes(v)
	if err != nil {
		t.Fatalf("Failed to encode volume: %v", err)
	}
	return data
}

func mustDecode(t *testing.T, data []byte) *models.Volume {
	t.Helper()
	v, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("Failed to decode volume: %v", err)
	}
	return v
}

func TestRoundTrip(t *testing.T) {
	orig := testvol.New(testvol.DefaultParams())
	data := mustEncode(t, orig)

	wantLen := 2048 + 8*5 + 10*(testvol.BScanHdrSize+10*6*4) + models.ThicknessGridSize
	if len(data) != wantLen {
		t.Fatalf("Expected %d bytes, got %d", wantLen, len(data))
	}

	decoded := mustDecode(t, data)
	if diff := cmp.Diff(orig, decoded, volumeOpts, ignoreDerived); diff != "" {
		t.Errorf("Decoded volume differs from original (-want +got):\n%s", diff)
	}

	// A decoded volume must survive a second pass unchanged, derived fields included
	again := mustDecode(t, mustEncode(t, decoded))
	if diff := cmp.Diff(decoded, again, volumeOpts); diff != "" {
		t.Errorf("Second round trip differs (-want +got):\n%s", diff)
	}
	if !bytes.Equal(data, mustEncode(t, again)) {
		t.Error("Re-encoded bytes differ from the first encoding")
	}
}

func TestEncodeOffsets(t *testing.T) {
	v := testvol.New(testvol.DefaultParams())
	data := mustEncode(t, v)
	le := binary.LittleEndian

	if got := string(data[:11]); got != "HSF-OCT-103" {
		t.Errorf("Expected version at offset 0, got %q", got)
	}
	if data[11] != 0 {
		t.Errorf("Expected NUL padding after version, got %d", data[11])
	}
	if got := int32(le.Uint32(data[12:])); got != 10 {
		t.Errorf("Expected size_x 10 at offset 12, got %d", got)
	}
	if got := math.Float64frombits(le.Uint64(data[24:])); got != 0.5 {
		t.Errorf("Expected scale_x 0.5 at offset 24, got %v", got)
	}
	if got := le.Uint64(data[88:]); got != v.Header.RawExamTime {
		t.Errorf("Expected raw exam time at offset 88, got %d", got)
	}
	if got := int32(le.Uint32(data[100:])); got != testvol.BScanHdrSize {
		t.Errorf("Expected b_scan_hdr_size at offset 100, got %d", got)
	}
	if got := string(data[140:150]); got != "PAT-000042" {
		t.Errorf("Expected patient id at offset 140, got %q", got)
	}
	if !bytes.Equal(data[161:164], []byte{1, 2, 3}) {
		t.Errorf("Expected padding at offset 161, got %v", data[161:164])
	}
	if got := int32(le.Uint32(data[212:])); int64(got) != v.Header.ExpectedGridOffset() {
		t.Errorf("Expected grid offset at 212 to be %d, got %d", v.Header.ExpectedGridOffset(), got)
	}
	if !bytes.Equal(data[216:2048], v.Header.Spare[:]) {
		t.Error("Expected spare region to be written verbatim")
	}
	if !bytes.Equal(data[2048:2048+40], v.SLO.Pix) {
		t.Error("Expected reference image directly after the header")
	}

	// Second record
	base := int64(2048 + 40 + 1*(testvol.BScanHdrSize+10*6*4))
	if got := math.Float64frombits(le.Uint64(data[base+24:])); got != v.BScans[1].Header.StartY {
		t.Errorf("Expected start_y %v, got %v", v.BScans[1].Header.StartY, got)
	}
	seg := base + models.BScanFieldsSize
	if got := math.Float32frombits(le.Uint32(data[seg+4*10:])); got != v.BScans[1].Boundaries[1][0] {
		t.Errorf("Expected second boundary to follow the first, got %v", got)
	}
	img := base + testvol.BScanHdrSize
	if got := math.Float32frombits(le.Uint32(data[img+4*7:])); got != v.BScans[1].Image[7] {
		t.Errorf("Expected image sample %v, got %v", v.BScans[1].Image[7], got)
	}

	grid := v.Header.ExpectedGridOffset()
	if got := int32(le.Uint32(data[grid:])); got != v.Grid.Type {
		t.Errorf("Expected grid type %d, got %d", v.Grid.Type, got)
	}
	last := grid + models.ThicknessGridSize - 4
	if got := math.Float32frombits(le.Uint32(data[last:])); got != v.Grid.Sectors[8].Volume {
		t.Errorf("Expected sector 9 volume %v at the end, got %v", v.Grid.Sectors[8].Volume, got)
	}
}

func TestDecodeDerivedDates(t *testing.T) {
	v := mustDecode(t, mustEncode(t, testvol.New(testvol.DefaultParams())))
	h := v.Header

	if !h.ExamTime.Equal(ExamTimeFromRaw(h.RawExamTime)) {
		t.Errorf("Exam time %v does not match raw value %d", h.ExamTime, h.RawExamTime)
	}
	if got := h.DOB.Format("2006-01-02"); got != "1980-01-01" {
		t.Errorf("Expected date of birth 1980-01-01, got %s", got)
	}
	if got := h.VisitDate.Format("2006-01-02 15:04"); got != "2017-01-01 12:00" {
		t.Errorf("Expected visit date 2017-01-01 12:00, got %s", got)
	}
}

func TestDecodeWithoutGrid(t *testing.T) {
	p := testvol.DefaultParams()
	p.Center = nil
	data := mustEncode(t, testvol.New(p))

	v := mustDecode(t, data)
	if v.Grid != nil {
		t.Errorf("Expected no thickness grid, got %+v", v.Grid)
	}
	if int64(len(data)) != v.Header.ExpectedGridOffset() {
		t.Errorf("Expected file to end after the b-scans at %d, got %d", v.Header.ExpectedGridOffset(), len(data))
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := mustEncode(t, testvol.New(testvol.DefaultParams()))

	cuts := map[string]int{
		"empty":        0,
		"mid header":   100,
		"header only":  2048,
		"mid slo":      2048 + 20,
		"mid b-scans":  2048 + 40 + 3*752 + 10,
		"last image":   len(data) - models.ThicknessGridSize - 1,
		"mid grid":     len(data) - 10,
		"missing byte": len(data) - 1,
	}
	for name, n := range cuts {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBytes(data[:n])
			if err == nil {
				t.Fatalf("Expected error decoding %d of %d bytes", n, len(data))
			}
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Expected ErrTruncated, got %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Errorf("Expected *FormatError, got %T", err)
			}
		})
	}
}

func TestDecodeNegativeSize(t *testing.T) {
	data := mustEncode(t, testvol.New(testvol.DefaultParams()))
	binary.LittleEndian.PutUint32(data[16:], uint32(0xFFFFFFFF))

	_, err := DecodeBytes(data)
	if !errors.Is(err, ErrInconsistent) {
		t.Errorf("Expected ErrInconsistent for negative num_b_scans, got %v", err)
	}
}

func TestDecodeHugeDimensions(t *testing.T) {
	data := mustEncode(t, testvol.New(testvol.DefaultParams()))
	binary.LittleEndian.PutUint32(data[12:], 0x7FFFFFFF)
	binary.LittleEndian.PutUint32(data[20:], 0x7FFFFFFF)

	_, err := DecodeBytes(data)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Expected ErrTruncated for oversized dimensions, got %v", err)
	}
}

// TestDecodeHostileCounts verifies that record and boundary counts are
// bounded by the input before anything is allocated for them
func TestDecodeHostileCounts(t *testing.T) {
	// Empty records: only the 256 fixed bytes per record bound the count
	for _, n := range []uint32{2000000, 0x7FFFFFFF} {
		data := make([]byte, models.HeaderSize+40)
		binary.LittleEndian.PutUint32(data[16:], n)

		_, err := DecodeBytes(data)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("Expected ErrTruncated for %d empty records, got %v", n, err)
		}
	}

	// Record 0 starts right after the 8x5 reference image
	const numSegAt = models.HeaderSize + 8*5 + 48
	tests := []struct {
		name   string
		sizeX  uint32
		numSeg uint32
		target error
	}{
		{"beyond input", 10, 20000000, ErrTruncated},
		{"beyond record", 10, 100, ErrInconsistent},
		{"empty lines", 0, 20000000, ErrInconsistent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mustEncode(t, testvol.New(testvol.DefaultParams()))
			binary.LittleEndian.PutUint32(data[12:], tt.sizeX)
			binary.LittleEndian.PutUint32(data[numSegAt:], tt.numSeg)

			_, err := DecodeBytes(data)
			if !errors.Is(err, tt.target) {
				t.Fatalf("Expected %v, got %v", tt.target, err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) || fe.Field != "b_scan.num_seg" {
				t.Errorf("Expected FormatError on b_scan.num_seg, got %v", err)
			}
		})
	}
}

func TestBoundarySchemaFixedByFirstRecord(t *testing.T) {
	v := testvol.New(testvol.DefaultParams())
	v.BScans[4].Header.NumSeg = 1

	decoded := mustDecode(t, mustEncode(t, v))
	if decoded.NumBoundaries != 3 {
		t.Fatalf("Expected 3 boundary slots, got %d", decoded.NumBoundaries)
	}
	b := decoded.BScans[4]
	if len(b.Boundaries) != 3 {
		t.Fatalf("Expected 3 boundary slots on record 4, got %d", len(b.Boundaries))
	}
	if b.Boundaries[0][2] != v.BScans[4].Boundaries[0][2] {
		t.Errorf("Expected first boundary to be read, got %v", b.Boundaries[0][2])
	}
	for k := 1; k < 3; k++ {
		for x, val := range b.Boundaries[k] {
			if !math.IsNaN(float64(val)) {
				t.Fatalf("Expected NaN in unreported boundary %d at %d, got %v", k+1, x, val)
			}
		}
	}

	// A later record may not report more lines than the first
	v = testvol.New(testvol.DefaultParams())
	v.BScans[0].Header.NumSeg = 1
	_, err := DecodeBytes(mustEncode(t, v))
	if !errors.Is(err, ErrInconsistent) {
		t.Errorf("Expected ErrInconsistent when a record exceeds the boundary schema, got %v", err)
	}
}

func TestEncodeFieldTooWide(t *testing.T) {
	tests := []struct {
		name  string
		apply func(v *models.Volume)
	}{
		{"patient id", func(v *models.Volume) { v.Header.PatientID = strings.Repeat("P", 22) }},
		{"scan position", func(v *models.Volume) { v.Header.ScanPosition = "LEFT" + "X" }},
		{"b-scan version", func(v *models.Volume) { v.BScans[2].Header.Version = strings.Repeat("V", 13) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testvol.New(testvol.DefaultParams())
			tt.apply(v)
			_, err := EncodeBytes(v)
			if !errors.Is(err, ErrFieldTooWide) {
				t.Errorf("Expected ErrFieldTooWide, got %v", err)
			}
		})
	}

	// Exactly filling the slot is fine
	v := testvol.New(testvol.DefaultParams())
	v.Header.PatientID = strings.Repeat("P", 21)
	decoded := mustDecode(t, mustEncode(t, v))
	if decoded.Header.PatientID != v.Header.PatientID {
		t.Errorf("Expected %q, got %q", v.Header.PatientID, decoded.Header.PatientID)
	}
}

func TestEncodeInconsistent(t *testing.T) {
	tests := []struct {
		name  string
		apply func(v *models.Volume)
	}{
		{"short image", func(v *models.Volume) { v.BScans[0].Image = v.BScans[0].Image[:5] }},
		{"short boundary", func(v *models.Volume) { v.BScans[1].Boundaries[2] = v.BScans[1].Boundaries[2][:9] }},
		{"scan count", func(v *models.Volume) { v.BScans = v.BScans[:9] }},
		{"slo size", func(v *models.Volume) { v.SLO.Pix = v.SLO.Pix[:39] }},
		{"missing grid", func(v *models.Volume) { v.Grid = nil }},
		{"too many lines", func(v *models.Volume) { v.BScans[3].Header.NumSeg = 4 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testvol.New(testvol.DefaultParams())
			tt.apply(v)
			_, err := EncodeBytes(v)
			if !errors.Is(err, ErrInconsistent) {
				t.Errorf("Expected ErrInconsistent, got %v", err)
			}
		})
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.vol")
	orig := testvol.New(testvol.DefaultParams())

	if err := WriteFile(path, orig); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	v, err := ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if diff := cmp.Diff(orig, v, volumeOpts, ignoreDerived); diff != "" {
		t.Errorf("File round trip differs (-want +got):\n%s", diff)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()
	fromReader, err := Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode from reader: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, fromReader); err != nil {
		t.Fatalf("Failed to encode to writer: %v", err)
	}
	onDisk, _ := os.ReadFile(path)
	if !bytes.Equal(buf.Bytes(), onDisk) {
		t.Error("Expected Encode output to match the written file")
	}
}

func TestExtension(t *testing.T) {
	if !HasExtension("/data/EYE00023_8370.vol") || !HasExtension("scan.VOL") {
		t.Error("Expected .vol paths to be accepted")
	}
	if HasExtension("scan.vol.bak") || HasExtension("scan") {
		t.Error("Expected non .vol paths to be rejected")
	}
	if got := WithExtension("out/cropped"); got != "out/cropped.vol" {
		t.Errorf("Expected out/cropped.vol, got %s", got)
	}
	if got := WithExtension("out/cropped.vol"); got != "out/cropped.vol" {
		t.Errorf("Expected path unchanged, got %s", got)
	}
}
