package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"octvol/internal/models"
)

// Supported output formats
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// Viewer renders the image content of a decoded volume
type Viewer struct {
	// volume is the decoded volume being rendered
	volume *models.Volume

	// gamma is the display exponent applied to raw B-scan intensities
	gamma float64

	// format and quality control how images are written
	format  string
	quality int
}

// NewViewer creates a viewer for v. Raw B-scan intensities are mapped to
// grey levels with v^gamma; the device viewer uses 0.25.
func NewViewer(v *models.Volume, gamma float64) *Viewer {
	return &Viewer{
		volume:  v,
		gamma:   gamma,
		format:  FormatJPEG,
		quality: 90,
	}
}

// SetOutput selects the format and JPEG quality used by the Save methods
func (v *Viewer) SetOutput(format string, quality int) error {
	switch format {
	case FormatJPEG, FormatPNG, FormatTIFF:
	default:
		return fmt.Errorf("invalid format: %s (must be jpeg, png, or tiff)", format)
	}
	v.format = format
	v.quality = quality
	return nil
}

// grey maps a raw intensity to a grey level. Values above 1e30 are the
// device's invalid marker and render black.
func (v *Viewer) grey(val float32) uint8 {
	f := float64(val)
	if math.IsNaN(f) || f <= 0 || f > 1e30 {
		return 0
	}
	return uint8(math.Min(1, math.Pow(f, v.gamma)) * 255)
}

// ExtractSlice extracts a 2D slice from the B-scan stack along the
// specified axis:
//   - "b": the B-scan at index position (width SizeX, height SizeZ)
//   - "a": the cut through all B-scans at A-scan position (width NumBScans, height SizeZ)
//   - "z": the en-face plane at depth position (width SizeX, height NumBScans)
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	sizeX := int(v.volume.Header.SizeX)
	sizeZ := int(v.volume.Header.SizeZ)
	scans := v.volume.BScans
	var img *image.Gray

	switch axis {
	case "b", "B":
		if position >= len(scans) {
			return nil, fmt.Errorf("position %d exceeds b-scan count %d", position, len(scans))
		}
		b := &scans[position]
		img = image.NewGray(image.Rect(0, 0, sizeX, sizeZ))
		for z := 0; z < sizeZ; z++ {
			for x := 0; x < sizeX; x++ {
				img.SetGray(x, z, color.Gray{Y: v.grey(b.ImageAt(z, x, sizeX))})
			}
		}

	case "a", "A":
		if position >= sizeX {
			return nil, fmt.Errorf("position %d exceeds size_x %d", position, sizeX)
		}
		img = image.NewGray(image.Rect(0, 0, len(scans), sizeZ))
		for i := range scans {
			for z := 0; z < sizeZ; z++ {
				img.SetGray(i, z, color.Gray{Y: v.grey(scans[i].ImageAt(z, position, sizeX))})
			}
		}

	case "z", "Z":
		if position >= sizeZ {
			return nil, fmt.Errorf("position %d exceeds size_z %d", position, sizeZ)
		}
		img = image.NewGray(image.Rect(0, 0, sizeX, len(scans)))
		for i := range scans {
			for x := 0; x < sizeX; x++ {
				img.SetGray(x, i, color.Gray{Y: v.grey(scans[i].ImageAt(position, x, sizeX))})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be a, b, or z)", axis)
	}

	return img, nil
}

// ReferenceImage returns the SLO image
func (v *Viewer) ReferenceImage() *image.Gray {
	slo := &v.volume.SLO
	img := image.NewGray(image.Rect(0, 0, slo.Width, slo.Height))
	copy(img.Pix, slo.Pix)
	return img
}

// ThicknessImage renders a thickness map in micrometres as a grey image
// with one row per B-scan. Values are scaled linearly from 0 to maxMicrons;
// missing entries render black.
func ThicknessImage(m *mat.Dense, maxMicrons float64) *image.Gray {
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	if !(maxMicrons > 0) {
		return img
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			val := m.At(r, c)
			if math.IsNaN(val) || val <= 0 {
				continue
			}
			img.SetGray(c, r, color.Gray{Y: uint8(math.Min(1, val/maxMicrons) * 255)})
		}
	}
	return img
}

// MarkScans draws the B-scan lines and the thickness grid centre onto a
// colour copy of the SLO image
func (v *Viewer) MarkScans(lineColour color.Color) *image.RGBA {
	slo := v.ReferenceImage()
	bounds := slo.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), slo, bounds.Min, draw.Src)

	h := &v.volume.Header
	if h.ScaleXSlo <= 0 || h.ScaleYSlo <= 0 {
		return out
	}
	toPixel := func(x, y float64) (float64, float64) {
		return x / h.ScaleXSlo, y / h.ScaleYSlo
	}

	for _, b := range v.volume.BScans {
		x0, y0 := toPixel(b.Header.StartX, b.Header.StartY)
		x1, y1 := toPixel(b.Header.EndX, b.Header.EndY)
		drawLine(out, x0, y0, x1, y1, lineColour)
	}

	if g := v.volume.Grid; g != nil {
		cx, cy := toPixel(g.CenterPos[0], g.CenterPos[1])
		drawLine(out, cx-3, cy, cx+3, cy, lineColour)
		drawLine(out, cx, cy-3, cx, cy+3, lineColour)
	}
	return out
}

// drawLine sets the pixels along a straight line, clipped to the image
func drawLine(img *image.RGBA, x0, y0, x1, y1 float64, c color.Color) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps == 0 {
		steps = 1
	}
	bounds := img.Bounds()
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		p := image.Pt(int(math.Round(x0+(x1-x0)*t)), int(math.Round(y0+(y1-y0)*t)))
		if p.In(bounds) {
			img.Set(p.X, p.Y, c)
		}
	}
}

// SaveImage writes img to filename in the viewer's output format
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	return v.writeImage(file, img)
}

// writeImage encodes img to wc and closes it. A failed close is reported
// when encoding succeeded, since the data may not have reached the file.
func (v *Viewer) writeImage(wc io.WriteCloser, img image.Image) error {
	var err error
	switch v.format {
	case FormatPNG:
		err = png.Encode(wc, img)
	case FormatTIFF:
		err = tiff.Encode(wc, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = jpeg.Encode(wc, img, &jpeg.Options{Quality: v.quality})
	}
	if cerr := wc.Close(); err == nil {
		err = cerr
	}
	return err
}

// Extension returns the file extension for the output format
func (v *Viewer) Extension() string {
	switch v.format {
	case FormatPNG:
		return ".png"
	case FormatTIFF:
		return ".tif"
	default:
		return ".jpg"
	}
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "b", "B":
		maxPos = len(v.volume.BScans)
	case "a", "A":
		maxPos = int(v.volume.Header.SizeX)
	case "z", "Z":
		maxPos = int(v.volume.Header.SizeZ)
	default:
		return fmt.Errorf("invalid axis: %s (must be a, b, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d%s", axis, pos, v.Extension()))
		if err := v.SaveImage(img, filename); err != nil {
			return err
		}
	}

	return nil
}
