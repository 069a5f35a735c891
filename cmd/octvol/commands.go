package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"octvol/internal/logger"
	"octvol/internal/models"
	"octvol/pkg/analysis"
	"octvol/pkg/config"
	"octvol/pkg/crop"
	"octvol/pkg/interpolation"
	"octvol/pkg/visualization"
	"octvol/pkg/vol"
)

type app struct {
	cfg    *config.Config
	log    logger.ILogger
	stdout io.Writer
}

// forEach runs fn over files on at most cfg.Processing.NumWorkers goroutines.
// Results are returned in input order; failures are logged and counted.
func (a *app) forEach(files []string, fn func(path string) ([]byte, error)) ([][]byte, int) {
	numWorkers := a.cfg.Processing.NumWorkers
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	results := make([][]byte, len(files))
	errs := make([]error, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = fn(files[i])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			a.log.Errorf("%s: %v", files[i], err)
			failed++
		}
	}
	return results, failed
}

func exitCode(failed int) int {
	if failed > 0 {
		return 1
	}
	return 0
}

// headerReport is the YAML view of the header fields printed by info
type headerReport struct {
	Version      string      `yaml:"version"`
	ScanPattern  int32       `yaml:"scanPattern"`
	ScanPosition string      `yaml:"scanPosition"`
	ExamTime     string      `yaml:"examTime"`
	PatientID    string      `yaml:"patientId"`
	DOB          string      `yaml:"dob"`
	VisitID      string      `yaml:"visitId"`
	VisitDate    string      `yaml:"visitDate"`
	ScaleX       float64     `yaml:"scaleX"`
	Distance     float64     `yaml:"distance"`
	ScaleZ       float64     `yaml:"scaleZ"`
	SLO          [2]int32    `yaml:"slo,flow"`
	GridType     int32       `yaml:"gridType"`
	GridCenter   *[2]float64 `yaml:"gridCenter,flow,omitempty"`
}

type infoReport struct {
	File    string            `yaml:"file"`
	Header  headerReport      `yaml:"header"`
	Summary *analysis.Summary `yaml:"summary"`
}

func formatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

func newInfoReport(path string, v *models.Volume, s *analysis.Summary) infoReport {
	h := &v.Header
	r := infoReport{
		File: path,
		Header: headerReport{
			Version:      h.Version,
			ScanPattern:  h.ScanPattern,
			ScanPosition: h.ScanPosition,
			ExamTime:     formatDate(h.ExamTime, time.RFC3339),
			PatientID:    h.PatientID,
			DOB:          formatDate(h.DOB, time.DateOnly),
			VisitID:      h.VisitID,
			VisitDate:    formatDate(h.VisitDate, time.DateOnly),
			ScaleX:       h.ScaleX,
			Distance:     h.Distance,
			ScaleZ:       h.ScaleZ,
			SLO:          [2]int32{h.SizeXSlo, h.SizeYSlo},
			GridType:     h.GridType,
		},
		Summary: s,
	}
	if v.Grid != nil {
		c := v.Grid.CenterPos
		r.Header.GridCenter = &c
	}
	return r
}

func (a *app) runInfo(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files, err := inputFiles(fs)
	if err != nil {
		fmt.Fprintf(stderr, "info: %v\n", err)
		return 2
	}

	results, failed := a.forEach(files, func(path string) ([]byte, error) {
		v, err := vol.ReadFile(path)
		if err != nil {
			return nil, err
		}
		s, err := analysis.Summarize(v)
		if err != nil {
			return nil, fmt.Errorf("summarizing: %w", err)
		}
		return yaml.Marshal(newInfoReport(path, v, s))
	})

	first := true
	for _, doc := range results {
		if doc == nil {
			continue
		}
		if !first {
			fmt.Fprintln(a.stdout, "---")
		}
		first = false
		a.stdout.Write(doc)
	}
	return exitCode(failed)
}

// cropOutputPath derives the output file for input by inserting suffix
// before the extension
func cropOutputPath(input, suffix string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return vol.WithExtension(base + suffix)
}

func (a *app) runCrop(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("crop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	size := fs.Float64("size", a.cfg.Processing.CropSize, "Crop size in mm")
	suffix := fs.String("suffix", a.cfg.Processing.OutputSuffix, "Suffix added to output file names")
	output := fs.String("o", "", "Output file (single input only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files, err := inputFiles(fs)
	if err != nil {
		fmt.Fprintf(stderr, "crop: %v\n", err)
		return 2
	}
	if *output != "" && len(files) > 1 {
		fmt.Fprintln(stderr, "crop: -o requires a single input file")
		return 2
	}
	if *output == "" && *suffix == "" {
		fmt.Fprintln(stderr, "crop: an empty suffix would overwrite the input")
		return 2
	}

	_, failed := a.forEach(files, func(path string) ([]byte, error) {
		out := cropOutputPath(path, *suffix)
		if *output != "" {
			out = vol.WithExtension(*output)
		}

		v, err := vol.ReadFile(path)
		if err != nil {
			return nil, err
		}
		before := [2]int32{v.Header.SizeX, v.Header.NumBScans}
		if err := crop.Crop(v, *size); err != nil {
			return nil, fmt.Errorf("cropping %.2f mm: %w", *size, err)
		}
		if err := vol.WriteFile(out, v); err != nil {
			return nil, err
		}
		a.log.Debugf("%s: %dx%d -> %dx%d A-scans x B-scans", path, before[0], before[1], v.Header.SizeX, v.Header.NumBScans)
		a.log.Infof("Cropped %s to %s", path, out)
		return nil, nil
	})
	return exitCode(failed)
}

func (a *app) runExport(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", a.cfg.Export.Format, "Image format: jpeg, png or tiff")
	axis := fs.String("axis", "b", "Slice axis: a, b or z")
	outputDir := fs.String("o", "", "Output directory (single input only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files, err := inputFiles(fs)
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 2
	}
	if *outputDir != "" && len(files) > 1 {
		fmt.Fprintln(stderr, "export: -o requires a single input file")
		return 2
	}

	_, failed := a.forEach(files, func(path string) ([]byte, error) {
		dir := *outputDir
		if dir == "" {
			dir = strings.TrimSuffix(path, filepath.Ext(path)) + "_export"
		}

		v, err := vol.ReadFile(path)
		if err != nil {
			return nil, err
		}
		viewer := visualization.NewViewer(v, a.cfg.Export.Gamma)
		if err := viewer.SetOutput(*format, a.cfg.Export.JPEGQuality); err != nil {
			return nil, err
		}
		if err := viewer.SaveSliceSequence(*axis, filepath.Join(dir, *axis)); err != nil {
			return nil, fmt.Errorf("saving slices: %w", err)
		}

		var slo image.Image = viewer.ReferenceImage()
		if a.cfg.Export.MarkScans {
			slo = viewer.MarkScans(color.RGBA{G: 255, A: 255})
		}
		if err := viewer.SaveImage(slo, filepath.Join(dir, "slo"+viewer.Extension())); err != nil {
			return nil, fmt.Errorf("saving reference image: %w", err)
		}

		if v.NumBoundaries >= 2 {
			if err := a.exportThickness(viewer, v, filepath.Join(dir, "thickness"+viewer.Extension())); err != nil {
				return nil, err
			}
		}
		a.log.Infof("Exported %s to %s", path, dir)
		return nil, nil
	})
	return exitCode(failed)
}

// exportThickness writes the map between the first two boundaries
func (a *app) exportThickness(viewer *visualization.Viewer, v *models.Volume, filename string) error {
	m, err := analysis.ThicknessMap(v, 0, 1)
	if err != nil {
		return fmt.Errorf("building thickness map: %w", err)
	}
	if a.cfg.Export.FillGaps {
		n, err := interpolation.NewGapFiller(v.Header.Distance, v.Header.ScaleX).Fill(m)
		switch {
		case errors.Is(err, interpolation.ErrNoSamples):
			a.log.Debugf("No valid thickness samples to interpolate from")
		case err != nil:
			return fmt.Errorf("filling thickness gaps: %w", err)
		case n > 0:
			a.log.Debugf("Interpolated %d missing thickness samples", n)
		}
	}
	if err := viewer.SaveImage(visualization.ThicknessImage(m, a.cfg.Export.ThicknessRange), filename); err != nil {
		return fmt.Errorf("saving thickness map: %w", err)
	}
	return nil
}
