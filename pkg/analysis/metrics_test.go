package analysis

import (
	"math"
	"testing"

	"octvol/internal/testvol"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDescribe(t *testing.T) {
	s := Describe([]float64{3, 1, math.NaN(), 2})
	if s.Count != 3 {
		t.Errorf("Expected 3 samples, got %d", s.Count)
	}
	if !almostEqual(s.Mean, 2) || !almostEqual(s.StdDev, 1) {
		t.Errorf("Expected mean 2 and std 1, got %v and %v", s.Mean, s.StdDev)
	}
	if s.Min != 1 || s.Max != 3 || s.Median != 2 {
		t.Errorf("Expected min 1, max 3, median 2, got %v, %v, %v", s.Min, s.Max, s.Median)
	}

	if empty := Describe([]float64{math.NaN()}); empty != (Stats{}) {
		t.Errorf("Expected zero stats for no valid samples, got %+v", empty)
	}

	one := Describe([]float64{7})
	if one.Count != 1 || one.Mean != 7 || one.StdDev != 0 || one.Median != 7 {
		t.Errorf("Expected single sample stats, got %+v", one)
	}
}

func TestThicknessMap(t *testing.T) {
	v := testvol.New(testvol.DefaultParams())
	v.BScans[2].Boundaries[0][3] = math.MaxFloat32

	m, err := ThicknessMap(v, 0, 1)
	if err != nil {
		t.Fatalf("Failed to build thickness map: %v", err)
	}
	r, c := m.Dims()
	if r != 10 || c != 10 {
		t.Fatalf("Expected 10x10 map, got %dx%d", r, c)
	}

	// Boundaries are 10 pixels apart at 3.8 um per pixel
	if got := m.At(0, 0); !almostEqual(got, 38) {
		t.Errorf("Expected 38 um, got %v", got)
	}
	if got := m.At(2, 3); !math.IsNaN(got) {
		t.Errorf("Expected NaN at invalid boundary sample, got %v", got)
	}

	if _, err := ThicknessMap(v, 0, 3); err == nil {
		t.Error("Expected error for a boundary slot out of range")
	}
}

func TestSummarize(t *testing.T) {
	v := testvol.New(testvol.DefaultParams())
	v.BScans[2].Boundaries[0][3] = float32(math.NaN())

	s, err := Summarize(v)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if s.NumBScans != 10 || s.SizeX != 10 || s.SizeZ != 6 {
		t.Errorf("Expected 10x10x6, got %dx%dx%d", s.SizeX, s.NumBScans, s.SizeZ)
	}
	if !almostEqual(s.Quality.Mean, 24.5) || s.Quality.Min != 20 || s.Quality.Max != 29 {
		t.Errorf("Unexpected quality stats %+v", s.Quality)
	}

	if len(s.Boundaries) != 3 {
		t.Fatalf("Expected 3 boundary entries, got %d", len(s.Boundaries))
	}
	if !almostEqual(s.Boundaries[0].Coverage, 0.99) {
		t.Errorf("Expected coverage 0.99 for boundary 1, got %v", s.Boundaries[0].Coverage)
	}
	if s.Boundaries[1].Coverage != 1 {
		t.Errorf("Expected full coverage for boundary 2, got %v", s.Boundaries[1].Coverage)
	}

	if s.Thickness == nil {
		t.Fatal("Expected thickness statistics")
	}
	if s.Thickness.Count != 99 {
		t.Errorf("Expected 99 thickness samples, got %d", s.Thickness.Count)
	}
	if !almostEqual(s.Thickness.Mean, 38) {
		t.Errorf("Expected mean thickness 38 um, got %v", s.Thickness.Mean)
	}
}

func TestSummarizeSingleBoundary(t *testing.T) {
	p := testvol.DefaultParams()
	p.NumSeg = 1
	s, err := Summarize(testvol.New(p))
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if s.Thickness != nil {
		t.Errorf("Expected no thickness statistics with one boundary, got %+v", s.Thickness)
	}
}
