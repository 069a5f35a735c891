package vol

import (
	"math"
	"testing"
	"time"
)

func TestExamTimeFromRaw(t *testing.T) {
	tests := []struct {
		raw  uint64
		want time.Time
	}{
		{116444736000000000, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{0, time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)},
		{131482335000000000, time.Date(2017, 8, 26, 15, 5, 0, 0, time.UTC)},
		{131482335001234567, time.Date(2017, 8, 26, 15, 5, 0, 123456700, time.UTC)},
	}

	for _, tt := range tests {
		got := ExamTimeFromRaw(tt.raw)
		if !got.Equal(tt.want) {
			t.Errorf("ExamTimeFromRaw(%d): expected %v, got %v", tt.raw, tt.want, got)
		}
		if again := ExamTimeFromRaw(tt.raw); !again.Equal(got) {
			t.Errorf("ExamTimeFromRaw(%d) not deterministic: %v then %v", tt.raw, got, again)
		}
	}
}

func TestDateFromRaw(t *testing.T) {
	tests := []struct {
		raw  float64
		want time.Time
	}{
		{25569, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{0, time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)},
		{29221, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{42736.5, time.Date(2017, 1, 1, 12, 0, 0, 0, time.UTC)},
		{42736.25, time.Date(2017, 1, 1, 6, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got := DateFromRaw(tt.raw)
		if !got.Equal(tt.want) {
			t.Errorf("DateFromRaw(%v): expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}

func TestBirthDateFromRaw(t *testing.T) {
	got := BirthDateFromRaw(29221.75)
	want := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if !BirthDateFromRaw(math.NaN()).IsZero() {
		t.Error("Expected zero time for NaN input")
	}
	if !DateFromRaw(math.Inf(1)).IsZero() {
		t.Error("Expected zero time for infinite input")
	}
}
