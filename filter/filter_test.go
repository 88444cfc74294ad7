package filter

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var cmpFloats = cmpopts.EquateApprox(0, 0.0001)

func TestGet(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f, err := Get(name)
			if err != nil {
				t.Errorf("Error getting filter %q: %v", name, err)
			}
			if f == nil {
				t.Errorf("Got nil filter for %q", name)
			}
		})
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := Get("kalman"); err == nil {
		t.Error("Expected error for unknown filter, but error is nil")
	}
}

func TestNames(t *testing.T) {
	want := []string{Max, Mean, Median, Min, Mode, TSS}
	if diff := cmp.Diff(Names(), want); diff != "" {
		t.Errorf("Unexpected names (-got +want):\n%s", diff)
	}
}

func TestFilters(t *testing.T) {
	cases := []struct {
		name   string
		filter string
		values []float64
		want   float64
	}{
		{
			name:   "mean_single",
			filter: Mean,
			values: []float64{-60},
			want:   -60,
		},
		{
			name:   "mean_multiple",
			filter: Mean,
			values: []float64{-60, -62, -64},
			want:   -62,
		},
		{
			name:   "median_odd",
			filter: Median,
			values: []float64{-80, -60, -70},
			want:   -70,
		},
		{
			name:   "median_even",
			filter: Median,
			values: []float64{-60, -80, -70, -66},
			want:   -68,
		},
		{
			name:   "mode_simple",
			filter: Mode,
			values: []float64{-60, -62, -62, -64},
			want:   -62,
		},
		{
			name:   "mode_tie_smallest_wins",
			filter: Mode,
			values: []float64{-60, -60, -62, -62},
			want:   -62,
		},
		{
			name:   "max",
			filter: Max,
			values: []float64{-80, -60, -70},
			want:   -60,
		},
		{
			name:   "min",
			filter: Min,
			values: []float64{-80, -60, -70},
			want:   -80,
		},
		{
			// Sum of linear powers: 10^-6 + 10^-7 + 10^-8.
			name:   "tss",
			filter: TSS,
			values: []float64{-60, -70, -80},
			want:   1.11e-6,
		},
		{
			name:   "tss_zero_dbm",
			filter: TSS,
			values: []float64{0, 0},
			want:   2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Get(tc.filter)
			if err != nil {
				t.Fatalf("Error getting filter %q: %v", tc.filter, err)
			}

			got, err := f(tc.values)
			if err != nil {
				t.Fatalf("Error applying %q: %v", tc.filter, err)
			}
			if diff := cmp.Diff(got, tc.want, cmpFloats); diff != "" {
				t.Errorf("Unexpected result (-got +want):\n%s", diff)
			}
		})
	}
}

func TestFiltersEmptyInput(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f, err := Get(name)
			if err != nil {
				t.Fatalf("Error getting filter %q: %v", name, err)
			}

			got, err := f([]float64{})
			if err != ErrEmptyInput {
				t.Errorf("Expected ErrEmptyInput, got %v", err)
			}
			if got != 0 {
				t.Errorf("Expected zero value on error, got %v", got)
			}
		})
	}
}

func TestTSSExact(t *testing.T) {
	f, err := Get(TSS)
	if err != nil {
		t.Fatalf("Error getting filter: %v", err)
	}

	// -30 dBm and -40 dBm are 1 µW and 0.1 µW.
	got, err := f([]float64{-30, -40})
	if err != nil {
		t.Fatalf("Error applying tss: %v", err)
	}

	want := math.Pow(10, -3) + math.Pow(10, -4)
	if diff := cmp.Diff(got, want, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Unexpected result (-got +want):\n%s", diff)
	}
}
