// Package filter provides the named reductions used to collapse a window's
// RSSI readings for one sensor into a single representative value.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Names of the available filters.
const (
	Mean   = "mean"
	Median = "median"
	Mode   = "mode"
	Max    = "max"
	Min    = "min"
	TSS    = "tss"
)

// ErrEmptyInput is returned when a filter is applied to an empty slice.
// Callers are expected to check bucket sizes before reducing, so hitting
// this error indicates a bug in the caller.
var ErrEmptyInput = errors.New("filter: empty input")

// Func reduces a non-empty sequence of RSSI values to a single value.
type Func func(values []float64) (float64, error)

var filters = map[string]Func{
	Mean:   mean,
	Median: median,
	Mode:   mode,
	Max:    max,
	Min:    min,
	TSS:    tss,
}

// Get looks up a filter by name. It returns an error if no filter with
// the given name is found.
func Get(name string) (Func, error) {
	f, ok := filters[name]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", name)
	}
	return f, nil
}

// Names returns the names of all available filters, sorted.
func Names() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// median returns the middle value of the sorted input. For inputs of even
// length it returns the mean of the two middle values.
func median(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	}
	return sorted[mid], nil
}

// mode returns the most frequent value. Ties are broken by returning the
// smallest of the tied values.
func mode(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	counts := make(map[float64]int)
	for _, v := range values {
		counts[v]++
	}

	best := values[0]
	bestCount := 0
	for v, count := range counts {
		if count > bestCount || (count == bestCount && v < best) {
			best = v
			bestCount = count
		}
	}
	return best, nil
}

func max(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	x := values[0]
	for _, v := range values[1:] {
		if v > x {
			x = v
		}
	}
	return x, nil
}

func min(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	x := values[0]
	for _, v := range values[1:] {
		if v < x {
			x = v
		}
	}
	return x, nil
}

// tss computes total signal strength: the sum of the linear power values
// implied by the logarithmic RSSI readings, Σ 10^(rssi/10).
func tss(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}

	var sum float64
	for _, v := range values {
		sum += math.Pow(10, v/10)
	}
	return sum, nil
}
