package capture

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mvaldes/rssi-fingerprinter/filter"
)

var cmpFloats = cmpopts.EquateApprox(0, 0.0001)

// testConfig matches the worked example in the project docs: two sensors,
// 5–30 s windows, two entries per sensor, one valid sensor suffices.
func testConfig() Config {
	return Config{
		Sensors:             []string{"A", "B"},
		MinWindowSize:       5,
		MaxWindowSize:       30,
		MinEntriesPerSensor: 2,
		MinValidSensors:     1,
		InvalidSensorValue:  100,
		FilterMethod:        filter.Mean,
	}
}

func TestNewInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "no_sensors",
			mutate: func(c *Config) { c.Sensors = nil },
		},
		{
			name:   "empty_sensor_id",
			mutate: func(c *Config) { c.Sensors = []string{"A", ""} },
		},
		{
			name:   "duplicate_sensor",
			mutate: func(c *Config) { c.Sensors = []string{"A", "A"} },
		},
		{
			name:   "negative_min_window",
			mutate: func(c *Config) { c.MinWindowSize = -1 },
		},
		{
			name:   "max_below_min",
			mutate: func(c *Config) { c.MaxWindowSize = 2 },
		},
		{
			name:   "zero_min_entries",
			mutate: func(c *Config) { c.MinEntriesPerSensor = 0 },
		},
		{
			name:   "zero_min_valid_sensors",
			mutate: func(c *Config) { c.MinValidSensors = 0 },
		},
		{
			name:   "min_valid_sensors_exceeds_sensors",
			mutate: func(c *Config) { c.MinValidSensors = 3 },
		},
		{
			name:   "unknown_filter",
			mutate: func(c *Config) { c.FilterMethod = "kalman" },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("Expected error, but error is nil")
			}
		})
	}
}

func TestProcessReadingExample(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	readings := []struct {
		timestamp float64
		sensor    string
		rssi      float64
	}{
		{0, "A", -60},
		{1, "A", -62},
		{2, "B", -80},
	}
	for _, r := range readings {
		if fp := w.ProcessReading(r.timestamp, r.sensor, r.rssi, nil); fp != nil {
			t.Fatalf("Unexpected fingerprint at t=%v: %+v", r.timestamp, fp)
		}
	}

	if !w.Open() {
		t.Error("Expected window to be open")
	}

	fp := w.ProcessReading(6, "A", -64, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint at t=6, got nil")
	}

	want := &Fingerprint{
		Timestamp: 6,
		// A is valid with 3 entries; B has only 1, below the threshold.
		Signals: map[string]float64{"A": -62, "B": 100},
	}
	if diff := cmp.Diff(fp, want, cmpFloats); diff != "" {
		t.Errorf("Unexpected fingerprint (-got +want):\n%s", diff)
	}

	if w.Open() {
		t.Error("Expected window to be closed after emitting")
	}
}

func TestMinDurationGate(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	// Both sensors valid almost immediately, but the window must stay open
	// until 5 time units have elapsed.
	readings := []struct {
		timestamp float64
		sensor    string
	}{
		{0, "A"}, {0.5, "A"}, {1, "B"}, {1.5, "B"}, {2, "A"}, {4.9, "B"},
	}
	for _, r := range readings {
		if fp := w.ProcessReading(r.timestamp, r.sensor, -70, nil); fp != nil {
			t.Fatalf("Fingerprint emitted at t=%v, before min window size", r.timestamp)
		}
	}

	if fp := w.ProcessReading(5, "A", -70, nil); fp == nil {
		t.Error("Expected a fingerprint once min window size elapsed")
	}
}

func TestForceCloseDiscards(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	// One reading per sensor: never valid. At t=30 the window hits max size
	// and is dropped without output.
	if fp := w.ProcessReading(0, "A", -60, nil); fp != nil {
		t.Fatalf("Unexpected fingerprint: %+v", fp)
	}
	if fp := w.ProcessReading(30, "B", -80, nil); fp != nil {
		t.Fatalf("Unexpected fingerprint on force-close: %+v", fp)
	}

	if w.Open() {
		t.Error("Expected window to be discarded at max window size")
	}

	stats := w.Stats()
	if stats.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", stats.Discarded)
	}
	if stats.Emitted != 0 {
		t.Errorf("Emitted = %d, want 0", stats.Emitted)
	}

	// The discarded readings must not leak into the next window.
	if fp := w.ProcessReading(40, "A", -61, nil); fp != nil {
		t.Fatalf("Unexpected fingerprint: %+v", fp)
	}
	fp := w.ProcessReading(46, "A", -63, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint from the new window")
	}
	want := map[string]float64{"A": -62, "B": 100}
	if diff := cmp.Diff(fp.Signals, want, cmpFloats); diff != "" {
		t.Errorf("Unexpected signals (-got +want):\n%s", diff)
	}
}

func TestUnknownSensorIgnored(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	if fp := w.ProcessReading(0, "C", -55, nil); fp != nil {
		t.Fatalf("Unexpected fingerprint: %+v", fp)
	}
	if w.Open() {
		t.Error("Ignored reading must not open a window")
	}

	w.ProcessReading(1, "A", -60, nil)
	w.ProcessReading(2, "C", -55, nil)

	stats := w.Stats()
	if stats.Ignored != 2 {
		t.Errorf("Ignored = %d, want 2", stats.Ignored)
	}
	if stats.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", stats.Accepted)
	}
}

func TestSensorCompleteness(t *testing.T) {
	cfg := testConfig()
	cfg.Sensors = []string{"A", "B", "C", "D"}

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	w.ProcessReading(0, "A", -60, nil)
	fp := w.ProcessReading(5, "A", -62, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint")
	}

	want := map[string]float64{"A": -61, "B": 100, "C": 100, "D": 100}
	if diff := cmp.Diff(fp.Signals, want, cmpFloats); diff != "" {
		t.Errorf("Unexpected signals (-got +want):\n%s", diff)
	}
}

func TestAggregateLastSeenWins(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	w.ProcessReading(0, "A", -60, map[string]interface{}{"x": 1.0, "y": 2.0})
	w.ProcessReading(1, "A", -62, map[string]interface{}{"x": 3.0})
	fp := w.ProcessReading(5, "B", -80, map[string]interface{}{"label": "kitchen"})
	if fp == nil {
		t.Fatal("Expected a fingerprint")
	}

	want := map[string]interface{}{"x": 3.0, "y": 2.0, "label": "kitchen"}
	if diff := cmp.Diff(fp.Aggregate, want); diff != "" {
		t.Errorf("Unexpected aggregate (-got +want):\n%s", diff)
	}
}

func TestOutOfOrderTimestampKeepsLast(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	w.ProcessReading(0, "A", -60, nil)
	w.ProcessReading(6, "B", -80, nil)
	// An earlier timestamp must not rewind window_last. Elapsed is already
	// past the minimum, and this reading makes A valid, closing the window
	// at the largest timestamp seen.
	fp := w.ProcessReading(3, "A", -62, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint")
	}
	if fp.Timestamp != 6 {
		t.Errorf("Timestamp = %v, want 6", fp.Timestamp)
	}
	if diff := cmp.Diff(fp.Signals, map[string]float64{"A": -61, "B": 100}, cmpFloats); diff != "" {
		t.Errorf("Unexpected signals (-got +want):\n%s", diff)
	}
}

func TestResetDiscardsPartialWindow(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	w.ProcessReading(0, "A", -60, nil)
	if !w.Open() {
		t.Fatal("Expected window to be open")
	}

	w.Reset()
	if w.Open() {
		t.Error("Expected window to be closed after Reset")
	}

	// The pre-reset reading is gone, so A has just two entries.
	w.ProcessReading(10, "A", -70, nil)
	fp := w.ProcessReading(15, "A", -72, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint")
	}
	want := map[string]float64{"A": -71, "B": 100}
	if diff := cmp.Diff(fp.Signals, want, cmpFloats); diff != "" {
		t.Errorf("Unexpected signals (-got +want):\n%s", diff)
	}
}

func TestMedianWindow(t *testing.T) {
	cfg := testConfig()
	cfg.FilterMethod = filter.Median

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("Error creating window: %v", err)
	}

	w.ProcessReading(0, "A", -80, nil)
	w.ProcessReading(1, "A", -60, nil)
	fp := w.ProcessReading(5, "A", -70, nil)
	if fp == nil {
		t.Fatal("Expected a fingerprint")
	}
	if diff := cmp.Diff(fp.Signals["A"], -70.0, cmpFloats); diff != "" {
		t.Errorf("Unexpected median (-got +want):\n%s", diff)
	}
}
