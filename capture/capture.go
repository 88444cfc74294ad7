// Package capture turns a stream of per-sensor RSSI readings into discrete
// fingerprints: one representative signal value per sensor per time window.
//
// Readings are buffered under their sensor until the window satisfies both a
// minimum duration and a minimum number of sufficiently-reported sensors, at
// which point each sensor's buffered values are reduced by the configured
// filter and the resulting fingerprint is returned. A window that reaches the
// maximum duration without enough valid sensors is discarded.
//
// Windows are measured against the timestamps carried by the readings, never
// against wall-clock time.
package capture

import (
	"fmt"

	"github.com/mvaldes/rssi-fingerprinter/filter"
)

// Config holds the parameters of a capture window. It is fixed for the
// lifetime of a Window.
type Config struct {
	// Sensors is the fixed set of sensor IDs (typically MAC addresses) the
	// window accounts for. Every fingerprint contains exactly one value per
	// sensor listed here. Readings from sensors not listed are ignored.
	Sensors []string `json:"sensors"`

	// MinWindowSize and MaxWindowSize bound the window duration, in the same
	// unit as reading timestamps (seconds for epoch timestamps). A window
	// never closes before MinWindowSize has elapsed and never stays open past
	// MaxWindowSize.
	MinWindowSize float64 `json:"min_window_size"`
	MaxWindowSize float64 `json:"max_window_size"`

	// MinEntriesPerSensor is the number of readings a sensor must accumulate
	// within a window to be considered valid.
	MinEntriesPerSensor int `json:"min_entries_per_sensor"`

	// MinValidSensors is the number of valid sensors a window needs before it
	// may close successfully.
	MinValidSensors int `json:"min_valid_sensors"`

	// InvalidSensorValue is the value recorded in a fingerprint for sensors
	// that did not reach MinEntriesPerSensor. RSSI is negative, so a positive
	// sentinel like 100 is customary.
	InvalidSensorValue float64 `json:"invalid_sensor_value"`

	// FilterMethod names the reduction applied to each valid sensor's
	// readings. See package filter for the available names.
	FilterMethod string `json:"filter_method"`
}

// Fingerprint is the result of one closed window: one reduced signal value
// per configured sensor, the timestamp of the last reading accepted into the
// window, and the last-seen value of any aggregate fields supplied with the
// window's readings.
type Fingerprint struct {
	Timestamp float64                `json:"timestamp"`
	Signals   map[string]float64     `json:"signals"`
	Aggregate map[string]interface{} `json:"aggregate,omitempty"`
}

// Stats counts what a Window has done since construction.
type Stats struct {
	// Accepted is the number of readings buffered into a window.
	Accepted int64
	// Ignored is the number of readings dropped because their sensor is not
	// configured.
	Ignored int64
	// Emitted is the number of fingerprints produced.
	Emitted int64
	// Discarded is the number of windows force-closed at MaxWindowSize
	// without enough valid sensors.
	Discarded int64
}

// Window accumulates readings and emits fingerprints. It is not safe for
// concurrent use; callers processing multiple streams should use one Window
// per stream, or serialize access externally.
type Window struct {
	cfg     Config
	sensors map[string]bool
	reduce  filter.Func

	// Per-sensor buffers of RSSI values for the currently open window. All
	// configured sensors have an entry while a window is open.
	buckets map[string][]float64
	// Last-seen value per aggregate field for the currently open window.
	aggregate map[string]interface{}

	start float64 // timestamp of the first reading in the window
	last  float64 // largest timestamp seen in the window
	open  bool

	stats Stats
}

// New validates cfg and returns a Window with empty state. Configuration
// errors are reported here, never mid-stream.
func New(cfg Config) (*Window, error) {
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("capture: no sensors configured")
	}

	sensors := make(map[string]bool, len(cfg.Sensors))
	for _, id := range cfg.Sensors {
		if id == "" {
			return nil, fmt.Errorf("capture: empty sensor ID")
		}
		if sensors[id] {
			return nil, fmt.Errorf("capture: duplicate sensor %q", id)
		}
		sensors[id] = true
	}

	if cfg.MinWindowSize < 0 {
		return nil, fmt.Errorf("capture: min_window_size must be >= 0, got %v", cfg.MinWindowSize)
	}
	if cfg.MaxWindowSize < cfg.MinWindowSize {
		return nil, fmt.Errorf("capture: max_window_size (%v) must be >= min_window_size (%v)",
			cfg.MaxWindowSize, cfg.MinWindowSize)
	}
	if cfg.MinEntriesPerSensor < 1 {
		return nil, fmt.Errorf("capture: min_entries_per_sensor must be >= 1, got %d", cfg.MinEntriesPerSensor)
	}
	if cfg.MinValidSensors < 1 {
		return nil, fmt.Errorf("capture: min_valid_sensors must be >= 1, got %d", cfg.MinValidSensors)
	}
	if cfg.MinValidSensors > len(cfg.Sensors) {
		return nil, fmt.Errorf("capture: min_valid_sensors (%d) exceeds sensor count (%d)",
			cfg.MinValidSensors, len(cfg.Sensors))
	}

	reduce, err := filter.Get(cfg.FilterMethod)
	if err != nil {
		return nil, fmt.Errorf("capture: %v", err)
	}

	return &Window{
		cfg:     cfg,
		sensors: sensors,
		reduce:  reduce,
	}, nil
}

// Config returns the configuration the Window was built with.
func (w *Window) Config() Config {
	return w.cfg
}

// Open reports whether a window is currently accumulating readings.
func (w *Window) Open() bool {
	return w.open
}

// Stats returns the Window's counters.
func (w *Window) Stats() Stats {
	return w.stats
}

// Reset discards any partially accumulated window. The next accepted reading
// opens a fresh one.
func (w *Window) Reset() {
	w.buckets = nil
	w.aggregate = nil
	w.start = 0
	w.last = 0
	w.open = false
}

// ProcessReading buffers one reading and returns a Fingerprint if it closed
// the window, or nil if the window is still accumulating or was discarded.
//
// Readings from sensors not in the configured set are ignored and leave the
// window state untouched. Aggregate fields, if given, are carried into the
// fingerprint with the last-seen value per field winning.
//
// A nil return does not distinguish an open window from a discarded one; use
// Open and Stats if that matters.
func (w *Window) ProcessReading(timestamp float64, sensorID string, rssi float64, aggregate map[string]interface{}) *Fingerprint {
	if !w.sensors[sensorID] {
		w.stats.Ignored++
		return nil
	}

	if !w.open {
		w.buckets = make(map[string][]float64, len(w.cfg.Sensors))
		for _, id := range w.cfg.Sensors {
			w.buckets[id] = nil
		}
		w.aggregate = nil
		w.start = timestamp
		w.last = timestamp
		w.open = true
	}

	w.buckets[sensorID] = append(w.buckets[sensorID], rssi)
	if timestamp > w.last {
		w.last = timestamp
	}
	for k, v := range aggregate {
		if w.aggregate == nil {
			w.aggregate = make(map[string]interface{})
		}
		w.aggregate[k] = v
	}
	w.stats.Accepted++

	elapsed := w.last - w.start
	if elapsed < w.cfg.MinWindowSize {
		return nil
	}

	if w.validSensors() >= w.cfg.MinValidSensors {
		fp := w.compose()
		w.Reset()
		w.stats.Emitted++
		return fp
	}

	if elapsed >= w.cfg.MaxWindowSize {
		// Out of time without enough coverage. The window is unusable for
		// fingerprinting, so its readings are dropped.
		w.Reset()
		w.stats.Discarded++
	}

	return nil
}

func (w *Window) validSensors() int {
	valid := 0
	for _, bucket := range w.buckets {
		if len(bucket) >= w.cfg.MinEntriesPerSensor {
			valid++
		}
	}
	return valid
}

func (w *Window) compose() *Fingerprint {
	fp := &Fingerprint{
		Timestamp: w.last,
		Signals:   make(map[string]float64, len(w.cfg.Sensors)),
	}

	for _, id := range w.cfg.Sensors {
		bucket := w.buckets[id]
		if len(bucket) < w.cfg.MinEntriesPerSensor {
			fp.Signals[id] = w.cfg.InvalidSensorValue
			continue
		}

		v, err := w.reduce(bucket)
		if err != nil {
			// Unreachable: buckets are only reduced when non-empty.
			panic(fmt.Sprintf("capture: reducing %d values for sensor %q: %v", len(bucket), id, err))
		}
		fp.Signals[id] = v
	}

	if len(w.aggregate) > 0 {
		fp.Aggregate = make(map[string]interface{}, len(w.aggregate))
		for k, v := range w.aggregate {
			fp.Aggregate[k] = v
		}
	}

	return fp
}
