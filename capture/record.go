package capture

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldMap names the fields of a caller-defined record that hold the
// timestamp, sensor ID and RSSI value, plus any extra fields to carry
// through as aggregate data. Empty names fall back to the defaults.
type FieldMap struct {
	Timestamp string
	Sensor    string
	RSSI      string
	Aggregate []string
}

// Default field names used when a FieldMap entry is empty.
const (
	DefaultTimestampField = "timestamp"
	DefaultSensorField    = "mac_sensor"
	DefaultRSSIField      = "rssi"
)

type reading struct {
	timestamp float64
	sensor    string
	rssi      float64
	aggregate map[string]interface{}
}

// ProcessReadings projects each record through fields, sorts the readings by
// timestamp, and feeds them to ProcessReading one at a time, collecting every
// fingerprint produced along the way.
//
// The whole batch is validated before any reading is applied: a record with a
// missing or mistyped field fails the call and leaves the window state
// exactly as it was. Records need not be pre-sorted; ties keep their input
// order.
//
// If reset is true, any window left over from a previous call is discarded
// before processing and any partial window is discarded again afterwards.
// With reset false, consecutive calls behave as one continuous stream.
func (w *Window) ProcessReadings(records []map[string]interface{}, fields FieldMap, reset bool) ([]*Fingerprint, error) {
	tsField := fields.Timestamp
	if tsField == "" {
		tsField = DefaultTimestampField
	}
	sensorField := fields.Sensor
	if sensorField == "" {
		sensorField = DefaultSensorField
	}
	rssiField := fields.RSSI
	if rssiField == "" {
		rssiField = DefaultRSSIField
	}

	readings := make([]reading, 0, len(records))
	for i, record := range records {
		ts, err := numericField(record, tsField)
		if err != nil {
			return nil, fmt.Errorf("record %d: %v", i, err)
		}

		sensor, ok := record[sensorField]
		if !ok {
			return nil, fmt.Errorf("record %d: missing field %q", i, sensorField)
		}
		sensorID, ok := sensor.(string)
		if !ok {
			return nil, fmt.Errorf("record %d: field %q is %T, want string", i, sensorField, sensor)
		}

		rssi, err := numericField(record, rssiField)
		if err != nil {
			return nil, fmt.Errorf("record %d: %v", i, err)
		}

		r := reading{
			timestamp: ts,
			sensor:    sensorID,
			rssi:      rssi,
		}
		for _, name := range fields.Aggregate {
			v, ok := record[name]
			if !ok {
				return nil, fmt.Errorf("record %d: missing field %q", i, name)
			}
			if r.aggregate == nil {
				r.aggregate = make(map[string]interface{}, len(fields.Aggregate))
			}
			r.aggregate[name] = v
		}

		readings = append(readings, r)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].timestamp < readings[j].timestamp
	})

	if reset {
		w.Reset()
	}

	var fingerprints []*Fingerprint
	for _, r := range readings {
		if fp := w.ProcessReading(r.timestamp, r.sensor, r.rssi, r.aggregate); fp != nil {
			fingerprints = append(fingerprints, fp)
		}
	}

	if reset {
		w.Reset()
	}

	return fingerprints, nil
}

// numericField extracts a float64 from a record, accepting the numeric types
// that commonly appear in decoded JSON and hand-built records.
func numericField(record map[string]interface{}, name string) (float64, error) {
	v, ok := record[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}

	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q: %v", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q is %T, want a number", name, v)
	}
}
