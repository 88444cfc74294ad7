// Program csvtofp reads RSSI readings from a CSV file, aggregates them into
// fingerprints using a capture window, and writes the fingerprints to stdout
// as JSON, one per line.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

const usageStr = `usage: %s -config config.json [options] csv_file

Reads lines from a CSV file, aggregates them into fingerprints as defined by
the capture window config, and prints one JSON-encoded fingerprint per line.

The first line of the CSV file is expected to be column headers. The columns
holding the timestamp, sensor ID, and RSSI value are located by name; any
other columns may be carried through into the fingerprints with -aggfields.
Timestamps must be numeric (epoch seconds).

Arguments:
  csv_file: Path to the CSV file.

Options:
`

// Flags.
var (
	configFilePath string
	timestampField string
	sensorField    string
	rssiField      string
	aggFields      string
)

func init() {
	flag.StringVar(&configFilePath, "config", "", "path to a file containing a JSON-encoded capture window config (see package capture)")
	flag.StringVar(&timestampField, "tsfield", capture.DefaultTimestampField, "name of the CSV column holding the timestamp")
	flag.StringVar(&sensorField, "sensorfield", capture.DefaultSensorField, "name of the CSV column holding the sensor ID")
	flag.StringVar(&rssiField, "rssifield", capture.DefaultRSSIField, "name of the CSV column holding the RSSI value")
	flag.StringVar(&aggFields, "aggfields", "", "comma-separated names of CSV columns to carry through as aggregate data")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usageStr, os.Args[0])
		flag.PrintDefaults()
	}
}

// rowToRecord pairs a CSV line with the header row, parsing cells that look
// numeric into float64s and leaving the rest as strings.
func rowToRecord(headers []string, line []string) (map[string]interface{}, error) {
	if len(line) != len(headers) {
		return nil, fmt.Errorf("line has %d fields, want %d", len(line), len(headers))
	}

	record := make(map[string]interface{}, len(headers))
	for i, h := range headers {
		cell := line[i]
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			record[h] = f
		} else {
			record[h] = cell
		}
	}
	return record, nil
}

func readRecords(r io.Reader) ([]map[string]interface{}, error) {
	cr := csv.NewReader(r)

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header line: %v", err)
	}

	var records []map[string]interface{}
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		record, err := rowToRecord(headers, line)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func splitAggFields(s string) []string {
	if s == "" {
		return nil
	}

	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func main() {
	flag.Parse()

	if configFilePath == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
	var cfg capture.Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		log.Fatalf("Failed to parse config file: %v", err)
	}

	window, err := capture.New(cfg)
	if err != nil {
		log.Fatalf("Bad capture config: %v", err)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		log.Fatalf("Failed to read CSV file: %v", err)
	}

	fields := capture.FieldMap{
		Timestamp: timestampField,
		Sensor:    sensorField,
		RSSI:      rssiField,
		Aggregate: splitAggFields(aggFields),
	}

	fingerprints, err := window.ProcessReadings(records, fields, true)
	if err != nil {
		log.Fatalf("Failed to process readings: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, fp := range fingerprints {
		if err := enc.Encode(fp); err != nil {
			log.Fatalf("Failed to encode fingerprint: %v", err)
		}
	}

	log.Printf("Processed %d readings into %d fingerprints", len(records), len(fingerprints))
}
