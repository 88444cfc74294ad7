package db

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

const influxMeasurement = "fingerprint"

// newInfluxDBPoint converts a fingerprint into a single point: one field per
// sensor, tagged with the site. Numeric aggregate fields become extra fields;
// string aggregates become tags.
func newInfluxDBPoint(site string, fp *capture.Fingerprint) *write.Point {
	p := influxdb2.NewPointWithMeasurement(influxMeasurement).AddTag("site", site)

	for sensor, v := range fp.Signals {
		p = p.AddField(sensor, v)
	}

	for k, v := range fp.Aggregate {
		switch x := v.(type) {
		case string:
			p = p.AddTag(k, x)
		default:
			p = p.AddField(k, v)
		}
	}

	return p.SetTime(Time(fp))
}

type InfluxDB struct {
	serverURL string
	token     string
	org       string
	bucket    string
	site      string
}

func NewInfluxDB(serverURL, token, org, bucket, site string) *InfluxDB {
	return &InfluxDB{
		serverURL: serverURL,
		token:     token,
		org:       org,
		bucket:    bucket,
		site:      site,
	}
}

func (db *InfluxDB) Save(ctx context.Context, fp *capture.Fingerprint) error {
	client := influxdb2.NewClient(db.serverURL, db.token)
	defer client.Close()

	writeAPI := client.WriteAPI(db.org, db.bucket)
	writeAPI.WritePoint(newInfluxDBPoint(db.site, fp))
	writeAPI.Flush()

	return nil
}
