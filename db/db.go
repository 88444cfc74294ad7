// Package db persists fingerprints to storage back ends.
package db

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

// Used for separating substrings in database keys. The octothorpe is fine for
// this because site names and timestamps, the two things used in keys, can't
// contain it.
const keySep = "#"

// Database saves fingerprints. Implementations are expected to be safe to
// share across goroutines.
type Database interface {
	Save(ctx context.Context, fp *capture.Fingerprint) error
}

// Key returns a string key for the given fingerprint. It promotes the site
// label and the window's closing timestamp, in milliseconds, into the key, so
// a fingerprint saved twice lands on the same entity.
func Key(site string, fp *capture.Fingerprint) string {
	return fmt.Sprintf("%s%s%d", site, keySep, int64(math.Round(fp.Timestamp*1000)))
}

// Time converts a fingerprint's epoch-seconds timestamp to a time.Time in UTC.
func Time(fp *capture.Fingerprint) time.Time {
	sec, frac := math.Modf(fp.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
