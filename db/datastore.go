package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

const (
	datastoreKind = "fingerprint"

	// Property-name prefixes that keep per-sensor values and aggregate
	// fields apart when loading an entity back.
	sensorPrefix    = "s_"
	aggregatePrefix = "a_"
)

// storableFingerprint adapts a fingerprint to Datastore, which has no notion
// of map-valued properties: each sensor and each aggregate field becomes its
// own prefixed property.
type storableFingerprint struct {
	Site      string
	Timestamp time.Time
	Signals   map[string]float64
	Aggregate map[string]interface{}
}

func (s *storableFingerprint) Save() ([]datastore.Property, error) {
	props := []datastore.Property{
		{Name: "site", Value: s.Site},
		{Name: "timestamp", Value: s.Timestamp},
	}

	for sensor, v := range s.Signals {
		props = append(props, datastore.Property{Name: sensorPrefix + sensor, Value: v})
	}

	for k, v := range s.Aggregate {
		switch x := v.(type) {
		case string, bool, int, int64, float64, time.Time:
			props = append(props, datastore.Property{Name: aggregatePrefix + k, Value: v})
		case float32:
			props = append(props, datastore.Property{Name: aggregatePrefix + k, Value: float64(x)})
		default:
			return nil, fmt.Errorf("aggregate field %q has unstorable type %T", k, v)
		}
	}

	return props, nil
}

func (s *storableFingerprint) Load(props []datastore.Property) error {
	s.Signals = make(map[string]float64)
	s.Aggregate = make(map[string]interface{})

	for _, p := range props {
		switch {
		case p.Name == "site":
			site, ok := p.Value.(string)
			if !ok {
				return fmt.Errorf("property %q has type %T, want string", p.Name, p.Value)
			}
			s.Site = site
		case p.Name == "timestamp":
			t, ok := p.Value.(time.Time)
			if !ok {
				return fmt.Errorf("property %q has type %T, want time.Time", p.Name, p.Value)
			}
			s.Timestamp = t
		case strings.HasPrefix(p.Name, sensorPrefix):
			v, ok := p.Value.(float64)
			if !ok {
				return fmt.Errorf("property %q has type %T, want float64", p.Name, p.Value)
			}
			s.Signals[strings.TrimPrefix(p.Name, sensorPrefix)] = v
		case strings.HasPrefix(p.Name, aggregatePrefix):
			s.Aggregate[strings.TrimPrefix(p.Name, aggregatePrefix)] = p.Value
		default:
			return fmt.Errorf("unexpected property %q", p.Name)
		}
	}

	return nil
}

func newStorableFingerprint(site string, fp *capture.Fingerprint) *storableFingerprint {
	return &storableFingerprint{
		Site:      site,
		Timestamp: Time(fp),
		Signals:   fp.Signals,
		Aggregate: fp.Aggregate,
	}
}

type datastoreDB struct {
	site   string
	client *datastore.Client
}

func NewDatastoreDB(projectID, site string) (*datastoreDB, error) {
	client, err := datastore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, err
	}

	return &datastoreDB{
		site:   site,
		client: client,
	}, nil
}

// Save saves the given fingerprint to the database. If a fingerprint with the
// same site and timestamp already exists it makes no change to the database
// and returns nil as the error.
func (db *datastoreDB) Save(ctx context.Context, fp *capture.Fingerprint) error {
	sf := newStorableFingerprint(db.site, fp)
	key := datastore.NameKey(datastoreKind, Key(db.site, fp), nil)

	// Only store the fingerprint if it doesn't exist.
	_, err := db.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var x storableFingerprint
		if err := tx.Get(key, &x); err != datastore.ErrNoSuchEntity {
			return err
		}

		_, err := tx.Put(key, sf)
		return err
	})

	return err
}
