// Program fingerprintd subscribes to a stream of RSSI readings over MQTT,
// aggregates them into fingerprints using a capture window, and saves the
// fingerprints to a storage back end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	homedir "github.com/mitchellh/go-homedir"
	cron "github.com/robfig/cron/v3"

	"github.com/mvaldes/rssi-fingerprinter/cache"
	"github.com/mvaldes/rssi-fingerprinter/capture"
	"github.com/mvaldes/rssi-fingerprinter/db"
)

const saveTimeout = 10 * time.Second

// Flags.
var (
	configFilePath string
	broker         string
	topic          string
	clientID       string
	dbType         string
	site           string
	statsCronSpec  string
	port           int
	dryrun         bool
)

var (
	// This directory is where we'll store anything the program needs to persist,
	// like in-flight MQTT messages. This is joined with the user's home
	// directory in init.
	dotDir = ".fingerprintd"

	// The directory in which the MQTT client persists messages that arrived but
	// haven't been fully handled, e.g. because the program was killed. It's used
	// to configure an mqtt.NewFileStore. This is joined with the user's home
	// directory in init.
	mqttStoreDir = path.Join(dotDir, "mqtt_store")
)

func init() {
	flag.StringVar(&configFilePath, "config", "", "path to a file containing a JSON-encoded capture window config (see package capture)")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	flag.StringVar(&topic, "topic", "readings", "MQTT topic on which JSON-encoded readings arrive")
	flag.StringVar(&clientID, "clientid", "fingerprintd", "MQTT client ID")
	flag.StringVar(&dbType, "db", "none", "where to save fingerprints: influxdb, datastore, or none to only log them")
	flag.StringVar(&site, "site", "default", "label identifying the capture site, used to tag saved fingerprints")
	flag.StringVar(&statsCronSpec, "statscronspec", "@every 1m", "cron spec that specifies when to log engine stats")
	flag.IntVar(&port, "port", 8080, "port on which the status web server should listen")
	flag.BoolVar(&dryrun, "dryrun", false, "set to true to log rather than save fingerprints")

	// Update directory paths by joining them to the user's home directory.
	home, err := homedir.Dir()
	if err != nil {
		log.Fatalf("Failed to get home dir: %v", err)
	}
	dotDir = path.Join(home, dotDir)
	mqttStoreDir = path.Join(home, mqttStoreDir)

	// Make all directories required by the program.
	dirs := []string{dotDir, mqttStoreDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Fatalf("Failed to make dir %s: %v", dir, err)
		}
	}
}

func parseFlags() error {
	flag.Parse()

	if configFilePath == "" {
		return fmt.Errorf("config flag must be given")
	}

	if broker == "" {
		return fmt.Errorf("broker flag must be given")
	}

	switch dbType {
	case "influxdb", "datastore", "none":
	default:
		return fmt.Errorf("unknown db type %q", dbType)
	}

	return nil
}

func mustGetenv(varName string) string {
	val := os.Getenv(varName)
	if val == "" {
		log.Fatalf("Environment variable must be set: %v", varName)
	}
	return val
}

func parseConfigFile(filepath string) (capture.Config, error) {
	b, err := os.ReadFile(filepath)
	if err != nil {
		return capture.Config{}, err
	}

	var cfg capture.Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return capture.Config{}, err
	}

	return cfg, nil
}

func getDatabase() (db.Database, error) {
	switch dbType {
	case "influxdb":
		return db.NewInfluxDB(
			mustGetenv("INFLUXDB_SERVER"), mustGetenv("INFLUXDB_TOKEN"),
			mustGetenv("INFLUXDB_ORG"), mustGetenv("INFLUXDB_BUCKET"), site), nil
	case "datastore":
		return db.NewDatastoreDB(mustGetenv("GOOGLE_CLOUD_PROJECT"), site)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown database type: %v", dbType)
	}
}

// reading is the JSON payload expected on the readings topic.
type reading struct {
	Timestamp float64                `json:"timestamp"`
	Sensor    string                 `json:"mac_sensor"`
	RSSI      float64                `json:"rssi"`
	Aggregate map[string]interface{} `json:"aggregate_data,omitempty"`
}

// engine serializes access to a capture window, which is not safe for
// concurrent use. The MQTT client may run handlers on multiple goroutines.
type engine struct {
	mu       sync.Mutex
	window   *capture.Window
	database db.Database
	latest   *cache.Cache
}

func (e *engine) handleReading(client mqtt.Client, msg mqtt.Message) {
	msg.Ack()

	var r reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		log.Printf("Dropping malformed reading: %v", err)
		return
	}

	e.mu.Lock()
	fp := e.window.ProcessReading(r.Timestamp, r.Sensor, r.RSSI, r.Aggregate)
	e.mu.Unlock()

	if fp == nil {
		return
	}

	e.latest.Set(site, fp)

	if dryrun || e.database == nil {
		log.Printf("Fingerprint at %v: %v", fp.Timestamp, fp.Signals)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := e.database.Save(ctx, fp); err != nil {
		log.Printf("Failed to save fingerprint at %v: %v", fp.Timestamp, err)
	}
}

func (e *engine) stats() capture.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Stats()
}

// statsJob periodically logs what the engine has done so far.
type statsJob struct {
	engine *engine
}

func (j statsJob) Run() {
	s := j.engine.stats()
	log.Printf("Stats: accepted=%d ignored=%d emitted=%d discarded=%d",
		s.Accepted, s.Ignored, s.Emitted, s.Discarded)
}

func mqttConnect(e *engine) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetStore(mqtt.NewFileStore(mqttStoreDir))
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker %s", broker)

		waitDur := 10 * time.Second
		if token := client.Subscribe(topic, 1, e.handleReading); !token.WaitTimeout(waitDur) {
			log.Printf("Subscribe to %s timed out after %v", topic, waitDur)
		} else if token.Error() != nil {
			log.Printf("Failed to subscribe to %s: %v", topic, token.Error())
		} else {
			log.Printf("Subscribed to %s", topic)
		}
	})

	client := mqtt.NewClient(opts)
	waitDur := 10 * time.Second
	if token := client.Connect(); !token.WaitTimeout(waitDur) {
		return nil, fmt.Errorf("connect timed out after %v", waitDur)
	} else if token.Error() != nil {
		return nil, token.Error()
	}

	return client, nil
}

func main() {
	if err := parseFlags(); err != nil {
		fmt.Printf("argument error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := parseConfigFile(configFilePath)
	if err != nil {
		log.Fatalf("Failed to parse config file: %v", err)
	}

	window, err := capture.New(cfg)
	if err != nil {
		log.Fatalf("Bad capture config: %v", err)
	}

	database, err := getDatabase()
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}

	// Fingerprints older than two maximum windows are stale on the status
	// page.
	ttl := 2 * time.Duration(cfg.MaxWindowSize*float64(time.Second))

	e := &engine{
		window:   window,
		database: database,
		latest:   cache.New(ttl),
	}

	client, err := mqttConnect(e)
	if err != nil {
		log.Fatal(err)
	}

	// If the program is killed, disconnect from the MQTT server.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Cleaning up...")
		client.Disconnect(250)
		time.Sleep(500 * time.Millisecond)
		os.Exit(1)
	}()

	// Schedule the periodic stats log.
	cr := cron.New()
	if _, err := cr.AddJob(statsCronSpec, statsJob{engine: e}); err != nil {
		log.Fatalf("Bad stats cron spec %q: %v", statsCronSpec, err)
	}
	cr.Start()

	// Start up a web server that provides basic info about the daemon.
	http.Handle("/", indexHandler{
		engine: e,
		config: cfg,
	})
	if err := http.ListenAndServe(fmt.Sprintf(":%v", port), nil); err != nil {
		log.Fatal(err)
	}
}
