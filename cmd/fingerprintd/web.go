package main

import (
	"fmt"
	"net/http"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

type indexHandler struct {
	engine *engine
	config capture.Config
}

func (h indexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "site: %s\n", site)
	fmt.Fprintf(w, "sensors: %v\n", h.config.Sensors)
	fmt.Fprintf(w, "window: min=%v max=%v filter=%s\n", h.config.MinWindowSize, h.config.MaxWindowSize, h.config.FilterMethod)

	s := h.engine.stats()
	fmt.Fprintf(w, "accepted: %d\nignored: %d\nemitted: %d\ndiscarded: %d\n",
		s.Accepted, s.Ignored, s.Emitted, s.Discarded)

	if fp := h.engine.latest.Latest(site); fp != nil {
		fmt.Fprintf(w, "latest: t=%v %v\n", fp.Timestamp, fp.Signals)
	}
}
