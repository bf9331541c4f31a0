/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	ingest.go: Tag event filtering and buffering
*/
package main

import (
	"strconv"
	"sync"

	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/rfid"
	"github.com/tagspot/tagspot/store"
)

// Ingestor consumes tag events from the reader, applies the configured
// filters and duplicate checks, and buffers accepted records for upload.
type Ingestor struct {
	cfgStore *common.ConfigStore
	records  store.Store
	events   <-chan rfid.TagEvent
	eh       *common.ExitHelper

	mu            sync.Mutex
	lastStoredLat float64
	lastStoredLon float64
	haveLast      bool
}

func NewIngestor(cfgStore *common.ConfigStore, records store.Store, events <-chan rfid.TagEvent) *Ingestor {
	return &Ingestor{
		cfgStore: cfgStore,
		records:  records,
		events:   events,
		eh:       common.NewExitHelper(),
	}
}

func (in *Ingestor) Run() {
	go in.loop()
}

func (in *Ingestor) Stop() {
	in.eh.Exit()
}

func (in *Ingestor) loop() {
	in.eh.Add()
	defer in.eh.Done()

	for {
		select {
		case <-in.eh.C:
			return
		case ev := <-in.events:
			in.handle(ev)
		}
	}
}

func (in *Ingestor) handle(ev rfid.TagEvent) {
	metricTagsObserved.Inc()
	snap := in.cfgStore.Snapshot()

	// A tag seen with no fix yet gives us nothing to correlate.
	if ev.Latitude == 0 && ev.Longitude == 0 {
		metricTagsFiltered.WithLabelValues("no_position").Inc()
		common.Log().Debugw("tag dropped, no position", "epc", ev.Report.EPC)
		return
	}

	if f := snap.Filter.Speed; f.Enabled && (ev.SpeedMph < f.Min || ev.SpeedMph > f.Max) {
		metricTagsFiltered.WithLabelValues("speed").Inc()
		common.Log().Debugw("tag dropped by speed filter", "epc", ev.Report.EPC, "speed", ev.SpeedMph)
		return
	}
	if f := snap.Filter.RSSI; f.Enabled {
		rssi := float64(ev.Report.PeakRSSI)
		if rssi < f.Min || rssi > f.Max {
			metricTagsFiltered.WithLabelValues("rssi").Inc()
			common.Log().Debugw("tag dropped by rssi filter", "epc", ev.Report.EPC, "rssi", rssi)
			return
		}
	}
	if f := snap.Filter.TagRange; f.Enabled {
		n, err := strconv.ParseInt(ev.Report.EPC, 10, 64)
		if err != nil || float64(n) < f.Min || float64(n) > f.Max {
			metricTagsFiltered.WithLabelValues("tag_range").Inc()
			common.Log().Debugw("tag dropped by tag range filter", "epc", ev.Report.EPC)
			return
		}
	}

	// Suppress a burst of reads from the same spot.
	in.mu.Lock()
	sameSpot := in.haveLast && in.lastStoredLat == ev.Latitude && in.lastStoredLon == ev.Longitude
	in.mu.Unlock()
	if sameSpot {
		metricTagsFiltered.WithLabelValues("same_position").Inc()
		common.Log().Debugw("tag dropped, position unchanged since last record", "epc", ev.Report.EPC)
		return
	}

	tsMicros := int64(ev.Report.LastSeenUTC)
	windowMicros := int64(snap.Database.DuplicateDetectionSeconds) * 1_000_000
	dup, err := in.records.FindDuplicate(ev.Report.EPC, tsMicros, windowMicros, ev.Latitude, ev.Longitude)
	if err != nil {
		common.Log().Errorw("duplicate lookup failed", "epc", ev.Report.EPC, "error", err)
		return
	}
	if dup {
		metricTagsFiltered.WithLabelValues("duplicate").Inc()
		common.Log().Debugw("tag dropped as duplicate", "epc", ev.Report.EPC)
		return
	}

	rec := store.Record{
		RFIDTag:         ev.Report.EPC,
		Antenna:         int(ev.Report.AntennaID),
		RSSI:            int(ev.Report.PeakRSSI),
		Latitude:        ev.Latitude,
		Longitude:       ev.Longitude,
		Speed:           ev.SpeedMph,
		Heading:         ev.HeadingDeg,
		LocationCode:    "-",
		Username:        snap.API.UserName,
		TimestampMicros: tsMicros,
	}
	id, err := in.records.Add(rec)
	if err != nil {
		common.Log().Errorw("failed to buffer record", "epc", ev.Report.EPC, "error", err)
		return
	}

	in.mu.Lock()
	in.lastStoredLat = ev.Latitude
	in.lastStoredLon = ev.Longitude
	in.haveLast = true
	in.mu.Unlock()

	metricTagsStored.Inc()
	common.Log().Infow("tag recorded",
		"id", id, "epc", ev.Report.EPC, "antenna", ev.Report.AntennaID,
		"rssi", ev.Report.PeakRSSI, "lat", ev.Latitude, "lon", ev.Longitude)
}
