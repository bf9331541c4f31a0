/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	upload.go: Batched record upload and periodic health reporting
*/
package main

import (
	"time"

	"github.com/tagspot/tagspot/api"
	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/gps"
	"github.com/tagspot/tagspot/rfid"
	"github.com/tagspot/tagspot/store"
)

// Uploader drains the record buffer to the ingestion service in batches and
// reports device health on its own interval.
type Uploader struct {
	cfgStore *common.ConfigStore
	records  store.Store
	client   *api.Client
	reader   *rfid.Reader
	gps      *gps.Supervisor
	deviceID string
	eh       *common.ExitHelper
}

func NewUploader(cfgStore *common.ConfigStore, records store.Store, client *api.Client, reader *rfid.Reader, sup *gps.Supervisor) *Uploader {
	return &Uploader{
		cfgStore: cfgStore,
		records:  records,
		client:   client,
		reader:   reader,
		gps:      sup,
		deviceID: common.DeviceID(),
		eh:       common.NewExitHelper(),
	}
}

func (u *Uploader) Run() {
	go u.recordLoop()
	go u.healthLoop()
}

func (u *Uploader) Stop() {
	u.eh.Exit()
}

func (u *Uploader) recordLoop() {
	u.eh.Add()
	defer u.eh.Done()

	for {
		snap := u.cfgStore.Snapshot()
		interval := time.Duration(snap.API.RecordIntervalMS) * time.Millisecond
		if interval <= 0 {
			interval = 7 * time.Second
		}
		select {
		case <-u.eh.C:
			return
		case <-time.After(interval):
			u.uploadRecords(snap.API.MaxUploadRecords, snap.API.SiteID)
		}
	}
}

func (u *Uploader) healthLoop() {
	u.eh.Add()
	defer u.eh.Done()

	for {
		snap := u.cfgStore.Snapshot()
		interval := time.Duration(snap.API.HealthIntervalMS) * time.Millisecond
		if interval <= 0 {
			interval = 15 * time.Second
		}
		select {
		case <-u.eh.C:
			return
		case <-time.After(interval):
			u.uploadHealth()
		}
	}
}

// uploadRecords sends buffered records oldest first in batches of batchSize.
// The first failed batch aborts the cycle so nothing is sent out of order.
func (u *Uploader) uploadRecords(batchSize int, siteID string) {
	all, err := u.records.FetchAll()
	if err != nil {
		common.Log().Errorw("failed to read record buffer", "error", err)
		return
	}
	metricBufferedRecords.Set(float64(len(all)))
	if len(all) == 0 {
		return
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	// Records without a position are unusable downstream.
	eligible := all[:0:0]
	for _, rec := range all {
		if rec.Latitude == 0 && rec.Longitude == 0 {
			continue
		}
		eligible = append(eligible, rec)
	}

	for start := 0; start < len(eligible); start += batchSize {
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		payloads := make([]api.RecordPayload, 0, len(batch))
		ids := make([]int64, 0, len(batch))
		for _, rec := range batch {
			antenna := rec.Antenna
			if antenna == 0 {
				antenna = 1
			}
			payloads = append(payloads, api.RecordPayload{
				SiteID:    siteID,
				TagName:   rec.RFIDTag,
				Latitude:  rec.Latitude,
				Longitude: rec.Longitude,
				Speed:     int(rec.Speed),
				DeviceID:  u.deviceID,
				Antenna:   antenna,
				Barrier:   rec.Heading,
				IsProcess: true,
			})
			ids = append(ids, rec.ID)
		}

		if !u.client.UploadRecords(payloads) {
			metricUploadBatches.WithLabelValues("failure").Inc()
			common.Log().Warnw("record batch upload failed, stopping cycle",
				"batch", len(payloads), "remaining", len(eligible)-start)
			break
		}
		metricUploadBatches.WithLabelValues("success").Inc()
		metricRecordsUploaded.Add(float64(len(ids)))
		if err := u.records.DeleteByIDs(ids); err != nil {
			common.Log().Errorw("failed to delete uploaded records", "error", err)
			break
		}
		common.Log().Infow("record batch uploaded", "count", len(ids))
	}

	if err := u.records.PruneOld(); err != nil {
		common.Log().Errorw("record prune failed", "error", err)
	}
	if n, err := u.records.Count(); err == nil {
		metricBufferedRecords.Set(float64(n))
	}
}

func (u *Uploader) uploadHealth() {
	rfidUp := u.reader.IsConnected()
	boolGauge(metricRFIDConnected, rfidUp)
	boolGauge(metricGPSConnected, u.gps.IsConnected())

	fix, _, _ := u.gps.Position()
	ok := u.client.UploadHealth(rfidUp, u.gps.StatusText(), fix.Latitude, fix.Longitude)
	if ok {
		metricHealthUploads.WithLabelValues("success").Inc()
	} else {
		metricHealthUploads.WithLabelValues("failure").Inc()
	}
}
