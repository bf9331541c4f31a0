/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	metrics.go: Prometheus instrumentation for the agent pipeline
*/
package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTagsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagspot_tags_observed_total",
		Help: "Tag reports received from the RFID reader.",
	})
	metricTagsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagspot_tags_stored_total",
		Help: "Tag records accepted into the local buffer.",
	})
	metricTagsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagspot_tags_filtered_total",
		Help: "Tag reports dropped before storage, by reason.",
	}, []string{"reason"})
	metricUploadBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagspot_upload_batches_total",
		Help: "Record upload batches attempted, by result.",
	}, []string{"result"})
	metricRecordsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagspot_records_uploaded_total",
		Help: "Records confirmed by the ingestion service.",
	})
	metricHealthUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagspot_health_uploads_total",
		Help: "Health report uploads, by result.",
	}, []string{"result"})
	metricRFIDConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagspot_rfid_connected",
		Help: "1 when the LLRP reader connection is up.",
	})
	metricGPSConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagspot_gps_connected",
		Help: "1 when a GPS device is delivering sentences.",
	})
	metricInternetUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagspot_internet_up",
		Help: "1 when the last internet reachability check succeeded.",
	})
	metricBufferedRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagspot_buffered_records",
		Help: "Records waiting in the local buffer.",
	})
)

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
