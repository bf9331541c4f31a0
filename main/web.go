/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	web.go: Local status and metrics endpoint
*/
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/gps"
	"github.com/tagspot/tagspot/netpriority"
	"github.com/tagspot/tagspot/rfid"
	"github.com/tagspot/tagspot/store"
)

const statusListenAddr = "127.0.0.1:8040"

type deviceStatus struct {
	DeviceID        string  `json:"deviceId"`
	SpotterID       string  `json:"spotterId"`
	RFIDConnected   bool    `json:"rfidConnected"`
	RFIDHost        string  `json:"rfidHost"`
	RFIDScanning    bool    `json:"rfidScanning"`
	GPSStatus       string  `json:"gpsStatus"`
	GPSConnected    bool    `json:"gpsConnected"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	SpeedMph        float64 `json:"speedMph"`
	HeadingDeg      float64 `json:"headingDeg"`
	InternetUp      bool    `json:"internetUp"`
	BufferedRecords int     `json:"bufferedRecords"`
	Uptime          string  `json:"uptime"`
}

type statusServer struct {
	cfgStore *common.ConfigStore
	reader   *rfid.Reader
	gps      *gps.Supervisor
	monitor  *netpriority.Monitor
	records  store.Store
	deviceID string
	started  time.Time
	srv      *http.Server
}

func newStatusServer(cfgStore *common.ConfigStore, reader *rfid.Reader, sup *gps.Supervisor, mon *netpriority.Monitor, records store.Store) *statusServer {
	return &statusServer{
		cfgStore: cfgStore,
		reader:   reader,
		gps:      sup,
		monitor:  mon,
		records:  records,
		deviceID: common.DeviceID(),
		started:  time.Now(),
	}
}

func (s *statusServer) Run() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: statusListenAddr, Handler: r}
	go func() {
		common.Log().Infow("status endpoint listening", "addr", statusListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Log().Errorw("status endpoint failed", "error", err)
		}
	}()
}

func (s *statusServer) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *statusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.cfgStore.Snapshot()
	fix, _, _ := s.gps.Position()
	count, _ := s.records.Count()

	st := deviceStatus{
		DeviceID:        s.deviceID,
		SpotterID:       snap.API.SpotterID,
		RFIDConnected:   s.reader.IsConnected(),
		RFIDHost:        snap.RFID.Host,
		RFIDScanning:    s.reader.IsScanning(),
		GPSStatus:       s.gps.StatusText(),
		GPSConnected:    s.gps.IsConnected(),
		Latitude:        fix.Latitude,
		Longitude:       fix.Longitude,
		SpeedMph:        fix.SpeedMph,
		HeadingDeg:      fix.HeadingDeg,
		InternetUp:      s.monitor.IsUp(),
		BufferedRecords: count,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		common.Log().Warnw("failed to encode status", "error", err)
	}
}
