/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	tagspot.go: Agent bootstrap and lifecycle
*/
package main

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tagspot/tagspot/api"
	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/gps"
	"github.com/tagspot/tagspot/netpriority"
	"github.com/tagspot/tagspot/rfid"
	"github.com/tagspot/tagspot/store"
)

const cellularInterface = "usb0"

func main() {
	if err := common.InitLogging(os.Getenv("APP_ENV")); err != nil {
		os.Exit(1)
	}
	defer common.CloseLogging()

	cfgStore, err := common.NewConfigStore(common.DefaultConfigPath())
	if err != nil {
		common.Log().Fatalw("failed to load configuration", "error", err)
	}
	snap := cfgStore.Snapshot()
	common.Log().Infow("starting tagspot agent",
		"config", cfgStore.Path(), "spotter", snap.API.SpotterID, "device", common.DeviceID())

	if runtime.GOOS == "linux" {
		netpriority.RequestDHCPLease(cellularInterface)
		netpriority.NewArbiter().Configure()
	}

	monitor := netpriority.NewMonitor(snap.InternetLimitTime)
	monitor.Run()
	defer monitor.Stop()

	records := openStore(snap)
	defer records.Close()

	client := api.NewClient(snap.API)
	cfgStore.OnReload(func(s common.Snapshot) {
		client.UpdateConfig(s.API)
	})

	sup := gps.NewSupervisor(snap.GPS, snap.BaudRateDon)
	sup.Run()
	defer sup.Stop()

	reader := rfid.NewReader(cfgStore, func() (lat, lon, speedMph, headingDeg float64) {
		fix, _, _ := sup.Position()
		return fix.Latitude, fix.Longitude, fix.SpeedMph, fix.HeadingDeg
	})
	reader.Run()
	defer reader.Stop()

	ingestor := NewIngestor(cfgStore, records, reader.Events())
	ingestor.Run()
	defer ingestor.Stop()

	uploader := NewUploader(cfgStore, records, client, reader, sup)
	uploader.Run()
	defer uploader.Stop()

	web := newStatusServer(cfgStore, reader, sup, monitor, records)
	web.Run()
	defer web.Stop()

	reloadInterval := time.Duration(snap.InternetLimitTime*3) * time.Second
	if reloadInterval <= 0 {
		reloadInterval = 15 * time.Second
	}
	reload := time.NewTicker(reloadInterval)
	defer reload.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reload.C:
			boolGauge(metricInternetUp, monitor.IsUp())
			if err := cfgStore.Reload(); err != nil {
				common.Log().Warnw("configuration reload failed", "error", err)
			}
		case s := <-sig:
			common.Log().Infow("shutting down", "signal", s.String())
			return
		}
	}
}

// openStore picks the persistent or in-memory buffer, falling back to memory
// when the database cannot be opened.
func openStore(snap common.Snapshot) store.Store {
	if !snap.Database.UseDB {
		common.Log().Infow("using in-memory record buffer")
		return store.NewMemory(snap.Database.MaxRecords)
	}
	path := common.DefaultDatabasePath()
	s, err := store.NewSQLite(path, snap.Database.MaxRecords)
	if err != nil {
		common.Log().Errorw("failed to open record database, using memory buffer",
			"path", path, "error", err)
		return store.NewMemory(snap.Database.MaxRecords)
	}
	common.Log().Infow("record database open", "path", path)
	return s
}
