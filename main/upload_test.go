/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	upload_test.go
*/
package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagspot/tagspot/api"
	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/store"
)

type batchServer struct {
	srv     *httptest.Server
	batches [][]api.RecordPayload
	failAt  int // 1-based batch index to fail, 0 = never
}

func newBatchServer(failAt int) *batchServer {
	b := &batchServer{failAt: failAt}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []api.RecordPayload
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.batches = append(b.batches, batch)
		if b.failAt != 0 && len(b.batches) == b.failAt {
			w.Write([]byte(`{"isSuccess": false, "status": "Error"}`))
			return
		}
		w.Write([]byte(`{"isSuccess": true, "status": "Ok"}`))
	}))
	return b
}

func testUploader(t *testing.T, recordURL string) (*Uploader, *store.MemoryStore) {
	t.Helper()
	cfgStore, err := common.NewConfigStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	records := store.NewMemory(100)
	client := api.NewClient(common.APIConfig{RecordURL: recordURL})
	return &Uploader{
		cfgStore: cfgStore,
		records:  records,
		client:   client,
		deviceID: "dev-1",
		eh:       common.NewExitHelper(),
	}, records
}

func seedRecords(t *testing.T, records store.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := records.Add(store.Record{
			RFIDTag:         "epc",
			Antenna:         1,
			Latitude:        float64(i),
			Longitude:       float64(i),
			Speed:           12.7,
			Heading:         80,
			TimestampMicros: int64(i) * 1000,
		})
		require.NoError(t, err)
	}
}

func TestUploadRecordsBatchesOldestFirst(t *testing.T) {
	server := newBatchServer(0)
	defer server.srv.Close()
	u, records := testUploader(t, server.srv.URL)
	seedRecords(t, records, 25)

	u.uploadRecords(10, "site-120")

	require.Len(t, server.batches, 3)
	assert.Len(t, server.batches[0], 10)
	assert.Len(t, server.batches[1], 10)
	assert.Len(t, server.batches[2], 5)

	// oldest record leads the first batch
	first := server.batches[0][0]
	assert.Equal(t, 1.0, first.Latitude)
	assert.Equal(t, "site-120", first.SiteID)
	assert.Equal(t, "dev-1", first.DeviceID)
	assert.Equal(t, 12, first.Speed, "speed is truncated to whole mph")
	assert.Equal(t, 80.0, first.Barrier)
	assert.True(t, first.IsProcess)

	n, _ := records.Count()
	assert.Zero(t, n, "confirmed records are deleted")
}

func TestUploadRecordsStopsOnFailedBatch(t *testing.T) {
	server := newBatchServer(2)
	defer server.srv.Close()
	u, records := testUploader(t, server.srv.URL)
	seedRecords(t, records, 25)

	u.uploadRecords(10, "site-120")

	// third batch never sent after the second failed
	require.Len(t, server.batches, 2)

	// only the first, confirmed batch was deleted
	n, _ := records.Count()
	assert.Equal(t, 15, n)
}

func TestUploadRecordsSkipsZeroPosition(t *testing.T) {
	server := newBatchServer(0)
	defer server.srv.Close()
	u, records := testUploader(t, server.srv.URL)

	_, err := records.Add(store.Record{RFIDTag: "nofix", TimestampMicros: 1})
	require.NoError(t, err)
	seedRecords(t, records, 2)

	u.uploadRecords(10, "site-120")

	require.Len(t, server.batches, 1)
	assert.Len(t, server.batches[0], 2)

	// the unsendable record stays buffered
	n, _ := records.Count()
	assert.Equal(t, 1, n)
}

func TestUploadRecordsEmptyBuffer(t *testing.T) {
	server := newBatchServer(0)
	defer server.srv.Close()
	u, _ := testUploader(t, server.srv.URL)

	u.uploadRecords(10, "site-120")
	assert.Empty(t, server.batches)
}

func TestUploadRecordsDefaultsAntenna(t *testing.T) {
	server := newBatchServer(0)
	defer server.srv.Close()
	u, records := testUploader(t, server.srv.URL)

	_, err := records.Add(store.Record{RFIDTag: "a", Latitude: 1, Longitude: 1, TimestampMicros: 1})
	require.NoError(t, err)

	u.uploadRecords(10, "site-120")
	require.Len(t, server.batches, 1)
	assert.Equal(t, 1, server.batches[0][0].Antenna)
}

func TestRecordLoopSendsConfiguredSiteID(t *testing.T) {
	server := newBatchServer(0)
	defer server.srv.Close()
	u, records := testUploader(t, server.srv.URL)
	seedRecords(t, records, 1)

	require.NoError(t, u.cfgStore.Update(func(c *common.Config) {
		c.API.SiteID = "site-main"
		c.API.SpotterID = "spotter-9"
		c.API.RecordIntervalMS = 10
	}))

	go u.recordLoop()
	defer u.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if n, err := records.Count(); err == nil && n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("buffered record was never uploaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NotEmpty(t, server.batches)
	assert.Equal(t, "site-main", server.batches[0][0].SiteID)
}
