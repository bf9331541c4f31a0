/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	reader_test.go
*/
package rfid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/llrp"
)

func testReader(t *testing.T, position PositionFunc) *Reader {
	t.Helper()
	cfgStore, err := common.NewConfigStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	return NewReader(cfgStore, position)
}

func TestLLRPConfigCarriesRFSettings(t *testing.T) {
	r := testReader(t, nil)
	require.NoError(t, r.cfgStore.Update(func(c *common.Config) {
		c.RFID.Antennas = "1,2"
		c.RFID.TxPower = 81
		c.RFID.Tari = 25
	}))

	cfg := r.llrpConfig()
	assert.Equal(t, []uint16{1, 2}, cfg.Antennas)
	assert.Equal(t, uint16(81), cfg.TxPower)
	assert.Equal(t, uint16(25), cfg.Tari)
	assert.True(t, cfg.StartInventory)
}

func TestParseAntennas(t *testing.T) {
	assert.Equal(t, []uint16{1}, parseAntennas("1"))
	assert.Equal(t, []uint16{1, 2, 4}, parseAntennas("1, 2,4"))
	assert.Equal(t, []uint16{3}, parseAntennas("x,3,-1"))
	assert.Nil(t, parseAntennas(""))
}

func TestRound7(t *testing.T) {
	assert.Equal(t, 37.7520567, round7(37.75205671234))
	assert.Equal(t, -122.525, round7(-122.525))
	assert.Equal(t, 0.0, round7(0))
}

func TestOnReportsKeepsFirstReportWithPosition(t *testing.T) {
	r := testReader(t, func() (float64, float64, float64, float64) {
		return 37.752056712345, -122.52500098765, 12.5, 270
	})

	r.onReports([]llrp.TagReport{
		{EPC: "aaaa", AntennaID: 1, PeakRSSI: -60, LastSeenUTC: 100},
		{EPC: "bbbb", AntennaID: 2, PeakRSSI: -70, LastSeenUTC: 101},
	})

	ev := <-r.Events()
	assert.Equal(t, "aaaa", ev.Report.EPC)
	assert.Equal(t, 37.7520567, ev.Latitude)
	assert.Equal(t, -122.5250010, ev.Longitude)
	assert.Equal(t, 12.5, ev.SpeedMph)
	assert.Equal(t, 270.0, ev.HeadingDeg)
}

func TestOnReportsNewestWins(t *testing.T) {
	r := testReader(t, func() (float64, float64, float64, float64) {
		return 1, 1, 0, 0
	})

	r.onReports([]llrp.TagReport{{EPC: "first"}})
	r.onReports([]llrp.TagReport{{EPC: "second"}})
	r.onReports([]llrp.TagReport{{EPC: "third"}})

	ev := <-r.Events()
	assert.Equal(t, "third", ev.Report.EPC)

	last, dropped := r.LastEvent()
	require.NotNil(t, last)
	assert.Equal(t, "third", last.Report.EPC)
	assert.Equal(t, uint64(2), dropped)
}

func TestOnReportsEmptyBatch(t *testing.T) {
	r := testReader(t, nil)
	r.onReports(nil)

	last, _ := r.LastEvent()
	assert.Nil(t, last)
	assert.Empty(t, r.events)
}

func TestSetConnectedEdgeTriggered(t *testing.T) {
	r := testReader(t, nil)
	r.setConnected(true)
	r.setConnected(true)
	r.setConnected(false)

	require.Len(t, r.states, 2)
	assert.True(t, <-r.States())
	assert.False(t, <-r.States())
}
