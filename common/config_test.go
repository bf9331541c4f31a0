/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	config_test.go
*/
package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestConfigStoreDefaults(t *testing.T) {
	path := tempConfig(t)
	s, err := NewConfigStore(path)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, "169.254.10.1", snap.RFID.Host)
	assert.Equal(t, 5084, snap.RFID.Port)
	assert.Equal(t, 115200, snap.GPS.BaudRate)
	assert.True(t, snap.GPS.UseExternal)
	assert.Equal(t, "120", snap.API.SpotterID)
	assert.Equal(t, 7000, snap.API.RecordIntervalMS)
	assert.Equal(t, 10, snap.API.MaxUploadRecords)
	assert.True(t, snap.Database.UseDB)
	assert.Equal(t, 100, snap.Database.MaxRecords)
	assert.Equal(t, 3, snap.Database.DuplicateDetectionSeconds)
	assert.True(t, snap.Filter.Speed.Enabled)
	assert.Equal(t, 1.0, snap.Filter.Speed.Min)
	assert.Equal(t, 20.0, snap.Filter.Speed.Max)
	assert.False(t, snap.Filter.RSSI.Enabled)
	assert.Equal(t, 9600, snap.BaudRateDon)
	assert.Equal(t, 5, snap.InternetLimitTime)

	// missing file is written out with the defaults
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestConfigStorePartialFileMergesOverDefaults(t *testing.T) {
	path := tempConfig(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"rfid_config":{"host":"10.0.0.9"}}`), 0o644))

	s, err := NewConfigStore(path)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, "10.0.0.9", snap.RFID.Host)
	// untouched sections keep defaults
	assert.Equal(t, 5084, snap.RFID.Port)
	assert.Equal(t, 115200, snap.GPS.BaudRate)
}

func TestConfigStoreRegeneratesCorruptFile(t *testing.T) {
	path := tempConfig(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"rfid_config": not-json`), 0o644))

	s, err := NewConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, "169.254.10.1", s.Snapshot().RFID.Host)
}

func TestConfigStoreReloadNotifies(t *testing.T) {
	path := tempConfig(t)
	s, err := NewConfigStore(path)
	require.NoError(t, err)
	v1 := s.Snapshot().Version

	var got []Snapshot
	s.OnReload(func(snap Snapshot) { got = append(got, snap) })

	require.NoError(t, os.WriteFile(path, []byte(`{"internet_limit_time": 9}`), 0o644))
	require.NoError(t, s.Reload())

	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].InternetLimitTime)
	assert.Greater(t, got[0].Version, v1)
}

func TestReloadNotifiesEverySubscriber(t *testing.T) {
	path := tempConfig(t)
	s, err := NewConfigStore(path)
	require.NoError(t, err)

	calls := 0
	s.OnReload(func(Snapshot) { calls++ })
	s.OnReload(func(Snapshot) { calls++ })
	// registering from inside a callback must not deadlock the notifier
	s.OnReload(func(Snapshot) { s.OnReload(func(Snapshot) {}) })

	require.NoError(t, s.Reload())
	assert.Equal(t, 2, calls)
}

func TestSetRFIDHostPersists(t *testing.T) {
	path := tempConfig(t)
	s, err := NewConfigStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetRFIDHost("169.254.1.1"))

	reopened, err := NewConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, "169.254.1.1", reopened.Snapshot().RFID.Host)
}
