/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	discovery_test.go
*/
package rfid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleARPScan = `Interface: eth0, type: EN10MB, MAC: b8:27:eb:00:11:22, IPv4: 169.254.0.5
Starting arp-scan 1.9.7 with 65536 hosts
169.254.0.1	00:1B:21:AA:BB:CC	Intel Corporate
169.254.10.1	00:16:25:10:20:30	Impinj, Inc
169.254.10.1	00:16:25:10:20:30	Impinj, Inc
169.254.0.9	AA:BB:CC:DD:EE:FF
5 packets received by filter, 0 packets dropped by kernel
`

func TestParseARPScan(t *testing.T) {
	entries := parseARPScan(sampleARPScan)
	require.Len(t, entries, 3, "duplicate IPs must collapse")

	assert.Equal(t, "169.254.0.1", entries[0].IP)
	assert.Equal(t, "00:1b:21:aa:bb:cc", entries[0].MAC)
	assert.Equal(t, "Intel Corporate", entries[0].Vendor)

	assert.Equal(t, "169.254.10.1", entries[1].IP)
	assert.Equal(t, "Impinj, Inc", entries[1].Vendor)

	// entry with no vendor column
	assert.Equal(t, "Unknown", entries[2].Vendor)
}

func TestParseARPScanEmpty(t *testing.T) {
	assert.Empty(t, parseARPScan(""))
	assert.Empty(t, parseARPScan("no addresses here\n"))
}

func TestPickReader(t *testing.T) {
	entries := parseARPScan(sampleARPScan)
	assert.Equal(t, "169.254.10.1", pickReader(entries))

	assert.Equal(t, "", pickReader([]arpEntry{{IP: "10.0.0.1", Vendor: "Intel Corporate"}}))
	assert.Equal(t, "", pickReader(nil))

	// vendor match is case-insensitive and substring based
	assert.Equal(t, "10.0.0.2", pickReader([]arpEntry{{IP: "10.0.0.2", Vendor: "ZEBRA Technologies"}}))
}
