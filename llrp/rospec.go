/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	rospec.go: Reader operation spec construction
*/
package llrp

import "encoding/binary"

const defaultROSpecID = 1

// Config describes the inventory operation requested from the reader.
type Config struct {
	// Antennas to inventory; empty means all antennas.
	Antennas []uint16
	// ReportEveryNTags sets the report trigger threshold.
	ReportEveryNTags uint16
	Session          uint8
	TagPopulation    uint16
	// TxPower is an index into the reader's transmit power table; 0 keeps
	// the reader's current power.
	TxPower uint16
	// Tari in nanoseconds; 0 lets the reader choose.
	Tari uint16
	// StartInventory false builds a connection that never adds an ROSpec,
	// used to probe whether a host speaks LLRP at all.
	StartInventory bool
}

// TagReportContentSelector flags, high bit first.
const (
	selROSpecID          = 1 << 15
	selSpecIndex         = 1 << 14
	selInventoryParamID  = 1 << 13
	selAntennaID         = 1 << 12
	selChannelIndex      = 1 << 11
	selPeakRSSI          = 1 << 10
	selFirstSeenUTC      = 1 << 9
	selLastSeenUTC       = 1 << 8
	selTagSeenCount      = 1 << 7
	selAccessSpecID      = 1 << 6
)

// buildROSpec encodes the ADD_ROSPEC payload: an immediately-started,
// never-stopping inventory over the configured antennas that reports every N
// tags with the full tag content selection.
func buildROSpec(cfg Config) []byte {
	// ROSpecStartTrigger: immediate
	startTrigger := tlv(paramROSpecStartTrigger, []byte{1})
	// ROSpecStopTrigger: null, duration 0
	stopTrigger := tlv(paramROSpecStopTrigger, []byte{0, 0, 0, 0, 0})
	boundary := tlv(paramROBoundarySpec, append(startTrigger, stopTrigger...))

	antennas := cfg.Antennas
	if len(antennas) == 0 {
		antennas = []uint16{0} // 0 = all antennas
	}
	ai := make([]byte, 2+2*len(antennas))
	binary.BigEndian.PutUint16(ai[0:2], uint16(len(antennas)))
	for i, a := range antennas {
		binary.BigEndian.PutUint16(ai[2+2*i:], a)
	}
	// AISpecStopTrigger: null
	ai = append(ai, tlv(paramAISpecStopTrigger, []byte{0, 0, 0, 0, 0})...)

	// InventoryParameterSpec: id 1, EPCGlobal C1G2
	ips := append([]byte{0, 1, 1}, antennaConfiguration(cfg)...)
	ai = append(ai, tlv(paramInventoryParameterSpec, ips)...)
	aiSpec := tlv(paramAISpec, ai)

	everyN := cfg.ReportEveryNTags
	if everyN == 0 {
		everyN = 1
	}
	selector := uint16(selROSpecID | selSpecIndex | selInventoryParamID |
		selAntennaID | selChannelIndex | selPeakRSSI |
		selFirstSeenUTC | selLastSeenUTC | selTagSeenCount | selAccessSpecID)

	selBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(selBytes, selector)
	// C1G2EPCMemorySelector: CRC + PC bits enabled
	selBytes = append(selBytes, tlv(paramC1G2EPCMemorySelector, []byte{0xC0})...)
	contentSel := tlv(paramTagReportContentSel, selBytes)

	// ROReportSpec: trigger 1 (upon N TagReportData or end of AISpec)
	report := make([]byte, 3)
	report[0] = 1
	binary.BigEndian.PutUint16(report[1:3], everyN)
	reportSpec := tlv(paramROReportSpec, append(report, contentSel...))

	body := make([]byte, 6)
	binary.BigEndian.PutUint32(body[0:4], defaultROSpecID)
	body[4] = 0 // priority
	body[5] = 0 // current state: disabled
	body = append(body, boundary...)
	body = append(body, aiSpec...)
	body = append(body, reportSpec...)

	return tlv(paramROSpec, body)
}

// antennaConfiguration encodes the RF settings the inventory runs with,
// applied to antenna 0 (all antennas). Empty when neither power nor Tari is
// configured, so the reader keeps its own defaults.
func antennaConfiguration(cfg Config) []byte {
	if cfg.TxPower == 0 && cfg.Tari == 0 {
		return nil
	}
	body := []byte{0, 0} // antenna id 0: all antennas
	if cfg.TxPower != 0 {
		rf := make([]byte, 6)
		binary.BigEndian.PutUint16(rf[0:2], 1) // hop table id
		binary.BigEndian.PutUint16(rf[2:4], 1) // channel index
		binary.BigEndian.PutUint16(rf[4:6], cfg.TxPower)
		body = append(body, tlv(paramRFTransmitter, rf)...)
	}
	if cfg.Tari != 0 {
		rc := make([]byte, 4)
		// mode index 0: the reader's default RF mode
		binary.BigEndian.PutUint16(rc[2:4], cfg.Tari)
		inv := append([]byte{0}, tlv(paramC1G2RFControl, rc)...)
		body = append(body, tlv(paramC1G2InventoryCommand, inv)...)
	}
	return tlv(paramAntennaConfiguration, body)
}

// rospecIDPayload encodes the 4-byte ROSpecID body shared by the
// DELETE/START/STOP/ENABLE ROSpec messages. ID 0 addresses all ROSpecs.
func rospecIDPayload(id uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return buf
}

// resetReaderConfigPayload encodes SET_READER_CONFIG with the factory-reset
// flag set, clearing whatever state a previous client left behind.
func resetReaderConfigPayload() []byte {
	return []byte{0x80}
}
