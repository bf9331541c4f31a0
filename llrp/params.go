/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	params.go: LLRP parameter encoding and tag report decoding
*/
package llrp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// TLV parameter types.
const (
	paramROSpec                  = 177
	paramROBoundarySpec          = 178
	paramROSpecStartTrigger      = 179
	paramROSpecStopTrigger       = 182
	paramAISpec                  = 183
	paramAISpecStopTrigger       = 184
	paramInventoryParameterSpec  = 186
	paramAntennaConfiguration    = 222
	paramRFTransmitter           = 224
	paramROReportSpec            = 237
	paramTagReportContentSel     = 238
	paramTagReportData           = 240
	paramEPCData                 = 241
	paramLLRPStatus              = 287
	paramC1G2EPCMemorySelector   = 327
	paramC1G2InventoryCommand    = 330
	paramC1G2RFControl           = 335
)

// TV (type-value, no explicit length) parameter types inside TagReportData.
const (
	tvAntennaID           = 1
	tvFirstSeenUTC        = 2
	tvFirstSeenUptime     = 3
	tvLastSeenUTC         = 4
	tvLastSeenUptime      = 5
	tvPeakRSSI            = 6
	tvChannelIndex        = 7
	tvTagSeenCount        = 8
	tvROSpecID            = 9
	tvInventoryParamSpecID = 10
	tvEPC96               = 13
	tvSpecIndex           = 14
	tvAccessSpecID        = 16
)

var tvLengths = map[byte]int{
	tvAntennaID:            2,
	tvFirstSeenUTC:         8,
	tvFirstSeenUptime:      8,
	tvLastSeenUTC:          8,
	tvLastSeenUptime:       8,
	tvPeakRSSI:             1,
	tvChannelIndex:         2,
	tvTagSeenCount:         2,
	tvROSpecID:             4,
	tvInventoryParamSpecID: 2,
	tvEPC96:                12,
	tvSpecIndex:            2,
	tvAccessSpecID:         4,
}

// tlv wraps a payload with a TLV parameter header.
func tlv(paramType uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], paramType&0x3FF)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	copy(buf[4:], payload)
	return buf
}

// param is one decoded parameter, TLV or TV.
type param struct {
	typ  uint16
	data []byte
}

// splitParams walks a buffer of concatenated parameters. TV parameters have
// the high bit of the first byte set and a type-implied length; TLV carry an
// explicit length including their 4-byte header.
func splitParams(buf []byte) ([]param, error) {
	var out []param
	for len(buf) > 0 {
		if buf[0]&0x80 != 0 {
			typ := buf[0] & 0x7F
			n, ok := tvLengths[typ]
			if !ok {
				return nil, fmt.Errorf("llrp: unknown TV parameter type %d", typ)
			}
			if len(buf) < 1+n {
				return nil, fmt.Errorf("llrp: truncated TV parameter type %d", typ)
			}
			out = append(out, param{typ: uint16(typ), data: buf[1 : 1+n]})
			buf = buf[1+n:]
			continue
		}
		if len(buf) < 4 {
			return nil, fmt.Errorf("llrp: truncated TLV header")
		}
		typ := binary.BigEndian.Uint16(buf[0:2]) & 0x3FF
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 4 || length > len(buf) {
			return nil, fmt.Errorf("llrp: bad TLV length %d for type %d", length, typ)
		}
		out = append(out, param{typ: typ, data: buf[4:length]})
		buf = buf[length:]
	}
	return out, nil
}

// TagReport is one decoded TagReportData parameter.
type TagReport struct {
	EPC          string // hex encoded
	AntennaID    uint16
	PeakRSSI     int8
	ChannelIndex uint16
	TagSeenCount uint16
	FirstSeenUTC uint64 // microseconds
	LastSeenUTC  uint64 // microseconds
}

// decodeROAccessReport extracts all tag reports from an RO_ACCESS_REPORT
// payload. Unknown parameters are skipped.
func decodeROAccessReport(payload []byte) ([]TagReport, error) {
	params, err := splitParams(payload)
	if err != nil {
		return nil, err
	}
	var reports []TagReport
	for _, p := range params {
		if p.typ != paramTagReportData {
			continue
		}
		r, err := decodeTagReportData(p.data)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func decodeTagReportData(buf []byte) (TagReport, error) {
	var r TagReport
	params, err := splitParams(buf)
	if err != nil {
		return r, err
	}
	for _, p := range params {
		switch p.typ {
		case paramEPCData:
			// u16 bit count, then the EPC bytes
			if len(p.data) >= 2 {
				bits := int(binary.BigEndian.Uint16(p.data[0:2]))
				n := (bits + 7) / 8
				if n <= len(p.data)-2 {
					r.EPC = hex.EncodeToString(p.data[2 : 2+n])
				}
			}
		case tvEPC96:
			r.EPC = hex.EncodeToString(p.data)
		case tvAntennaID:
			r.AntennaID = binary.BigEndian.Uint16(p.data)
		case tvPeakRSSI:
			r.PeakRSSI = int8(p.data[0])
		case tvChannelIndex:
			r.ChannelIndex = binary.BigEndian.Uint16(p.data)
		case tvTagSeenCount:
			r.TagSeenCount = binary.BigEndian.Uint16(p.data)
		case tvFirstSeenUTC:
			r.FirstSeenUTC = binary.BigEndian.Uint64(p.data)
		case tvLastSeenUTC:
			r.LastSeenUTC = binary.BigEndian.Uint64(p.data)
		}
	}
	return r, nil
}

// statusFromResponse digs the LLRPStatus parameter out of a response payload
// and converts a non-success code to an error.
func statusFromResponse(payload []byte) error {
	params, err := splitParams(payload)
	if err != nil {
		return err
	}
	for _, p := range params {
		if p.typ != paramLLRPStatus || len(p.data) < 4 {
			continue
		}
		code := binary.BigEndian.Uint16(p.data[0:2])
		if code == 0 {
			return nil
		}
		descLen := int(binary.BigEndian.Uint16(p.data[2:4]))
		desc := ""
		if 4+descLen <= len(p.data) {
			desc = string(p.data[4 : 4+descLen])
		}
		return fmt.Errorf("llrp: reader returned status %d: %s", code, desc)
	}
	return nil
}
