/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	fix.go: Position fix type and RMC sentence parsing
*/
package gps

import (
	"strconv"
	"strings"

	"github.com/tagspot/tagspot/common"
)

const knotsToMph = 1.15078

// Fix is the last-known position. A zero Fix means "no position": lat and
// lon both zero are treated as invalid everywhere downstream.
type Fix struct {
	Latitude   float64
	Longitude  float64
	SpeedMph   float64
	HeadingDeg float64

	// set when the sentence carried the field; some receivers leave speed
	// and course empty, in which case the tracker derives them
	speedKnown   bool
	headingKnown bool
}

func (f Fix) HasPosition() bool {
	return f.Latitude != 0 || f.Longitude != 0
}

// parseRMC extracts a Fix from a GPRMC/GNRMC sentence. Any malformed input
// yields (Fix{}, false) so the caller resets to "no position" rather than
// keeping stale coordinates.
func parseRMC(line string) (Fix, bool) {
	if !strings.HasPrefix(line, "$GPRMC") && !strings.HasPrefix(line, "$GNRMC") {
		return Fix{}, false
	}
	stripped, ok := common.ValidateNMEAChecksum(line)
	if !ok {
		return Fix{}, false
	}
	x := strings.Split(stripped, ",")
	// GxRMC,time,status,lat,NS,lon,EW,speed,course,date,...
	if len(x) < 10 {
		return Fix{}, false
	}

	var fix Fix
	fix.Latitude = common.ConvertToDecimal(x[3], x[4])
	fix.Longitude = common.ConvertToDecimal(x[5], x[6])

	if knots, err := strconv.ParseFloat(x[7], 64); err == nil {
		fix.SpeedMph = knots * knotsToMph
		fix.speedKnown = true
	}
	if course, err := strconv.ParseFloat(x[8], 64); err == nil {
		fix.HeadingDeg = course
		fix.headingKnown = true
	}
	return fix, true
}
