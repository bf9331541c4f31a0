/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	geo.go: Speed and bearing between consecutive fixes
*/
package common

import (
	geo "github.com/kellydunn/golang-geo"
)

const metersPerSecToMph = 2.23694

// SpeedBearing computes ground speed in mph and true bearing in degrees
// [0,360) from two timestamped positions. elapsedSec <= 0 yields zero speed.
func SpeedBearing(lat1, lon1, lat2, lon2, elapsedSec float64) (speedMph float64, bearingDeg float64) {
	p1 := geo.NewPoint(lat1, lon1)
	p2 := geo.NewPoint(lat2, lon2)

	if elapsedSec > 0 {
		meters := p1.GreatCircleDistance(p2) * 1000.0
		speedMph = meters / elapsedSec * metersPerSecToMph
	}

	bearingDeg = p1.BearingTo(p2)
	for bearingDeg < 0 {
		bearingDeg += 360
	}
	for bearingDeg >= 360 {
		bearingDeg -= 360
	}
	return speedMph, bearingDeg
}
