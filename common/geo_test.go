/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	geo_test.go
*/
package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedBearingStationary(t *testing.T) {
	speed, _ := SpeedBearing(37.75, -122.45, 37.75, -122.45, 10)
	assert.InDelta(t, 0, speed, 0.01)
}

func TestSpeedBearingDueNorth(t *testing.T) {
	// one degree of latitude in one hour is roughly 69 mph
	speed, bearing := SpeedBearing(0, 0, 1, 0, 3600)
	assert.InDelta(t, 69.1, speed, 1.0)
	assert.InDelta(t, 0, bearing, 1.0)
}

func TestSpeedBearingDueEast(t *testing.T) {
	_, bearing := SpeedBearing(0, 0, 0, 1, 3600)
	assert.InDelta(t, 90, bearing, 1.0)
}

func TestSpeedBearingNormalized(t *testing.T) {
	// westbound comes back in [0,360), not negative
	_, bearing := SpeedBearing(0, 1, 0, 0, 3600)
	assert.InDelta(t, 270, bearing, 1.0)
	assert.GreaterOrEqual(t, bearing, 0.0)
	assert.Less(t, bearing, 360.0)
}
