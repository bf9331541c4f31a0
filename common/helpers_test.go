/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	helpers_test.go
*/
package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConvertToDecimal(t *testing.T) {
	cases := []struct {
		coord      string
		hemisphere string
		want       float64
	}{
		{"3745.1234", "N", 37.7520567},
		{"3745.1234", "S", -37.7520567},
		{"12231.5000", "E", 122.525},
		{"12231.5000", "W", -122.525},
		{"4807.038", "N", 48.1173},
		{"", "N", 0},
		{"12", "N", 0},       // too short for ddmm
		{"123", "E", 0},      // too short for dddmm
		{"37xx.12", "N", 0},  // non-numeric degrees
		{"3745.1234", "", 0}, // unknown hemisphere
	}
	for _, c := range cases {
		got := ConvertToDecimal(c.coord, c.hemisphere)
		assert.InDelta(t, c.want, got, 1e-6, "coord %q %q", c.coord, c.hemisphere)
	}
}

func TestFormatLocalTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 5, 9, 0, time.Local)
	assert.Equal(t, "2024-03-01T13:05:09", FormatLocalTime(ts))
}

func TestIsIPv4(t *testing.T) {
	assert.True(t, IsIPv4("169.254.10.1"))
	assert.True(t, IsIPv4("8.8.8.8"))
	assert.False(t, IsIPv4("::1"))
	assert.False(t, IsIPv4("not-an-ip"))
	assert.False(t, IsIPv4(""))
}

func TestStringInSlice(t *testing.T) {
	assert.True(t, StringInSlice("b", []string{"a", "b"}))
	assert.False(t, StringInSlice("c", []string{"a", "b"}))
	assert.False(t, StringInSlice("a", nil))
}
