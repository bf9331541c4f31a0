/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	monitor_test.go
*/
package netpriority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorDoesNotRebootBeforeWindow(t *testing.T) {
	m := NewMonitor(1)
	reboots := 0
	m.checkFn = func() bool { return false }
	m.rebootFn = func() { reboots++ }

	start := time.Now()
	m.check(start)
	m.check(start.Add(30 * time.Second))
	m.check(start.Add(59 * time.Second))

	assert.Equal(t, 0, reboots)
	assert.False(t, m.IsUp())
}

func TestMonitorRebootsAfterWindow(t *testing.T) {
	m := NewMonitor(1)
	reboots := 0
	m.checkFn = func() bool { return false }
	m.rebootFn = func() { reboots++ }

	start := time.Now()
	m.check(start)
	m.check(start.Add(61 * time.Second))
	assert.Equal(t, 1, reboots)

	// window restarts after the reboot attempt
	m.check(start.Add(90 * time.Second))
	assert.Equal(t, 1, reboots)
	m.check(start.Add(122 * time.Second))
	assert.Equal(t, 2, reboots)
}

func TestMonitorRecoveryResetsWindow(t *testing.T) {
	m := NewMonitor(1)
	reboots := 0
	up := false
	m.checkFn = func() bool { return up }
	m.rebootFn = func() { reboots++ }

	start := time.Now()
	m.check(start)

	// connectivity returns before the limit
	up = true
	m.check(start.Add(50 * time.Second))
	assert.True(t, m.IsUp())

	// a new outage starts its own window
	up = false
	m.check(start.Add(55 * time.Second))
	m.check(start.Add(70 * time.Second))
	assert.Equal(t, 0, reboots)
}

func TestMonitorDisabledWithZeroLimit(t *testing.T) {
	m := NewMonitor(0)
	reboots := 0
	m.checkFn = func() bool { return false }
	m.rebootFn = func() { reboots++ }

	start := time.Now()
	m.check(start)
	m.check(start.Add(24 * time.Hour))
	assert.Equal(t, 0, reboots)
}
