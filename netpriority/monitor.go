/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	monitor.go: Internet reachability watchdog with reboot recovery
*/
package netpriority

import (
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-ping/ping"

	"github.com/tagspot/tagspot/common"
)

const (
	checkInterval = 5 * time.Second
	checkTimeout  = 3 * time.Second
)

// Monitor watches internet reachability and reboots the host after a
// configurable stretch of downtime. A reboot is the cheapest way back to a
// sane modem and route table on unattended kiosks.
type Monitor struct {
	eh         *common.ExitHelper
	limit      time.Duration
	mu         sync.Mutex
	downSince  time.Time
	up         bool
	checkFn    func() bool
	rebootFn   func()
}

// NewMonitor creates a monitor that reboots after limitMinutes of
// continuous downtime. limitMinutes <= 0 disables the reboot.
func NewMonitor(limitMinutes int) *Monitor {
	return &Monitor{
		eh:       common.NewExitHelper(),
		limit:    time.Duration(limitMinutes) * time.Minute,
		checkFn:  checkInternet,
		rebootFn: rebootHost,
	}
}

func checkInternet() bool {
	p, err := ping.NewPinger(pingTarget)
	if err != nil {
		return false
	}
	p.Count = 1
	p.Timeout = checkTimeout
	p.SetPrivileged(true)
	if err := p.Run(); err != nil {
		return false
	}
	return p.Statistics().PacketsRecv > 0
}

func rebootHost() {
	common.Log().Warnw("rebooting host to recover connectivity")
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("shutdown", "/r", "/t", "10")
	} else {
		cmd = exec.Command("sudo", "reboot")
	}
	if err := cmd.Run(); err != nil {
		common.Log().Errorw("reboot command failed", "error", err)
	}
}

// IsUp reports the result of the most recent connectivity check.
func (m *Monitor) IsUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up
}

// Run starts the periodic connectivity checks.
func (m *Monitor) Run() {
	go m.loop()
}

// Stop shuts the monitor down and waits for the check loop to exit.
func (m *Monitor) Stop() {
	m.eh.Exit()
}

func (m *Monitor) loop() {
	m.eh.Add()
	defer m.eh.Done()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.eh.C:
			return
		case <-ticker.C:
			m.check(time.Now())
		}
	}
}

func (m *Monitor) check(now time.Time) {
	up := m.checkFn()

	m.mu.Lock()
	wasUp := m.up
	m.up = up
	if up {
		m.downSince = time.Time{}
	} else if m.downSince.IsZero() {
		m.downSince = now
	}
	downFor := time.Duration(0)
	if !m.downSince.IsZero() {
		downFor = now.Sub(m.downSince)
	}
	m.mu.Unlock()

	if up {
		if !wasUp {
			common.Log().Infow("internet connectivity restored")
		}
		return
	}
	if wasUp {
		common.Log().Warnw("internet connectivity lost")
	}
	if m.limit > 0 && downFor >= m.limit {
		common.Log().Errorw("internet down past limit", "down", downFor.String(), "limit", m.limit.String())
		m.rebootFn()
		m.mu.Lock()
		m.downSince = now
		m.mu.Unlock()
	}
}

// RequestDHCPLease asks the DHCP client for a lease on the named interface.
// Used at startup for cellular modems that come up without one.
func RequestDHCPLease(iface string) {
	if runtime.GOOS != "linux" {
		return
	}
	cmd := exec.Command("sudo", "dhclient", iface)
	if err := cmd.Run(); err != nil {
		common.Log().Warnw("dhclient failed", "interface", iface, "error", err)
		return
	}
	common.Log().Infow("dhcp lease requested", "interface", iface)
}
