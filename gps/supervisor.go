/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	supervisor.go: Keeps a Tracker alive against whatever port has a GPS
*/
package gps

import (
	"sync"
	"time"

	"github.com/tagspot/tagspot/common"
)

const (
	rescanInterval    = 30 * time.Second
	staleCheckEvery   = 10 * time.Second
	reEnableAfterDown = 5 * time.Minute
)

// Supervisor finds a GPS receiver, runs a Tracker against it and replaces
// the Tracker when the device disappears. Trackers are replaced wholesale,
// so consumers must resolve positions through the Supervisor on every read
// instead of holding a Tracker reference.
type Supervisor struct {
	cfg          common.GPSConfig
	fallbackBaud int

	scanner *Scanner
	eh      *common.ExitHelper

	mu                sync.RWMutex
	tracker           *Tracker
	statusText        string
	disconnectedSince time.Time
}

func NewSupervisor(cfg common.GPSConfig, fallbackBaud int) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		fallbackBaud: fallbackBaud,
		scanner:      NewScanner(),
		eh:           common.NewExitHelper(),
		statusText:   "Disconnected",
	}
}

func (s *Supervisor) Run() {
	go s.loop()
}

func (s *Supervisor) Stop() {
	s.eh.Exit()
	if t := s.Tracker(); t != nil {
		t.Stop()
	}
}

// Tracker returns the current Tracker instance, nil when no receiver is
// attached. Callers must not cache the result.
func (s *Supervisor) Tracker() *Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker
}

// Position resolves the current fix through whatever Tracker is live right
// now. ok is false when no receiver is attached.
func (s *Supervisor) Position() (Fix, int64, bool) {
	t := s.Tracker()
	if t == nil {
		return Fix{}, 0, false
	}
	fix, ts := t.Fix()
	return fix, ts, t.IsConnected()
}

func (s *Supervisor) StatusText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusText
}

func (s *Supervisor) IsConnected() bool {
	t := s.Tracker()
	return t != nil && t.IsConnected()
}

func (s *Supervisor) setStatus(text string) {
	s.mu.Lock()
	s.statusText = text
	s.mu.Unlock()
}

func (s *Supervisor) loop() {
	s.eh.Add()
	defer s.eh.Done()

	s.scanner.EnableGPS()
	s.markDown()
	s.scan()

	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()
	stale := time.NewTicker(staleCheckEvery)
	defer stale.Stop()

	for {
		var events <-chan bool
		if t := s.Tracker(); t != nil {
			events = t.Events()
		}

		select {
		case <-s.eh.C:
			return
		case <-rescan.C:
			if !s.IsConnected() {
				s.scan()
			}
		case <-stale.C:
			s.checkStale()
		case up := <-events:
			if up {
				s.setStatus("External GPS Connected")
				s.clearDown()
			} else {
				s.setStatus("Disconnected")
				s.markDown()
			}
		}
	}
}

// scan runs the two-phase port probe and swaps in a fresh Tracker when a
// receiver is found.
func (s *Supervisor) scan() {
	baud := s.scanner.PreConfigure(s.cfg, s.fallbackBaud)
	port := s.scanner.Find(baud)
	if port == "" {
		s.setStatus("Disconnected")
		s.markDown()
		return
	}

	s.mu.Lock()
	old := s.tracker
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	t := NewTracker(port, baud)
	t.Run()

	s.mu.Lock()
	s.tracker = t
	s.statusText = "External GPS Connected"
	s.mu.Unlock()
	s.clearDown()
}

func (s *Supervisor) markDown() {
	s.mu.Lock()
	if s.disconnectedSince.IsZero() {
		s.disconnectedSince = time.Now()
	}
	s.mu.Unlock()
}

func (s *Supervisor) clearDown() {
	s.mu.Lock()
	s.disconnectedSince = time.Time{}
	s.mu.Unlock()
}

// checkStale re-sends the GNSS enable command when the receiver has been
// gone long enough that the modem may have powered its engine off.
func (s *Supervisor) checkStale() {
	s.mu.RLock()
	since := s.disconnectedSince
	s.mu.RUnlock()
	if since.IsZero() || time.Since(since) < reEnableAfterDown {
		return
	}
	common.Log().Warnw("gps down past threshold, re-sending enable command", "down_for", time.Since(since).String())
	s.scanner.EnableGPS()
	s.clearDown()
}
