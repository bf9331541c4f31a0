/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	tracker.go: Serial connection to a single GPS receiver
*/
package gps

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/ratelimit"

	"github.com/tagspot/tagspot/common"
)

// bufferedLowWater mirrors the receiver's pacing: when fewer bytes than a
// full sentence burst are waiting, back off briefly instead of spinning on
// short reads.
const bufferedLowWater = 80

// dataTimeout forces a reconnect when an open port goes silent.
const dataTimeout = 10 * time.Second

type portOpener func(name string, baud int) (io.ReadWriteCloser, error)

func openSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: 2500 * time.Millisecond})
}

// Tracker owns the serial connection to one GPS receiver, parses RMC
// sentences and exposes the last-known fix. It reconnects on its own; the
// Events channel carries one boolean per connectivity transition.
type Tracker struct {
	Port string
	Baud int

	open portOpener
	eh   *common.ExitHelper

	mu            sync.RWMutex
	fix           Fix
	fixTimeMicros int64
	connected     bool

	events chan bool
}

func NewTracker(port string, baud int) *Tracker {
	return &Tracker{
		Port:   port,
		Baud:   baud,
		open:   openSerialPort,
		eh:     common.NewExitHelper(),
		events: make(chan bool, 8),
	}
}

// Run starts the reader goroutine and returns immediately.
func (t *Tracker) Run() {
	go t.rxLoop()
}

// Stop shuts the reader down and waits for it to finish.
func (t *Tracker) Stop() {
	t.eh.Exit()
}

// Fix returns the last parsed position and the wall-clock microsecond
// timestamp it was parsed at (0 when nothing has been parsed yet).
func (t *Tracker) Fix() (Fix, int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fix, t.fixTimeMicros
}

func (t *Tracker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Events yields one value per connectivity transition: true on connect,
// false on loss. Values are dropped rather than blocking the reader.
func (t *Tracker) Events() <-chan bool {
	return t.events
}

func (t *Tracker) setConnected(up bool) {
	t.mu.Lock()
	changed := t.connected != up
	t.connected = up
	t.mu.Unlock()
	if !changed {
		return
	}
	select {
	case t.events <- up:
	default:
		common.Log().Warnw("gps event channel full, dropping transition", "port", t.Port)
	}
}

func (t *Tracker) resetFix() {
	t.mu.Lock()
	t.fix = Fix{}
	t.mu.Unlock()
}

func (t *Tracker) storeFix(fix Fix) {
	now := time.Now().UnixMicro()

	t.mu.Lock()
	prev, prevTime := t.fix, t.fixTimeMicros
	// Derive missing speed or course from the previous fix.
	if (!fix.speedKnown || !fix.headingKnown) && fix.HasPosition() && prev.HasPosition() && prevTime > 0 {
		elapsed := float64(now-prevTime) / 1e6
		if elapsed > 0 {
			speed, bearing := common.SpeedBearing(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude, elapsed)
			if !fix.speedKnown {
				fix.SpeedMph = speed
			}
			if !fix.headingKnown {
				fix.HeadingDeg = bearing
			}
		}
	}
	t.fix = fix
	t.fixTimeMicros = now
	t.mu.Unlock()
}

func (t *Tracker) rxLoop() {
	t.eh.Add()
	defer t.eh.Done()

	rl := ratelimit.New(1, ratelimit.Per(2*time.Second))
	for !t.eh.IsExit() {
		rl.Take()

		port, err := t.open(t.Port, t.Baud)
		if err != nil {
			t.setConnected(false)
			continue
		}
		t.setConnected(true)
		common.Log().Infow("gps serial port opened", "port", t.Port, "baud", t.Baud)

		t.runSession(port)

		// Read loop only returns on error or shutdown. Zero the fix so
		// consumers never correlate against stale coordinates.
		t.resetFix()
		t.setConnected(false)
		port.Close()
	}
}

// runSession reads from port until error or shutdown. The watcher closes
// the port on Stop to unblock a pending read, and is released when the
// session ends so reconnect cycles don't leave goroutines behind.
func (t *Tracker) runSession(port io.ReadWriteCloser) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.eh.C:
			port.Close()
		case <-done:
		}
	}()

	t.readSentences(port)
}

func (t *Tracker) readSentences(port io.ReadWriteCloser) {
	wd := common.NewWatchDog(dataTimeout)
	defer wd.Stop()

	reader := bufio.NewReader(port)
	for !t.eh.IsExit() {
		if wd.IsTriggered() {
			common.Log().Warnw("gps port silent, reconnecting", "port", t.Port)
			return
		}
		if reader.Buffered() < bufferedLowWater {
			time.Sleep(200 * time.Millisecond)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			common.Log().Debugw("gps serial read failed", "port", t.Port, "error", err)
			return
		}
		wd.Poke()
		t.processLine(strings.TrimSpace(line))
	}
}

func (t *Tracker) processLine(line string) {
	if !strings.HasPrefix(line, "$GPRMC") && !strings.HasPrefix(line, "$GNRMC") {
		return
	}
	fix, ok := parseRMC(line)
	if !ok {
		common.Log().Debugw("gps rmc parse failed", "line", line)
		t.resetFix()
		return
	}
	t.storeFix(fix)
}
