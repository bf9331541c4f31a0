/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	reader.go: RFID reader connection manager
*/
package rfid

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/tevino/abool/v2"

	"github.com/tagspot/tagspot/common"
	"github.com/tagspot/tagspot/llrp"
)

const (
	maxInitialAttempts = 10
	steadyPingEvery    = time.Second
	discoveryIface     = "eth0"
	discoverySubnet    = "169.254.0.0/16"
)

// PositionFunc resolves the position to stamp onto a tag at the moment it is
// seen. It must always read through to the *current* GPS tracker, never a
// cached one, and must never block.
type PositionFunc func() (lat, lon, speedMph, headingDeg float64)

// TagEvent is one tag observation merged with the position it was seen at.
// Coordinates are rounded to 7 decimals.
type TagEvent struct {
	Report     llrp.TagReport
	Latitude   float64
	Longitude  float64
	SpeedMph   float64
	HeadingDeg float64
}

// Reader keeps one LLRP client alive against the configured reader host. It
// pings the host to decide connection health and falls back to network
// discovery (default hosts, then ARP scan) when the host goes unreachable.
// The newest TagEvent overwrites the previous one: consumers that lag see
// only the latest observation.
type Reader struct {
	cfgStore *common.ConfigStore
	position PositionFunc

	eh       *common.ExitHelper
	scanning *abool.AtomicBool

	pingHost func(host string) bool
	discover func() string

	mu        sync.Mutex
	client    *llrp.Client
	host      string
	connected bool
	lost      *abool.AtomicBool // set by the client's disconnect callback

	states chan bool
	events chan TagEvent

	evMu      sync.Mutex
	lastEvent *TagEvent
	dropped   uint64
}

func NewReader(cfgStore *common.ConfigStore, position PositionFunc) *Reader {
	cfg := cfgStore.Snapshot().RFID
	return &Reader{
		cfgStore: cfgStore,
		position: position,
		eh:       common.NewExitHelper(),
		scanning: abool.New(),
		lost:     abool.New(),
		pingHost: pingOnce,
		discover: func() string { return DiscoverReader(discoveryIface, discoverySubnet) },
		host:     cfg.Host,
		states:   make(chan bool, 8),
		events:   make(chan TagEvent, 1),
	}
}

func (r *Reader) Run() {
	go r.loop()
}

func (r *Reader) Stop() {
	r.eh.Exit()
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (r *Reader) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// IsScanning reports whether an ARP scan is in flight, for status display.
func (r *Reader) IsScanning() bool {
	return r.scanning.IsSet()
}

// States yields one value per connectivity transition.
func (r *Reader) States() <-chan bool {
	return r.states
}

// Events yields tag observations. The channel holds the single newest event;
// a slow consumer loses older observations, never the newest.
func (r *Reader) Events() <-chan TagEvent {
	return r.events
}

// LastEvent returns the most recent observation and the number of
// observations overwritten before anyone read them.
func (r *Reader) LastEvent() (*TagEvent, uint64) {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	return r.lastEvent, r.dropped
}

func pingOnce(host string) bool {
	p, err := ping.NewPinger(host)
	if err != nil {
		return false
	}
	p.Count = 1
	p.Timeout = 3 * time.Second
	p.SetPrivileged(true)
	if err := p.Run(); err != nil {
		return false
	}
	return p.Statistics().PacketsRecv > 0
}

func (r *Reader) setConnected(up bool) {
	r.mu.Lock()
	changed := r.connected != up
	r.connected = up
	r.mu.Unlock()
	if !changed {
		return
	}
	select {
	case r.states <- up:
	default:
	}
}

func (r *Reader) currentHost() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// parseAntennas turns the config's "1,2" string into antenna ids; malformed
// entries are skipped.
func parseAntennas(s string) []uint16 {
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			continue
		}
		out = append(out, uint16(n))
	}
	return out
}

func (r *Reader) llrpConfig() llrp.Config {
	cfg := r.cfgStore.Snapshot().RFID
	return llrp.Config{
		Antennas:         parseAntennas(cfg.Antennas),
		ReportEveryNTags: uint16(cfg.ReportEveryNTags),
		Session:          uint8(cfg.Session),
		TagPopulation:    uint16(cfg.TagPopulation),
		TxPower:          uint16(cfg.TxPower),
		Tari:             uint16(cfg.Tari),
		StartInventory:   true,
	}
}

// buildClient tears down any existing client and dials a fresh one against
// host. Returns nil on connect failure.
func (r *Reader) buildClient(host string) bool {
	r.mu.Lock()
	old := r.client
	r.client = nil
	r.host = host
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	port := r.cfgStore.Snapshot().RFID.Port
	client := llrp.NewClient(host, port, r.llrpConfig())
	client.OnReports(r.onReports)
	client.OnDisconnect(func(err error) {
		common.Log().Warnw("rfid reader connection lost", "host", host, "error", err)
		r.lost.Set()
	})

	if err := client.Connect(); err != nil {
		common.Log().Debugw("rfid connect failed", "host", host, "error", err)
		client.Close()
		return false
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
	r.lost.UnSet()
	common.Log().Infow("rfid reader connected", "host", host)
	return true
}

// onReports runs on the LLRP read loop. Only the first report of a batch is
// kept, stamped with the position read at this instant.
func (r *Reader) onReports(reports []llrp.TagReport) {
	if len(reports) == 0 {
		return
	}
	var lat, lon, speed, heading float64
	if r.position != nil {
		lat, lon, speed, heading = r.position()
	}

	ev := TagEvent{
		Report:     reports[0],
		Latitude:   round7(lat),
		Longitude:  round7(lon),
		SpeedMph:   speed,
		HeadingDeg: heading,
	}

	r.evMu.Lock()
	r.lastEvent = &ev
	r.evMu.Unlock()

	for {
		select {
		case r.events <- ev:
			return
		default:
		}
		// Slot full: discard the stale event and retry.
		select {
		case <-r.events:
			r.evMu.Lock()
			r.dropped++
			r.evMu.Unlock()
		default:
		}
	}
}

func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}

func (r *Reader) loop() {
	r.eh.Add()
	defer r.eh.Done()

	r.setConnected(false)

	// Initial connection attempts against the configured host before
	// considering discovery at all.
	for attempt := 0; attempt < maxInitialAttempts && !r.eh.IsExit(); attempt++ {
		if r.buildClient(r.currentHost()) {
			r.setConnected(true)
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if !r.IsConnected() && !r.eh.IsExit() {
		common.Log().Infow("initial rfid connection attempts failed", "host", r.currentHost())
		if !r.pingHost(r.currentHost()) {
			r.runDiscovery()
		}
	}

	ticker := time.NewTicker(steadyPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.eh.C:
			return
		case <-ticker.C:
		}

		if r.lost.IsSet() {
			r.setConnected(false)
		}

		host := r.currentHost()
		if r.pingHost(host) {
			if !r.IsConnected() {
				if r.buildClient(host) {
					r.setConnected(true)
				}
			}
		} else {
			if r.IsConnected() {
				r.setConnected(false)
			} else {
				r.runDiscovery()
			}
		}
	}
}

// runDiscovery loops until a reader is connected or shutdown: default hosts
// first (a real LLRP test connect, no inventory), then an ARP scan. A found
// host is persisted to the config before reconnecting.
func (r *Reader) runDiscovery() {
	common.Log().Infow("rfid discovery started")
	port := r.cfgStore.Snapshot().RFID.Port

	for !r.eh.IsExit() && !r.IsConnected() {
		newHost := ""

		for _, h := range common.DefaultRFIDHosts {
			if r.eh.IsExit() {
				return
			}
			probe := llrp.NewClient(h, port, llrp.Config{StartInventory: false})
			if err := probe.Connect(); err == nil {
				probe.Close()
				common.Log().Infow("default rfid host answered", "host", h)
				newHost = h
				break
			}
			probe.Close()
		}

		if newHost == "" {
			r.scanning.Set()
			newHost = r.discover()
			r.scanning.UnSet()
		}

		if newHost == "" {
			time.Sleep(time.Second)
			continue
		}

		if newHost != r.currentHost() {
			if err := r.cfgStore.SetRFIDHost(newHost); err != nil {
				common.Log().Errorw("failed to persist rfid host", "host", newHost, "error", err)
				continue
			}
		}

		if r.buildClient(newHost) {
			r.setConnected(true)
			common.Log().Infow("rfid discovery finished, reader connected", "host", newHost)
			return
		}
		r.setConnected(false)
	}
}
