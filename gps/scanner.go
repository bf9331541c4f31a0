/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	scanner.go: Serial port probing for a GPS receiver
*/
package gps

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"github.com/tagspot/tagspot/common"
)

// modemControlPort is where the cellular modem exposes its AT interface on
// the kiosk hardware.
const modemControlPort = "/dev/ttyUSB2"

const enableGPSCommand = "AT+QGPS=1\r"

var serialPortGlobs = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyAMA*",
	"/dev/ttyS*",
}

// Scanner probes serial ports for a talking GPS receiver. The modem's GNSS
// engine has to be switched on with an AT command before it emits NMEA, so
// probing happens in two phases: PreConfigure, then Find.
type Scanner struct {
	open portOpener
	// listPorts is swappable for tests
	listPorts func() []string
}

func NewScanner() *Scanner {
	return &Scanner{
		open:      openSerialPort,
		listPorts: listSerialPorts,
	}
}

func listSerialPorts() []string {
	var ports []string
	for _, pattern := range serialPortGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if _, err := os.Stat(m); err == nil {
				ports = append(ports, m)
			}
		}
	}
	return ports
}

// EnableGPS sends AT+QGPS=1 to the modem control port to switch the GNSS
// engine on. Failure is normal on hardware without a cellular modem.
func (s *Scanner) EnableGPS() bool {
	port, err := s.open(modemControlPort, 115200)
	if err != nil {
		common.Log().Warnw("failed to open modem control port", "port", modemControlPort, "error", err)
		return false
	}
	defer port.Close()

	if _, err := port.Write([]byte(enableGPSCommand)); err != nil {
		common.Log().Warnw("failed to send gps enable command", "port", modemControlPort, "error", err)
		return false
	}
	// Give the GNSS engine time to start before draining the response.
	time.Sleep(2 * time.Second)
	drainResponses(port, 2*time.Second)
	common.Log().Infow("gps enable command sent", "port", modemControlPort)
	return true
}

// PreConfigure sends the GNSS enable command to every serial port and
// returns the baud rate to scan with: the probe rate when any port accepted
// the command, otherwise the configured fallback.
func (s *Scanner) PreConfigure(cfg common.GPSConfig, fallbackBaud int) int {
	if runtime.GOOS == "windows" {
		if cfg.BaudRate != 0 {
			return cfg.BaudRate
		}
		return fallbackBaud
	}

	tryRate := cfg.ProbeBaudRate
	if tryRate == 0 {
		tryRate = cfg.BaudRate
	}
	if tryRate == 0 {
		tryRate = fallbackBaud
	}

	for _, name := range s.listPorts() {
		port, err := s.open(name, tryRate)
		if err != nil {
			continue
		}
		if _, err := port.Write([]byte(enableGPSCommand)); err != nil {
			port.Close()
			continue
		}
		time.Sleep(2 * time.Second)
		drainResponses(port, time.Second)
		port.Close()
		common.Log().Infow("gps enable command accepted", "port", name, "baud", tryRate)
		return tryRate
	}

	common.Log().Debugw("no port responded to gps enable command, using fallback baud")
	if cfg.BaudRate != 0 {
		return cfg.BaudRate
	}
	return fallbackBaud
}

// Find probes each serial port for NMEA output and returns the first port
// that emits a "$G" sentence, or "" when none does.
func (s *Scanner) Find(baud int) string {
	rl := ratelimit.New(1, ratelimit.Per(time.Second))
	for _, name := range s.listPorts() {
		rl.Take()

		port, err := s.open(name, baud)
		if err != nil {
			continue
		}
		found := probeForNMEA(port)
		port.Close()
		if found {
			common.Log().Infow("gps receiver found", "port", name, "baud", baud)
			return name
		}
	}
	common.Log().Infow("no gps port found")
	return ""
}

func probeForNMEA(port io.ReadWriteCloser) bool {
	reader := bufio.NewReader(port)
	for attempt := 0; attempt < 5; attempt++ {
		if reader.Buffered() < bufferedLowWater {
			time.Sleep(200 * time.Millisecond)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "$G") {
			return true
		}
	}
	return false
}

func drainResponses(port io.ReadWriteCloser, window time.Duration) {
	reader := bufio.NewReader(port)
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if reader.Buffered() == 0 {
			time.Sleep(100 * time.Millisecond)
		}
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
	}
}
