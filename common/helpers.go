/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	helpers.go: Shared coordinate, identity and misc helpers
*/
package common

import (
	"net"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"time"
)

func StringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

func IsRunningAsRoot() bool {
	usr, err := user.Current()
	if err != nil {
		return false
	}
	return usr.Username == "root"
}

// ConvertToDecimal converts an NMEA ddmm.mmmm / dddmm.mmmm coordinate with
// its hemisphere indicator to signed decimal degrees. Latitudes (N/S) carry
// two degree digits, longitudes (E/W) three. Malformed input yields 0.
func ConvertToDecimal(coord string, hemisphere string) float64 {
	var degDigits, minLen int
	switch hemisphere {
	case "N", "S":
		degDigits, minLen = 2, 4
	case "E", "W":
		degDigits, minLen = 3, 5
	default:
		return 0
	}
	if len(coord) < minLen {
		return 0
	}

	deg, err := strconv.Atoi(coord[:degDigits])
	if err != nil {
		return 0
	}
	min, err := strconv.ParseFloat(coord[degDigits:], 64)
	if err != nil {
		return 0
	}

	val := float64(deg) + min/60.0
	if hemisphere == "S" || hemisphere == "W" {
		val = -val
	}
	return val
}

// FormatLocalTime renders t in the wire format the upload endpoints expect.
func FormatLocalTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

func IsIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// MACAddress returns the hardware address of the first non-loopback
// interface that has one, colon-separated lowercase.
func MACAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// MACAddressDashed is MACAddress reformatted as AA-BB-CC-DD-EE-FF.
func MACAddressDashed() string {
	return strings.ToUpper(strings.ReplaceAll(MACAddress(), ":", "-"))
}

// DeviceID returns a stable hardware identifier: the SoC serial from
// /proc/cpuinfo where available, the board UUID on Windows, otherwise the
// primary MAC address.
func DeviceID() string {
	if id := cpuSerial(); id != "" {
		return id
	}
	if runtime.GOOS == "windows" {
		out, err := exec.Command("wmic", "csproduct", "get", "uuid").Output()
		if err == nil {
			for _, line := range strings.Split(string(out), "\n") {
				line = strings.TrimSpace(line)
				if line == "" || strings.EqualFold(line, "UUID") {
					continue
				}
				return line
			}
		}
	}
	return MACAddress()
}

func cpuSerial() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Serial") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		serial := strings.TrimSpace(parts[1])
		if serial != "" && strings.Trim(serial, "0") != "" {
			return serial
		}
	}
	return ""
}
