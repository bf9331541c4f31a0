/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	discovery.go: ARP-scan fallback for locating a reader on the link
*/
package rfid

import (
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/tagspot/tagspot/common"
)

var arpLineRE = regexp.MustCompile(`^\s*((?:\d{1,3}\.){3}\d{1,3})\s+((?:[0-9A-Fa-f]{2}[:\-]){5}[0-9A-Fa-f]{2})\s*(.*)$`)

// readerVendors are matched case-insensitively against the vendor column of
// the arp-scan output.
var readerVendors = []string{"impinj", "zebra"}

type arpEntry struct {
	IP     string
	MAC    string
	Vendor string
}

// parseARPScan extracts IP/MAC/vendor triples from arp-scan output,
// dropping repeated IPs.
func parseARPScan(output string) []arpEntry {
	var entries []arpEntry
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		m := arpLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		vendor := strings.TrimSpace(m[3])
		if vendor == "" {
			vendor = "Unknown"
		}
		entries = append(entries, arpEntry{IP: m[1], MAC: strings.ToLower(m[2]), Vendor: vendor})
	}
	return entries
}

// pickReader returns the first entry advertised by a known RFID vendor.
func pickReader(entries []arpEntry) string {
	for _, e := range entries {
		vendor := strings.ToLower(e.Vendor)
		for _, want := range readerVendors {
			if strings.Contains(vendor, want) {
				return e.IP
			}
		}
	}
	return ""
}

// DiscoverReader arp-scans the given interface and subnet for an RFID reader
// and returns its IP, or "" when none is found. The vendor database lives in
// the arp-scan tool itself, so this shells out rather than speaking ARP
// directly. Linux only.
func DiscoverReader(iface, subnet string) string {
	if runtime.GOOS != "linux" {
		common.Log().Debugw("reader discovery only supported on linux")
		return ""
	}
	if _, err := exec.LookPath("arp-scan"); err != nil {
		common.Log().Warnw("arp-scan not available, cannot discover readers")
		return ""
	}

	args := []string{"arp-scan", "--interface", iface, subnet}
	if !common.IsRunningAsRoot() {
		args = append([]string{"sudo"}, args...)
	}
	common.Log().Infow("scanning for rfid readers", "interface", iface, "subnet", subnet)

	out, err := exec.Command(args[0], args[1:]...).Output()
	if err != nil {
		common.Log().Warnw("arp-scan failed", "error", err)
		return ""
	}

	entries := parseARPScan(string(out))
	common.Log().Debugw("arp-scan finished", "devices", len(entries))

	if ip := pickReader(entries); ip != "" {
		common.Log().Infow("rfid reader discovered", "ip", ip)
		return ip
	}
	common.Log().Debugw("no rfid reader found in scan results")
	return ""
}
