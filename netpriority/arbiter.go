/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	arbiter.go: Default-route metric management across uplinks
*/
package netpriority

import (
	"net"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/go-ping/ping"
	"github.com/vishvananda/netlink"

	"github.com/tagspot/tagspot/common"
)

const (
	pingTarget      = "8.8.8.8"
	egressPingCount = 2
	egressTimeout   = 3 * time.Second
	cleanupPasses   = 3
)

// Class buckets interfaces by uplink kind for priority ordering.
type Class int

const (
	ClassEthernet Class = iota
	ClassWiFi
	ClassCellular
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassEthernet:
		return "ethernet"
	case ClassWiFi:
		return "wifi"
	case ClassCellular:
		return "cellular"
	default:
		return "unknown"
	}
}

// baseMetric is the default-route metric per class; lower metric wins.
func (c Class) baseMetric() int {
	switch c {
	case ClassEthernet:
		return 100
	case ClassWiFi:
		return 300
	case ClassCellular:
		return 500
	default:
		return 1000
	}
}

// Classify maps an interface name to its uplink class.
func Classify(name string) Class {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "eth") || strings.HasPrefix(n, "en"):
		return ClassEthernet
	case strings.HasPrefix(n, "wlan") || strings.HasPrefix(n, "wl"):
		return ClassWiFi
	case strings.HasPrefix(n, "usb") || strings.HasPrefix(n, "wwan") || strings.HasPrefix(n, "cdc"):
		return ClassCellular
	default:
		return ClassUnknown
	}
}

// Iface is one active interface considered for a default route.
type Iface struct {
	Name      string
	IP        net.IP
	Class     Class
	LinkIndex int
	Gateway   net.IP
}

// Assignment is one planned default route.
type Assignment struct {
	Iface  Iface
	Metric int
}

// PlanMetrics orders working interfaces ethernet > wifi > cellular > unknown
// and assigns each a metric: the class base plus 10 for every earlier
// interface of the same class.
func PlanMetrics(working []Iface) []Assignment {
	sorted := append([]Iface(nil), working...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Class.baseMetric() < sorted[j].Class.baseMetric()
	})

	counts := make(map[Class]int)
	out := make([]Assignment, 0, len(sorted))
	for _, ifc := range sorted {
		metric := ifc.Class.baseMetric() + counts[ifc.Class]*10
		counts[ifc.Class]++
		out = append(out, Assignment{Iface: ifc, Metric: metric})
	}
	return out
}

// Arbiter rewrites the kernel's default-route metrics so the preferred
// uplink carries traffic. Requires Linux and root; elsewhere Configure is a
// logged no-op.
type Arbiter struct {
	// testEgress is swappable for tests
	testEgress func(ifc Iface) bool
}

func NewArbiter() *Arbiter {
	return &Arbiter{testEgress: pingThrough}
}

// pingThrough tests egress over one specific interface by pinging the probe
// target with the interface's address as source.
func pingThrough(ifc Iface) bool {
	p, err := ping.NewPinger(pingTarget)
	if err != nil {
		return false
	}
	p.Count = egressPingCount
	p.Timeout = egressTimeout
	p.Source = ifc.IP.String()
	p.SetPrivileged(true)
	if err := p.Run(); err != nil {
		return false
	}
	return p.Statistics().PacketsRecv > 0
}

// activeInterfaces lists up, non-loopback interfaces holding an IPv4
// address, with the gateway of any existing default route they carry.
func activeInterfaces() ([]Iface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}
	gateways := defaultGateways()

	var out []Iface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Name == "lo" || attrs.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil || len(addrs) == 0 {
			continue
		}
		out = append(out, Iface{
			Name:      attrs.Name,
			IP:        addrs[0].IP,
			Class:     Classify(attrs.Name),
			LinkIndex: attrs.Index,
			Gateway:   gateways[attrs.Index],
		})
	}
	return out, nil
}

// defaultGateways maps link index to the gateway of its current default
// route, keeping the first occurrence per link.
func defaultGateways() map[int]net.IP {
	out := make(map[int]net.IP)
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return out
	}
	for _, r := range routes {
		if r.Dst != nil || r.Gw == nil {
			continue
		}
		if _, seen := out[r.LinkIndex]; !seen {
			out[r.LinkIndex] = r.Gw
		}
	}
	return out
}

// deleteDefaultRoutes removes every IPv4 default route. DHCP clients race to
// recreate them, so several passes are made.
func deleteDefaultRoutes() {
	for pass := 0; pass < cleanupPasses; pass++ {
		routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
		if err != nil {
			return
		}
		remaining := 0
		for _, r := range routes {
			if r.Dst != nil {
				continue
			}
			remaining++
			if err := netlink.RouteDel(&r); err != nil {
				common.Log().Debugw("default route delete failed", "link", r.LinkIndex, "error", err)
			}
		}
		if remaining == 0 {
			return
		}
		if pass < cleanupPasses-1 {
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// Configure tests every active interface for egress, wipes the default
// routes and re-adds one per working interface with class-based metrics,
// then verifies the result. Returns the names of configured interfaces.
func (a *Arbiter) Configure() []string {
	if runtime.GOOS != "linux" {
		common.Log().Infow("network priority management only supported on linux")
		return nil
	}
	if !common.IsRunningAsRoot() {
		common.Log().Warnw("network priority management requires root, skipping")
		return nil
	}

	ifaces, err := activeInterfaces()
	if err != nil {
		common.Log().Errorw("failed to enumerate interfaces", "error", err)
		return nil
	}
	if len(ifaces) == 0 {
		common.Log().Warnw("no active network interfaces found")
		return nil
	}

	var working []Iface
	for _, ifc := range ifaces {
		if ifc.Gateway == nil {
			common.Log().Debugw("no gateway known for interface, skipping", "interface", ifc.Name)
			continue
		}
		if a.testEgress(ifc) {
			common.Log().Infow("interface has egress", "interface", ifc.Name, "class", ifc.Class.String())
			working = append(working, ifc)
		} else {
			common.Log().Infow("interface has no egress", "interface", ifc.Name, "class", ifc.Class.String())
		}
	}
	if len(working) == 0 {
		common.Log().Warnw("no interfaces with egress, leaving routes untouched")
		return nil
	}

	plan := PlanMetrics(working)
	deleteDefaultRoutes()

	var configured []string
	for _, as := range plan {
		route := &netlink.Route{
			LinkIndex: as.Iface.LinkIndex,
			Gw:        as.Iface.Gateway,
			Priority:  as.Metric,
		}
		if err := netlink.RouteReplace(route); err != nil {
			common.Log().Warnw("failed to install default route", "interface", as.Iface.Name, "metric", as.Metric, "error", err)
			continue
		}
		common.Log().Infow("default route installed", "interface", as.Iface.Name, "metric", as.Metric)
		configured = append(configured, as.Iface.Name)
	}

	// Routes settle, then correct anything DHCP re-wrote underneath us.
	time.Sleep(time.Second)
	a.verify(plan)
	return configured
}

// verify re-reads the default routes and rewrites any whose metric no longer
// matches the plan.
func (a *Arbiter) verify(plan []Assignment) {
	want := make(map[int]Assignment, len(plan))
	for _, as := range plan {
		want[as.Iface.LinkIndex] = as
	}

	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return
	}
	for _, r := range routes {
		if r.Dst != nil {
			continue
		}
		as, ok := want[r.LinkIndex]
		if !ok || r.Priority == as.Metric {
			continue
		}
		common.Log().Warnw("default route metric drifted, correcting",
			"interface", as.Iface.Name, "have", r.Priority, "want", as.Metric)
		netlink.RouteDel(&r)
		netlink.RouteReplace(&netlink.Route{
			LinkIndex: as.Iface.LinkIndex,
			Gw:        as.Iface.Gateway,
			Priority:  as.Metric,
		})
	}
}
