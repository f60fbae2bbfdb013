// Package sysinfo resolves host facts the agent advertises: the address of
// the agent interface and the platform description logged at startup.
package sysinfo

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoAddress means the interface has no usable address.
var ErrNoAddress = errors.New("no usable address")

// HostInfo describes the platform the agent runs on.
type HostInfo struct {
	Hostname string
	OS       string
	Kernel   string
	Arch     string
}

// Host collects the platform description. Fields that cannot be read are
// left empty.
func Host() HostInfo {
	hostname, _ := os.Hostname()
	info := HostInfo{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
	}

	if hi, err := host.Info(); err == nil {
		info.OS = hi.Platform
		if hi.PlatformVersion != "" {
			info.OS += " " + hi.PlatformVersion
		}
		info.Kernel = hi.KernelVersion
	}
	if runtime.GOOS == "linux" {
		if prettyName := readOSReleasePrettyName(); prettyName != "" {
			info.OS = prettyName
		}
	}
	return info
}

// InterfaceAddress returns the address the agent should advertise for the
// named interface: its first IPv4 address, else its first global IPv6
// address.
func InterfaceAddress(name string) (netip.Addr, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("enumerating interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
		if addr, ok := pickAddress(addrs); ok {
			return addr, nil
		}
		return netip.Addr{}, fmt.Errorf("interface %s: %w", name, ErrNoAddress)
	}
	return netip.Addr{}, fmt.Errorf("interface %s not found", name)
}

// pickAddress selects from CIDR or bare address strings.
func pickAddress(addrs []string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			p, perr := netip.ParsePrefix(s)
			if perr != nil {
				continue
			}
			addr = p.Addr()
		}
		addr = addr.Unmap()
		switch {
		case addr.Is4() && !addr.IsLoopback():
			return addr, true
		case addr.Is6() && !v6.IsValid() && addr.IsGlobalUnicast():
			v6 = addr.WithZone("")
		}
	}
	return v6, v6.IsValid()
}

// readOSReleasePrettyName parses /etc/os-release for the PRETTY_NAME field.
func readOSReleasePrettyName() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			val := strings.TrimPrefix(line, "PRETTY_NAME=")
			val = strings.Trim(val, "\"")
			return val
		}
	}
	return ""
}
