package sysinfo

import (
	"net/netip"
	"testing"
)

func TestPickAddress(t *testing.T) {
	tests := []struct {
		name  string
		addrs []string
		want  string
	}{
		{"ipv4 first", []string{"fe80::1/64", "2001:db8::5/64", "10.1.2.3/24"}, "10.1.2.3"},
		{"global ipv6", []string{"fe80::1/64", "2001:db8::5/64"}, "2001:db8::5"},
		{"bare address", []string{"192.0.2.7"}, "192.0.2.7"},
		{"loopback skipped", []string{"127.0.0.1/8", "192.0.2.8/24"}, "192.0.2.8"},
		{"none", []string{"fe80::1/64", "bogus"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickAddress(tt.addrs)
			if tt.want == "" {
				if ok {
					t.Errorf("got %v, want no address", got)
				}
				return
			}
			if !ok || got != netip.MustParseAddr(tt.want) {
				t.Errorf("got %v, want %s", got, tt.want)
			}
		})
	}
}

func TestInterfaceAddress_Unknown(t *testing.T) {
	if _, err := InterfaceAddress("sflowd-no-such-if0"); err == nil {
		t.Error("expected error for unknown interface")
	}
}

func TestHost(t *testing.T) {
	info := Host()
	// Hostname should always be available
	if info.Hostname == "" {
		t.Error("Hostname is empty")
	}
	if info.Arch == "" {
		t.Error("Arch is empty")
	}
	t.Logf("Host: %+v", info)
}
