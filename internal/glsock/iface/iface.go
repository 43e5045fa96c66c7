// Package iface enumerates network interfaces and their IPv4 broadcast
// addresses (spec.md 4.1 "interface enumeration"), used by discovery's
// multi-interface mode (spec.md 4.3).
package iface

import (
	"net"

	"github.com/groundlift/groundlift/internal/glerr"
)

// Interface describes one usable IPv4 interface.
type Interface struct {
	Name      string
	Address   net.IP
	Broadcast net.IP
}

// Enumerator abstracts interface discovery so it can be replaced on
// platforms without getifaddrs-style enumeration (spec.md 9 "platform
// differences" design note: one implementation per target OS behind a
// single interface).
type Enumerator interface {
	Enumerate() ([]Interface, error)
}

// netEnumerator is the standard-library-backed Enumerator used on every
// platform Go's net package supports interface listing on.
type netEnumerator struct{}

// Default is the Enumerator used when the caller doesn't supply one.
var Default Enumerator = netEnumerator{}

func (netEnumerator) Enumerate() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, glerr.Wrap(err, glerr.LayerSock, glerr.EIFACEGETIFADDR, "iface: getifaddrs")
	}

	var out []Interface
	for _, netIf := range ifs {
		if netIf.Flags&net.FlagUp == 0 || netIf.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := netIf.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := broadcastOf(ip4, ipNet.Mask)
			out = append(out, Interface{Name: netIf.Name, Address: ip4, Broadcast: bcast})
		}
	}
	return out, nil
}

func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// SingleInterfaceFallback is used when enumeration is unavailable: a single
// round addressed to INADDR_BROADCAST, per spec.md 4.1's "single-interface
// compilation mode" note.
func SingleInterfaceFallback() []Interface {
	return []Interface{{
		Name:      "any",
		Address:   net.IPv4zero,
		Broadcast: net.IPv4bcast,
	}}
}
