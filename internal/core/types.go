// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
)

// MAC is a 48-bit Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is the all-ones Ethernet destination.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses a colon or dash separated 48-bit MAC address.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("not an EUI-48 address: %s", s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// HardwareAddr returns the address as a net.HardwareAddr backed by a fresh slice.
func (m MAC) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, m[:])
	return hw
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// Interface is one router port: its name and the addresses assigned to it.
type Interface struct {
	Name string
	MAC  MAC
	IP   netip.Addr
}

// Route is a static routing table entry.
// A zero or unspecified Gateway means the network is directly connected.
type Route struct {
	Network   netip.Addr
	Mask      netip.Addr
	Gateway   netip.Addr
	Interface string
}

// NextHop returns the address that must be resolved to forward a packet for dst.
func (r Route) NextHop(dst netip.Addr) netip.Addr {
	if !r.Gateway.IsValid() || r.Gateway.IsUnspecified() {
		return dst
	}
	return r.Gateway
}

// PrefixLen returns the number of leading one bits in the mask.
func (r Route) PrefixLen() int {
	if !r.Mask.Is4() {
		return 0
	}
	b := r.Mask.As4()
	n := 0
	for _, octet := range b {
		for bit := 7; bit >= 0; bit-- {
			if octet&(1<<bit) == 0 {
				return n
			}
			n++
		}
	}
	return n
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%d via %s dev %s", r.Network, r.PrefixLen(), r.Gateway, r.Interface)
}
