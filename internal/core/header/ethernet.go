package header

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/srouter/internal/core"
)

const (
	// EthernetHeaderLen is the size of an untagged Ethernet II header.
	EthernetHeaderLen = 14

	// EtherType values
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
)

// Ethernet is an Ethernet II header.
type Ethernet struct {
	Dst       core.MAC
	Src       core.MAC
	EtherType uint16
}

// ParseEthernet decodes the Ethernet header at the start of frame.
// Returns the header and the remaining payload.
func ParseEthernet(frame []byte) (Ethernet, []byte, error) {
	if len(frame) < EthernetHeaderLen {
		return Ethernet{}, nil, core.ErrPacketTooShort
	}

	var eth Ethernet
	copy(eth.Dst[:], frame[0:6])
	copy(eth.Src[:], frame[6:12])
	eth.EtherType = binary.BigEndian.Uint16(frame[12:14])

	return eth, frame[EthernetHeaderLen:], nil
}

// SetEthernetAddrs overwrites the destination and source MAC of frame in place.
func SetEthernetAddrs(frame []byte, dst, src core.MAC) error {
	if len(frame) < EthernetHeaderLen {
		return core.ErrPacketTooShort
	}
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	return nil
}

// EtherTypeName returns a short label for logs and metrics.
func EtherTypeName(t uint16) string {
	switch t {
	case EtherTypeIPv4:
		return "ipv4"
	case EtherTypeARP:
		return "arp"
	default:
		return fmt.Sprintf("0x%04x", t)
	}
}
