package header

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/srouter/internal/core"
)

const (
	// ARPLen is the size of an Ethernet/IPv4 ARP packet.
	ARPLen = 28

	ARPHardwareEthernet = 1
	ARPOpRequest        = 1
	ARPOpReply          = 2
)

// ARP is an Ethernet/IPv4 ARP packet.
type ARP struct {
	HardwareType uint16
	ProtocolType uint16
	HardwareLen  uint8
	ProtocolLen  uint8
	Op           uint16
	SenderMAC    core.MAC
	SenderIP     netip.Addr
	TargetMAC    core.MAC
	TargetIP     netip.Addr
}

// ParseARP decodes an ARP packet. Only hrd=1, pro=0x0800, hln=6, pln=4 is
// accepted; any other combination returns core.ErrUnsupportedProto.
func ParseARP(data []byte) (ARP, error) {
	if len(data) < ARPLen {
		return ARP{}, core.ErrPacketTooShort
	}

	a := ARP{
		HardwareType: binary.BigEndian.Uint16(data[0:2]),
		ProtocolType: binary.BigEndian.Uint16(data[2:4]),
		HardwareLen:  data[4],
		ProtocolLen:  data[5],
		Op:           binary.BigEndian.Uint16(data[6:8]),
	}

	if a.HardwareType != ARPHardwareEthernet || a.ProtocolType != EtherTypeIPv4 ||
		a.HardwareLen != 6 || a.ProtocolLen != 4 {
		return a, core.ErrUnsupportedProto
	}

	copy(a.SenderMAC[:], data[8:14])
	a.SenderIP = netip.AddrFrom4([4]byte(data[14:18]))
	copy(a.TargetMAC[:], data[18:24])
	a.TargetIP = netip.AddrFrom4([4]byte(data[24:28]))

	return a, nil
}
