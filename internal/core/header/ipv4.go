package header

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/srouter/internal/core"
)

const (
	IPv4MinHeaderLen = 20
	ipv4MaxHeaderLen = 60

	// IP protocol numbers
	IPProtocolICMP = 1
	IPProtocolTCP  = 6
	IPProtocolUDP  = 17
)

// IPv4 is a decoded IPv4 header.
type IPv4 struct {
	HeaderLen int // 4 × IHL, in bytes
	TotalLen  uint16
	ID        uint16
	TTL       uint8
	Protocol  uint8
	Checksum  uint16
	Src       netip.Addr
	Dst       netip.Addr
}

// ParseIPv4 decodes the IPv4 header at the start of data.
//
// The declared header length bounds the header; the declared total length
// must fit in data (trailing link-layer padding is allowed).
func ParseIPv4(data []byte) (IPv4, error) {
	if len(data) < IPv4MinHeaderLen {
		return IPv4{}, core.ErrPacketTooShort
	}
	if data[0]>>4 != 4 {
		return IPv4{}, core.ErrUnsupportedProto
	}

	ihl := int(data[0]&0x0F) * 4
	if ihl < IPv4MinHeaderLen || len(data) < ihl {
		return IPv4{}, core.ErrPacketTooShort
	}

	ip := IPv4{
		HeaderLen: ihl,
		TotalLen:  binary.BigEndian.Uint16(data[2:4]),
		ID:        binary.BigEndian.Uint16(data[4:6]),
		TTL:       data[8],
		Protocol:  data[9],
		Checksum:  binary.BigEndian.Uint16(data[10:12]),
		Src:       netip.AddrFrom4([4]byte(data[12:16])),
		Dst:       netip.AddrFrom4([4]byte(data[16:20])),
	}

	if int(ip.TotalLen) < ihl || int(ip.TotalLen) > len(data) {
		return ip, core.ErrPacketTooShort
	}

	return ip, nil
}

// Payload returns the bytes after the header, up to the declared total length.
func (h IPv4) Payload(data []byte) []byte {
	return data[h.HeaderLen:h.TotalLen]
}

// IPv4Checksum computes the header checksum of hdr as if its checksum field
// were zero. hdr must be exactly the header (4 × IHL bytes). hdr is not modified.
func IPv4Checksum(hdr []byte) uint16 {
	var buf [ipv4MaxHeaderLen]byte
	n := copy(buf[:], hdr)
	buf[10], buf[11] = 0, 0
	return Checksum(buf[:n])
}

// VerifyIPv4Checksum checks the header checksum of the packet in data over
// the declared header length.
func VerifyIPv4Checksum(data []byte) error {
	if len(data) < IPv4MinHeaderLen {
		return core.ErrPacketTooShort
	}
	ihl := int(data[0]&0x0F) * 4
	if ihl < IPv4MinHeaderLen || len(data) < ihl {
		return core.ErrPacketTooShort
	}
	if IPv4Checksum(data[:ihl]) != binary.BigEndian.Uint16(data[10:12]) {
		return core.ErrBadChecksum
	}
	return nil
}

// SetIPv4Checksum recomputes and stores the header checksum of data in place.
func SetIPv4Checksum(data []byte) error {
	if len(data) < IPv4MinHeaderLen {
		return core.ErrPacketTooShort
	}
	ihl := int(data[0]&0x0F) * 4
	if ihl < IPv4MinHeaderLen || len(data) < ihl {
		return core.ErrPacketTooShort
	}
	binary.BigEndian.PutUint16(data[10:12], IPv4Checksum(data[:ihl]))
	return nil
}

// DecrementTTL decrements the TTL of the packet in data and rewrites the
// header checksum. Returns the new TTL. A TTL of zero is left untouched.
func DecrementTTL(data []byte) (uint8, error) {
	if len(data) < IPv4MinHeaderLen {
		return 0, core.ErrPacketTooShort
	}
	if data[8] == 0 {
		return 0, nil
	}
	data[8]--
	if err := SetIPv4Checksum(data); err != nil {
		return 0, err
	}
	return data[8], nil
}
