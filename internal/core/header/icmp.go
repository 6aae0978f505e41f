package header

import (
	"encoding/binary"

	"firestige.xyz/srouter/internal/core"
)

// ICMPHeaderLen covers type, code, checksum and the 4 type-specific bytes.
const ICMPHeaderLen = 8

// ICMP types and codes used by the router.
const (
	ICMPTypeEchoReply        = 0
	ICMPTypeDestUnreachable  = 3
	ICMPTypeSourceQuench     = 4
	ICMPTypeRedirect         = 5
	ICMPTypeEchoRequest      = 8
	ICMPTypeTimeExceeded     = 11
	ICMPTypeParameterProblem = 12

	ICMPCodeNetUnreachable  = 0
	ICMPCodeHostUnreachable = 1
	ICMPCodePortUnreachable = 3
	ICMPCodeTTLExceeded     = 0
)

// icmpQuoteLen is how much of the offending datagram's payload an ICMP error carries.
const icmpQuoteLen = 8

// ICMP is a decoded ICMPv4 header. ID and Seq are only meaningful for echo messages.
type ICMP struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
}

// ParseICMP decodes the ICMP header at the start of msg.
func ParseICMP(msg []byte) (ICMP, error) {
	if len(msg) < ICMPHeaderLen {
		return ICMP{}, core.ErrPacketTooShort
	}
	return ICMP{
		Type:     msg[0],
		Code:     msg[1],
		Checksum: binary.BigEndian.Uint16(msg[2:4]),
		ID:       binary.BigEndian.Uint16(msg[4:6]),
		Seq:      binary.BigEndian.Uint16(msg[6:8]),
	}, nil
}

// VerifyICMPChecksum checks the checksum of a complete ICMP message.
func VerifyICMPChecksum(msg []byte) error {
	if len(msg) < ICMPHeaderLen {
		return core.ErrPacketTooShort
	}
	if Checksum(msg) != 0 {
		return core.ErrBadChecksum
	}
	return nil
}

// IsICMPError reports whether t is an ICMP error message type.
func IsICMPError(t uint8) bool {
	switch t {
	case ICMPTypeDestUnreachable, ICMPTypeSourceQuench, ICMPTypeRedirect,
		ICMPTypeTimeExceeded, ICMPTypeParameterProblem:
		return true
	}
	return false
}

// Quote returns the part of an IPv4 datagram an ICMP error encloses: the full
// header plus the first 8 bytes of its payload (or less, if shorter).
func Quote(packet []byte, ip IPv4) []byte {
	end := ip.HeaderLen + icmpQuoteLen
	if end > int(ip.TotalLen) {
		end = int(ip.TotalLen)
	}
	if end > len(packet) {
		end = len(packet)
	}
	return packet[:end]
}
