// Package header implements length-checked parsing and in-place mutation of
// Ethernet, ARP, IPv4 and ICMP headers.
package header

// Checksum returns the Internet checksum (RFC 1071) of b: the one's complement
// of the one's complement sum of its 16-bit big-endian words. An odd trailing
// byte is padded with zero.
//
// Running Checksum over a header whose checksum field already holds a correct
// value yields zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
