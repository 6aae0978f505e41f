package header

import "testing"

// Header from the worked example on the IPv4 header checksum:
// 192.168.0.1 -> 192.168.0.199, UDP, checksum 0xb861.
var sampleIPv4Header = []byte{
	0x45, 0x00, 0x00, 0x73,
	0x00, 0x00, 0x40, 0x00,
	0x40, 0x11, 0xb8, 0x61,
	0xc0, 0xa8, 0x00, 0x01,
	0xc0, 0xa8, 0x00, 0xc7,
}

func TestChecksumKnownHeader(t *testing.T) {
	hdr := make([]byte, len(sampleIPv4Header))
	copy(hdr, sampleIPv4Header)
	hdr[10], hdr[11] = 0, 0

	if got := Checksum(hdr); got != 0xb861 {
		t.Errorf("Checksum = 0x%04x, expected 0xb861", got)
	}
}

func TestChecksumOfValidHeaderIsZero(t *testing.T) {
	if got := Checksum(sampleIPv4Header); got != 0 {
		t.Errorf("Checksum over a valid header = 0x%04x, expected 0", got)
	}
}

func TestChecksumOddLength(t *testing.T) {
	// 0x0102 + 0x0300 = 0x0402 -> ^0x0402 = 0xfbfd
	if got := Checksum([]byte{0x01, 0x02, 0x03}); got != 0xfbfd {
		t.Errorf("Checksum = 0x%04x, expected 0xfbfd", got)
	}
}

func TestChecksumCarryFold(t *testing.T) {
	// 0xffff + 0x0001 = 0x10000 -> folds to 0x0001 -> ^ = 0xfffe
	if got := Checksum([]byte{0xff, 0xff, 0x00, 0x01}); got != 0xfffe {
		t.Errorf("Checksum = 0x%04x, expected 0xfffe", got)
	}
}

func TestChecksumEmpty(t *testing.T) {
	if got := Checksum(nil); got != 0xffff {
		t.Errorf("Checksum(nil) = 0x%04x, expected 0xffff", got)
	}
}

func BenchmarkChecksum(b *testing.B) {
	buf := make([]byte, 1500)
	for i := range buf {
		buf[i] = byte(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Checksum(buf)
	}
}
