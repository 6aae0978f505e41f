package link

import (
	"fmt"
)

// ringLayout is a PACKET_MMAP ring geometry.
type ringLayout struct {
	frameSize int
	blockSize int
	numBlocks int
}

// computeRingLayout sizes an AF_PACKET ring of roughly bufferMB megabytes
// holding frames of up to snapLen bytes.
//
// PACKET_MMAP requires the frame size to be a multiple of TPACKET_ALIGNMENT,
// the block size to be a multiple of the page size, and every block to hold a
// whole number of frames.
func computeRingLayout(bufferMB, snapLen, pageSize int) (ringLayout, error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN, approximate
	const maxBlockSize = 4 * 1024 * 1024

	if bufferMB <= 0 {
		return ringLayout{}, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return ringLayout{}, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize < tpacketAlignment || pageSize&(pageSize-1) != 0 {
		return ringLayout{}, fmt.Errorf("page size must be a power of two of at least %d, got %d", tpacketAlignment, pageSize)
	}

	var l ringLayout
	l.frameSize = (tpacketHdrLen + snapLen + tpacketAlignment - 1) / tpacketAlignment * tpacketAlignment

	if l.frameSize > pageSize {
		// Jumbo frames: whole pages per frame, as many frames per block as
		// fit in maxBlockSize.
		l.frameSize = (l.frameSize + pageSize - 1) / pageSize * pageSize
		l.blockSize = l.frameSize * max(1, maxBlockSize/l.frameSize)
	} else {
		l.blockSize = lcm(pageSize, l.frameSize)
		if l.blockSize > maxBlockSize {
			// Round the frame up to a power of two so it divides the page.
			f := tpacketAlignment
			for f < l.frameSize {
				f <<= 1
			}
			l.frameSize, l.blockSize = f, pageSize
		}
	}

	l.numBlocks = max(1, bufferMB*1024*1024/l.blockSize)
	return l, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
