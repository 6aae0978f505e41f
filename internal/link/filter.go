package link

import (
	"golang.org/x/net/bpf"
)

// frameFilterProgram accepts ARP and IPv4 frames, truncated to snapLen, and
// rejects everything else in the kernel.
func frameFilterProgram(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},                        // ethertype
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0806, SkipTrue: 1},  // ARP
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 1}, // IPv4
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

// FrameFilter returns the assembled ARP-or-IPv4 socket filter.
func FrameFilter(snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(frameFilterProgram(uint32(snapLen)))
}
