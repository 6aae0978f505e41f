package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/srouter/internal/core"
)

// DefaultSnapLen bounds captured and written frame sizes.
const DefaultSnapLen = 65535

// PcapConfig configures a file-backed transport.
type PcapConfig struct {
	Inputs    map[string]string // interface name → pcap file replayed as received traffic
	OutputDir string            // transmitted frames go to <OutputDir>/<iface>.pcap; empty discards them
	SnapLen   int
}

type pcapInput struct {
	iface string
	file  *os.File
	r     *pcapgo.Reader

	// one frame of read-ahead so inputs can be merged by timestamp
	next    []byte
	ci      gopacket.CaptureInfo
	drained bool
}

type pcapOutput struct {
	file *os.File
	w    *pcapgo.Writer
}

// PcapTransport replays pcap files as inbound traffic, merged across
// interfaces in timestamp order, and records transmitted frames per interface.
// ReadFrame returns io.EOF once every input is drained.
type PcapTransport struct {
	mu      sync.Mutex
	inputs  []*pcapInput
	outputs map[string]*pcapOutput
	ifaces  map[string]bool
	dir     string
	snapLen int
	closed  bool
}

// NewPcapTransport opens every input file. ifaces lists the interfaces frames
// may be sent on; inputs must reference interfaces from the same list.
func NewPcapTransport(cfg PcapConfig, ifaces []string) (*PcapTransport, error) {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = DefaultSnapLen
	}
	t := &PcapTransport{
		outputs: make(map[string]*pcapOutput),
		ifaces:  make(map[string]bool, len(ifaces)),
		dir:     cfg.OutputDir,
		snapLen: cfg.SnapLen,
	}
	for _, name := range ifaces {
		t.ifaces[name] = true
	}

	names := make([]string, 0, len(cfg.Inputs))
	for name := range cfg.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !t.ifaces[name] {
			t.Close()
			return nil, fmt.Errorf("%w: pcap input for %s", core.ErrUnknownInterface, name)
		}
		in, err := openPcapInput(name, cfg.Inputs[name])
		if err != nil {
			t.Close()
			return nil, err
		}
		t.inputs = append(t.inputs, in)
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to create pcap output dir: %w", err)
		}
	}
	return t, nil
}

func openPcapInput(iface, path string) (*pcapInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", path, err)
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("pcap file %s: link type %s is not ethernet", path, r.LinkType())
	}
	return &pcapInput{iface: iface, file: f, r: r}, nil
}

// fill reads ahead one frame. Read errors other than EOF drain the input.
func (in *pcapInput) fill() {
	if in.drained || in.next != nil {
		return
	}
	data, ci, err := in.r.ReadPacketData()
	if err != nil {
		if err != io.EOF {
			slog.Warn("pcap input read failed", "iface", in.iface, "error", err)
		}
		in.drained = true
		return
	}
	in.next, in.ci = data, ci
}

func (t *PcapTransport) ReadFrame(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, "", core.ErrTransportClosed
	}

	var earliest *pcapInput
	for _, in := range t.inputs {
		in.fill()
		if in.next == nil {
			continue
		}
		if earliest == nil || in.ci.Timestamp.Before(earliest.ci.Timestamp) {
			earliest = in
		}
	}
	if earliest == nil {
		return nil, "", io.EOF
	}

	frame := earliest.next
	earliest.next = nil
	return frame, earliest.iface, nil
}

func (t *PcapTransport) SendFrame(iface string, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return core.ErrTransportClosed
	}
	if !t.ifaces[iface] {
		return fmt.Errorf("%w: %s", core.ErrUnknownInterface, iface)
	}
	if t.dir == "" {
		return nil
	}

	out, ok := t.outputs[iface]
	if !ok {
		var err error
		out, err = t.openOutput(iface)
		if err != nil {
			return err
		}
		t.outputs[iface] = out
	}

	n := len(frame)
	if n > t.snapLen {
		n = t.snapLen
	}
	ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: n, Length: len(frame)}
	return out.w.WritePacket(ci, frame[:n])
}

func (t *PcapTransport) openOutput(iface string) (*pcapOutput, error) {
	path := filepath.Join(t.dir, iface+".pcap")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap output %s: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(t.snapLen), layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header to %s: %w", path, err)
	}
	return &pcapOutput{file: f, w: w}, nil
}

func (t *PcapTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	for _, in := range t.inputs {
		if err := in.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, out := range t.outputs {
		if err := out.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
