//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/metrics"
)

// AFPacketConfig configures the live transport.
type AFPacketConfig struct {
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
}

type afInterface struct {
	name   string
	mac    core.MAC
	handle *afpacket.TPacket
}

// AFPacketTransport exchanges frames with real network devices through one
// TPACKET_V3 ring per interface. Frames whose source MAC is the interface's
// own address are our transmissions looped back by the kernel and are skipped.
type AFPacketTransport struct {
	ifaces  map[string]*afInterface
	inbound chan Frame
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAFPacketTransport opens a ring on every interface and starts reading.
func NewAFPacketTransport(cfg AFPacketConfig, ifaces []core.Interface) (*AFPacketTransport, error) {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = DefaultSnapLen
	}
	if cfg.BufferSizeMB <= 0 {
		cfg.BufferSizeMB = 8
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 100
	}

	layout, err := computeRingLayout(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	filter, err := FrameFilter(cfg.SnapLen)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble frame filter: %w", err)
	}

	t := &AFPacketTransport{
		ifaces:  make(map[string]*afInterface, len(ifaces)),
		inbound: make(chan Frame, 1024),
		done:    make(chan struct{}),
	}
	for _, ifc := range ifaces {
		h, err := afpacket.NewTPacket(
			afpacket.OptInterface(ifc.Name),
			afpacket.OptFrameSize(layout.frameSize),
			afpacket.OptBlockSize(layout.blockSize),
			afpacket.OptNumBlocks(layout.numBlocks),
			afpacket.OptPollTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond),
			afpacket.SocketRaw,
			afpacket.TPacketVersion3,
		)
		if err != nil {
			t.closeHandles()
			return nil, fmt.Errorf("failed to open %s: %w", ifc.Name, err)
		}
		if err := h.SetBPF(filter); err != nil {
			h.Close()
			t.closeHandles()
			return nil, fmt.Errorf("failed to attach filter to %s: %w", ifc.Name, err)
		}
		t.ifaces[ifc.Name] = &afInterface{name: ifc.Name, mac: ifc.MAC, handle: h}
	}

	for _, ai := range t.ifaces {
		t.wg.Add(1)
		go t.readLoop(ai)
	}
	slog.Info("afpacket transport started", "interfaces", len(t.ifaces),
		"frame_size", layout.frameSize, "block_size", layout.blockSize, "blocks", layout.numBlocks)
	return t, nil
}

func (t *AFPacketTransport) readLoop(ai *afInterface) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		default:
		}

		data, ci, err := ai.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) {
				continue
			}
			select {
			case <-t.done:
				return
			default:
			}
			metrics.TransportErrorsTotal.WithLabelValues(ai.name, "read").Inc()
			slog.Warn("afpacket read failed", "iface", ai.name, "error", err)
			continue
		}
		if len(data) >= 12 && [6]byte(data[6:12]) == [6]byte(ai.mac) {
			continue
		}

		select {
		case t.inbound <- Frame{Iface: ai.name, Data: data, Timestamp: ci.Timestamp}:
		case <-t.done:
			return
		}
	}
}

func (t *AFPacketTransport) ReadFrame(ctx context.Context) ([]byte, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-t.done:
		return nil, "", core.ErrTransportClosed
	case f := <-t.inbound:
		return f.Data, f.Iface, nil
	}
}

func (t *AFPacketTransport) SendFrame(iface string, frame []byte) error {
	ai, ok := t.ifaces[iface]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownInterface, iface)
	}
	select {
	case <-t.done:
		return core.ErrTransportClosed
	default:
	}
	return ai.handle.WritePacketData(frame)
}

// Close stops the readers and releases the rings.
func (t *AFPacketTransport) Close() error {
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.closeHandles()
	})
	return nil
}

func (t *AFPacketTransport) closeHandles() {
	for _, ai := range t.ifaces {
		ai.handle.Close()
	}
}
