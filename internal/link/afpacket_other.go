//go:build !linux

package link

import (
	"context"
	"errors"

	"firestige.xyz/srouter/internal/core"
)

// AFPacketConfig configures the live transport.
type AFPacketConfig struct {
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
}

// AFPacketTransport is only available on Linux.
type AFPacketTransport struct{}

var errAFPacketUnsupported = errors.New("afpacket transport requires linux")

func NewAFPacketTransport(cfg AFPacketConfig, ifaces []core.Interface) (*AFPacketTransport, error) {
	return nil, errAFPacketUnsupported
}

func (t *AFPacketTransport) ReadFrame(ctx context.Context) ([]byte, string, error) {
	return nil, "", errAFPacketUnsupported
}

func (t *AFPacketTransport) SendFrame(iface string, frame []byte) error {
	return errAFPacketUnsupported
}

func (t *AFPacketTransport) Close() error { return nil }
