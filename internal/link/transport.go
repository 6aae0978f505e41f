// Package link moves raw Ethernet frames between the router and its
// interfaces: live AF_PACKET sockets, pcap files, or in-memory queues.
package link

import (
	"context"
	"time"
)

// Transport delivers received frames and transmits outgoing ones.
//
// ReadFrame blocks until a frame arrives, ctx is done, or the transport is
// exhausted (io.EOF) or closed (core.ErrTransportClosed). The returned frame
// belongs to the caller. SendFrame must not retain frame.
type Transport interface {
	ReadFrame(ctx context.Context) (frame []byte, iface string, err error)
	SendFrame(iface string, frame []byte) error
	Close() error
}

// Frame is a frame together with the interface it was seen on.
type Frame struct {
	Iface     string
	Data      []byte
	Timestamp time.Time
}
