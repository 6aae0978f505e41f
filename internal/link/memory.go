package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestige.xyz/srouter/internal/core"
)

// MemoryTransport is an in-process transport. Frames injected with Inject are
// returned by ReadFrame in order; sent frames are recorded for inspection.
type MemoryTransport struct {
	inbound chan Frame
	ifaces  map[string]bool

	mu     sync.Mutex
	sent   []Frame
	closed bool
	done   chan struct{}
}

// NewMemoryTransport creates a transport for the named interfaces with room
// for backlog queued inbound frames.
func NewMemoryTransport(backlog int, ifaces ...string) *MemoryTransport {
	known := make(map[string]bool, len(ifaces))
	for _, name := range ifaces {
		known[name] = true
	}
	return &MemoryTransport{
		inbound: make(chan Frame, backlog),
		ifaces:  known,
		done:    make(chan struct{}),
	}
}

// Inject queues a copy of frame as if received on iface.
func (m *MemoryTransport) Inject(iface string, frame []byte) error {
	if !m.ifaces[iface] {
		return fmt.Errorf("%w: %s", core.ErrUnknownInterface, iface)
	}
	f := Frame{Iface: iface, Data: append([]byte(nil), frame...), Timestamp: time.Now()}
	select {
	case <-m.done:
		return core.ErrTransportClosed
	case m.inbound <- f:
		return nil
	}
}

func (m *MemoryTransport) ReadFrame(ctx context.Context) ([]byte, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-m.done:
		return nil, "", core.ErrTransportClosed
	case f := <-m.inbound:
		return f.Data, f.Iface, nil
	}
}

func (m *MemoryTransport) SendFrame(iface string, frame []byte) error {
	if !m.ifaces[iface] {
		return fmt.Errorf("%w: %s", core.ErrUnknownInterface, iface)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrTransportClosed
	}
	m.sent = append(m.sent, Frame{Iface: iface, Data: append([]byte(nil), frame...), Timestamp: time.Now()})
	return nil
}

// Sent returns and clears the frames transmitted so far.
func (m *MemoryTransport) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sent
	m.sent = nil
	return out
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
