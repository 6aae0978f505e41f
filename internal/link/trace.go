package link

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/srouter/internal/metrics"
)

// TracingTransport copies every received and transmitted frame into a pcap file.
type TracingTransport struct {
	Transport

	mu   sync.Mutex
	file *os.File
	w    *pcapgo.Writer
	now  func() time.Time

	// warned is set after the first failed write; later failures are only counted.
	warned bool
}

// NewTracingTransport wraps inner, writing the trace to path.
func NewTracingTransport(inner Transport, path string) (*TracingTransport, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file %s: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(DefaultSnapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write trace header: %w", err)
	}
	return &TracingTransport{Transport: inner, file: f, w: w, now: time.Now}, nil
}

func (t *TracingTransport) ReadFrame(ctx context.Context) ([]byte, string, error) {
	frame, iface, err := t.Transport.ReadFrame(ctx)
	if err == nil {
		t.record(frame)
	}
	return frame, iface, err
}

func (t *TracingTransport) SendFrame(iface string, frame []byte) error {
	if err := t.Transport.SendFrame(iface, frame); err != nil {
		return err
	}
	t.record(frame)
	return nil
}

func (t *TracingTransport) record(frame []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return
	}
	n := min(len(frame), DefaultSnapLen)
	err := t.w.WritePacket(gopacket.CaptureInfo{Timestamp: t.now(), CaptureLength: n, Length: len(frame)}, frame[:n])
	if err == nil {
		return
	}
	metrics.TransportErrorsTotal.WithLabelValues("trace", "write").Inc()
	if !t.warned {
		t.warned = true
		slog.Warn("failed to write frame to trace file", "file", t.file.Name(), "error", err)
	}
}

// Close closes the trace file and the wrapped transport.
func (t *TracingTransport) Close() error {
	t.mu.Lock()
	var traceErr error
	if t.file != nil {
		traceErr = t.file.Close()
		t.file, t.w = nil, nil
	}
	t.mu.Unlock()

	if err := t.Transport.Close(); err != nil {
		return err
	}
	return traceErr
}
