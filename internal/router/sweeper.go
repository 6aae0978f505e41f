package router

import (
	"context"
	"log/slog"
	"time"

	"firestige.xyz/srouter/internal/arp"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/metrics"
)

// Run drives Sweep at the configured interval until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	slog.Info("arp sweeper started", "interval", r.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("arp sweeper stopped")
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one resolution tick: expired bindings are evicted, due requests
// are resent and exhausted requests answer each of their frames with an ICMP
// host unreachable.
func (r *Router) Sweep() {
	res := r.cache.Sweep(r.now())

	for _, e := range res.Evicted {
		slog.Debug("arp entry expired", "ip", e.IP, "mac", e.MAC)
	}

	for _, req := range res.Retry {
		egress, ok := r.ifaces.ByName(req.Iface)
		if !ok {
			continue
		}
		slog.Debug("retrying arp request", "ip", req.IP, "iface", req.Iface, "attempt", req.Attempts)
		r.sendARPRequest(egress, req.IP)
	}

	for _, req := range res.Abandoned {
		slog.Debug("arp resolution abandoned", "ip", req.IP, "iface", req.Iface,
			"attempts", req.Attempts, "frames", len(req.Frames))
		for _, qf := range req.Frames {
			r.abandon(qf)
		}
	}
}

// abandon answers a frame whose next hop never resolved.
func (r *Router) abandon(qf arp.QueuedFrame) {
	metrics.FramesDroppedTotal.WithLabelValues(metrics.DropHostUnreachable).Inc()

	in, ok := r.ifaces.ByName(qf.InIface)
	if !ok {
		return
	}
	eth, data, err := header.ParseEthernet(qf.Frame)
	if err != nil {
		return
	}
	ip, err := header.ParseIPv4(data)
	if err != nil {
		return
	}
	r.sendICMPError(in, eth.Src, data, ip, header.ICMPTypeDestUnreachable, header.ICMPCodeHostUnreachable)
}
