package router

import (
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/srouter/internal/arp"
	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/metrics"
)

func (r *Router) handleARP(in core.Interface, payload []byte) {
	a, err := header.ParseARP(payload)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedProto) {
			r.drop(metrics.DropUnsupportedARP, "unsupported arp variant", "iface", in.Name,
				"hrd", a.HardwareType, "pro", a.ProtocolType)
		} else {
			r.drop(metrics.DropMalformedARP, "truncated arp packet", "iface", in.Name, "len", len(payload))
		}
		return
	}

	now := r.now()
	switch a.Op {
	case header.ARPOpRequest:
		if !r.ifaces.Owns(a.TargetIP) {
			r.drop(metrics.DropARPNotForUs, "arp request for foreign address", "iface", in.Name, "target", a.TargetIP)
			return
		}
		r.sendARPReply(in, a)
		// The requester is about to talk to us; remember its binding.
		r.learn(a.SenderIP, a.SenderMAC, now)
	case header.ARPOpReply:
		slog.Debug("arp reply", "iface", in.Name, "ip", a.SenderIP, "mac", a.SenderMAC)
		r.learn(a.SenderIP, a.SenderMAC, now)
	default:
		r.drop(metrics.DropARPOpcode, "unsupported arp opcode", "iface", in.Name, "op", a.Op)
	}
}

// learn caches ip → mac and flushes any frames waiting on ip.
func (r *Router) learn(ip netip.Addr, mac core.MAC, now time.Time) {
	if !ip.IsValid() || ip.IsUnspecified() {
		return
	}
	req, pending := r.cache.Insert(ip, mac, now)
	if pending {
		r.flush(req, mac)
	}
}

// flush sends every frame of a resolved request in arrival order.
func (r *Router) flush(req arp.Request, mac core.MAC) {
	egress, ok := r.ifaces.ByName(req.Iface)
	if !ok {
		slog.Error("resolved request has unknown egress interface", "iface", req.Iface, "ip", req.IP)
		return
	}
	slog.Debug("arp resolved, flushing queued frames", "ip", req.IP, "mac", mac,
		"iface", egress.Name, "frames", len(req.Frames))

	for _, qf := range req.Frames {
		if err := header.SetEthernetAddrs(qf.Frame, mac, egress.MAC); err != nil {
			continue
		}
		if r.transmit(egress.Name, qf.Frame) {
			metrics.FramesForwardedTotal.WithLabelValues(egress.Name).Inc()
		}
	}
}

func (r *Router) sendARPReply(in core.Interface, req header.ARP) {
	frame, err := buildARP(layers.ARPReply, in.MAC, req.SenderMAC, in.MAC, req.TargetIP, req.SenderMAC, req.SenderIP)
	if err != nil {
		slog.Error("failed to build arp reply", "error", err)
		return
	}
	if r.transmit(in.Name, frame) {
		metrics.ARPRepliesSentTotal.WithLabelValues(in.Name).Inc()
		slog.Debug("arp reply sent", "iface", in.Name, "ip", req.TargetIP, "to", req.SenderIP)
	}
}

// sendARPRequest broadcasts a request for target on egress.
func (r *Router) sendARPRequest(egress core.Interface, target netip.Addr) {
	frame, err := buildARP(layers.ARPRequest, egress.MAC, core.BroadcastMAC, egress.MAC, egress.IP, core.MAC{}, target)
	if err != nil {
		slog.Error("failed to build arp request", "error", err)
		return
	}
	if r.transmit(egress.Name, frame) {
		metrics.ARPRequestsSentTotal.WithLabelValues(egress.Name).Inc()
		slog.Debug("arp request sent", "iface", egress.Name, "target", target)
	}
}
