package router

import (
	"bytes"
	"errors"
	"log/slog"

	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/metrics"
)

// handleIPv4 validates, delivers locally or forwards an IPv4 datagram.
// The router works on its own copy of frame.
func (r *Router) handleIPv4(in core.Interface, eth header.Ethernet, frame []byte) {
	if len(frame) < header.EthernetHeaderLen+header.IPv4MinHeaderLen {
		r.drop(metrics.DropMalformedIP, "truncated ipv4 packet", "iface", in.Name, "len", len(frame))
		return
	}

	pkt := bytes.Clone(frame)
	data := pkt[header.EthernetHeaderLen:]

	ip, err := header.ParseIPv4(data)
	if err != nil {
		r.drop(metrics.DropMalformedIP, "invalid ipv4 header", "iface", in.Name, "error", err)
		return
	}
	if err := header.VerifyIPv4Checksum(data); err != nil {
		r.drop(metrics.DropBadChecksum, "ipv4 header checksum mismatch", "iface", in.Name, "src", ip.Src, "dst", ip.Dst)
		return
	}

	if ip.TTL <= 1 {
		r.drop(metrics.DropTTLExceeded, "ttl exceeded", "iface", in.Name, "src", ip.Src, "dst", ip.Dst, "ttl", ip.TTL)
		r.sendICMPError(in, eth.Src, data, ip, header.ICMPTypeTimeExceeded, header.ICMPCodeTTLExceeded)
		return
	}

	if r.ifaces.Owns(ip.Dst) {
		r.deliverLocal(in, eth, data, ip)
		return
	}

	if _, err := header.DecrementTTL(data); err != nil {
		r.drop(metrics.DropMalformedIP, "failed to rewrite ipv4 header", "iface", in.Name, "error", err)
		return
	}
	ip.TTL--

	rt, ok := r.routes.Lookup(ip.Dst)
	if !ok {
		r.drop(metrics.DropNoRoute, "no route to destination", "iface", in.Name, "dst", ip.Dst)
		r.sendICMPError(in, eth.Src, data, ip, header.ICMPTypeDestUnreachable, header.ICMPCodeNetUnreachable)
		return
	}
	egress, ok := r.ifaces.ByName(rt.Interface)
	if !ok {
		// New rejects such tables; reaching this is a bug.
		slog.Error("route references unknown interface", "route", rt.String())
		return
	}
	nextHop := rt.NextHop(ip.Dst)
	now := r.now()

	if mac, ok := r.cache.Lookup(nextHop, now); ok {
		_ = header.SetEthernetAddrs(pkt, mac, egress.MAC)
		if r.transmit(egress.Name, pkt) {
			metrics.FramesForwardedTotal.WithLabelValues(egress.Name).Inc()
		}
		return
	}

	created, err := r.cache.Queue(nextHop, egress.Name, pkt, in.Name, now)
	if err != nil {
		if errors.Is(err, core.ErrQueueFull) {
			r.drop(metrics.DropARPQueueFull, "arp queue full", "next_hop", nextHop, "dst", ip.Dst)
		}
		return
	}
	slog.Debug("queued frame for arp resolution", "next_hop", nextHop, "iface", egress.Name, "created", created)
	if created {
		r.sendARPRequest(egress, nextHop)
	}
}

// deliverLocal handles datagrams addressed to the router itself.
func (r *Router) deliverLocal(in core.Interface, eth header.Ethernet, data []byte, ip header.IPv4) {
	switch ip.Protocol {
	case header.IPProtocolICMP:
		msg := ip.Payload(data)
		echo, err := header.ParseICMP(msg)
		if err != nil {
			r.drop(metrics.DropMalformedIP, "truncated icmp message", "iface", in.Name, "src", ip.Src)
			return
		}
		if echo.Type != header.ICMPTypeEchoRequest {
			r.drop(metrics.DropLocalProtocol, "ignoring icmp message", "iface", in.Name, "type", echo.Type)
			return
		}
		if err := header.VerifyICMPChecksum(msg); err != nil {
			r.drop(metrics.DropBadChecksum, "icmp checksum mismatch", "iface", in.Name, "src", ip.Src)
			return
		}
		r.sendEchoReply(in, eth.Src, ip, echo, msg)
	case header.IPProtocolTCP, header.IPProtocolUDP:
		r.drop(metrics.DropLocalProtocol, "no listener for transport protocol", "iface", in.Name,
			"src", ip.Src, "proto", ip.Protocol)
		r.sendICMPError(in, eth.Src, data, ip, header.ICMPTypeDestUnreachable, header.ICMPCodePortUnreachable)
	default:
		r.drop(metrics.DropLocalProtocol, "unsupported local protocol", "iface", in.Name, "proto", ip.Protocol)
	}
}
