package router

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/metrics"
)

// icmpTTL is the TTL of datagrams the router originates.
const icmpTTL = 64

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func icmpKind(typ, code uint8) string {
	switch {
	case typ == header.ICMPTypeEchoReply:
		return "echo_reply"
	case typ == header.ICMPTypeTimeExceeded:
		return "time_exceeded"
	case typ == header.ICMPTypeDestUnreachable && code == header.ICMPCodeNetUnreachable:
		return "net_unreachable"
	case typ == header.ICMPTypeDestUnreachable && code == header.ICMPCodeHostUnreachable:
		return "host_unreachable"
	case typ == header.ICMPTypeDestUnreachable && code == header.ICMPCodePortUnreachable:
		return "port_unreachable"
	}
	return "other"
}

// sendICMPError reports a problem with the datagram in data back to its
// source, out the interface it arrived on. dstMAC is the previous hop.
func (r *Router) sendICMPError(in core.Interface, dstMAC core.MAC, data []byte, ip header.IPv4, typ, code uint8) {
	kind := icmpKind(typ, code)

	if !errorWorthySource(ip.Src) {
		slog.Debug("no icmp error for source", "src", ip.Src, "kind", kind)
		return
	}
	if ip.Protocol == header.IPProtocolICMP {
		if h, err := header.ParseICMP(ip.Payload(data)); err == nil && header.IsICMPError(h.Type) {
			slog.Debug("no icmp error about an icmp error", "src", ip.Src, "kind", kind)
			return
		}
	}
	if !r.limiter.Allow(ip.Src, r.now()) {
		metrics.ICMPSuppressedTotal.WithLabelValues(kind).Inc()
		return
	}

	frame, err := buildICMP(in.MAC, dstMAC, in.IP, ip.Src,
		layers.CreateICMPv4TypeCode(typ, code), 0, 0, header.Quote(data, ip))
	if err != nil {
		slog.Error("failed to build icmp error", "kind", kind, "error", err)
		return
	}
	if r.transmit(in.Name, frame) {
		metrics.ICMPSentTotal.WithLabelValues(kind).Inc()
		slog.Debug("icmp error sent", "kind", kind, "iface", in.Name, "to", ip.Src)
	}
}

// sendEchoReply answers an echo request addressed to one of our interfaces.
// msg is the complete ICMP echo request.
func (r *Router) sendEchoReply(in core.Interface, dstMAC core.MAC, ip header.IPv4, echo header.ICMP, msg []byte) {
	frame, err := buildICMP(in.MAC, dstMAC, ip.Dst, ip.Src,
		layers.CreateICMPv4TypeCode(header.ICMPTypeEchoReply, 0), echo.ID, echo.Seq, msg[header.ICMPHeaderLen:])
	if err != nil {
		slog.Error("failed to build echo reply", "error", err)
		return
	}
	if r.transmit(in.Name, frame) {
		metrics.ICMPSentTotal.WithLabelValues("echo_reply").Inc()
	}
}

// errorWorthySource reports whether src may receive an ICMP error.
func errorWorthySource(src netip.Addr) bool {
	if !src.Is4() || src.IsUnspecified() || src.IsMulticast() || src.IsLoopback() {
		return false
	}
	return src != netip.AddrFrom4([4]byte{255, 255, 255, 255})
}

func buildICMP(srcMAC, dstMAC core.MAC, src, dst netip.Addr, typeCode layers.ICMPv4TypeCode, id, seq uint16, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      icmpTTL,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IP(src.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	icmp := &layers.ICMPv4{
		TypeCode: typeCode,
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, ip4, icmp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildARP(op uint16, srcMAC, dstMAC, senderMAC core.MAC, senderIP netip.Addr, targetMAC core.MAC, targetIP netip.Addr) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeARP,
	}
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   senderMAC.HardwareAddr(),
		SourceProtAddress: senderIP.AsSlice(),
		DstHwAddress:      targetMAC.HardwareAddr(),
		DstProtAddress:    targetIP.AsSlice(),
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
