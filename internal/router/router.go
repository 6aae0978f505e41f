// Package router implements the packet-processing core: frame dispatch, ARP
// request/reply handling, IPv4 forwarding with longest-prefix-match routing,
// ICMP generation and the ARP resolution sweeper.
package router

import (
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/srouter/internal/arp"
	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/metrics"
	"firestige.xyz/srouter/internal/route"
)

// DefaultSweepInterval is how often Run drives the resolution sweeper.
const DefaultSweepInterval = time.Second

// Sender transmits a complete Ethernet frame on a named interface.
// Implementations must not retain frame after returning.
type Sender interface {
	SendFrame(iface string, frame []byte) error
}

// Config contains router settings.
type Config struct {
	ARP           arp.Config
	SweepInterval time.Duration // default 1s

	// ICMPRateLimit is the sustained number of ICMP errors per second
	// allowed toward one destination. 0 disables limiting.
	ICMPRateLimit float64
	ICMPBurst     int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Router forwards frames between the interfaces of an InterfaceTable.
//
// HandleFrame and Sweep may run concurrently; they share state only through
// the ARP cache.
type Router struct {
	ifaces        *route.InterfaceTable
	routes        *route.Table
	cache         *arp.Cache
	out           Sender
	limiter       *icmpLimiter
	now           func() time.Time
	sweepInterval time.Duration
}

// New creates a router. Missing collaborators yield core.ErrRouterNotReady;
// routes through unknown interfaces yield core.ErrConfigInvalid.
func New(cfg Config, ifaces *route.InterfaceTable, routes *route.Table, out Sender) (*Router, error) {
	if ifaces == nil || routes == nil || out == nil {
		return nil, fmt.Errorf("%w: interface table, routing table and sender are required", core.ErrRouterNotReady)
	}
	if err := ifaces.CheckRoutes(routes.Routes()); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	if cfg.ICMPRateLimit < 0 {
		return nil, fmt.Errorf("%w: negative ICMP rate limit", core.ErrConfigInvalid)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Router{
		ifaces:        ifaces,
		routes:        routes,
		cache:         arp.NewCache(cfg.ARP),
		out:           out,
		limiter:       newICMPLimiter(cfg.ICMPRateLimit, cfg.ICMPBurst),
		now:           now,
		sweepInterval: sweepInterval,
	}, nil
}

// Cache exposes the router's ARP cache for inspection.
func (r *Router) Cache() *arp.Cache {
	return r.cache
}

// Interfaces returns the interface table.
func (r *Router) Interfaces() *route.InterfaceTable {
	return r.ifaces
}

// Routes returns the routing table.
func (r *Router) Routes() *route.Table {
	return r.routes
}

// HandleFrame processes one frame received on iface. frame is not retained.
func (r *Router) HandleFrame(frame []byte, iface string) {
	in, ok := r.ifaces.ByName(iface)
	if !ok {
		r.drop(metrics.DropUnknownInterface, "frame from unknown interface", "iface", iface)
		return
	}

	eth, payload, err := header.ParseEthernet(frame)
	if err != nil {
		r.drop(metrics.DropRuntFrame, "frame shorter than an ethernet header", "iface", iface, "len", len(frame))
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(iface, etherTypeLabel(eth.EtherType)).Inc()

	switch eth.EtherType {
	case header.EtherTypeARP:
		r.handleARP(in, payload)
	case header.EtherTypeIPv4:
		r.handleIPv4(in, eth, frame)
	default:
		r.drop(metrics.DropUnknownEtherType, "unsupported ethertype",
			"iface", iface, "ethertype", header.EtherTypeName(eth.EtherType))
	}
}

// etherTypeLabel bounds the ethertype label set; unknown types share "other".
func etherTypeLabel(t uint16) string {
	switch t {
	case header.EtherTypeARP, header.EtherTypeIPv4:
		return header.EtherTypeName(t)
	default:
		return "other"
	}
}

func (r *Router) drop(reason, msg string, args ...any) {
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
	slog.Debug(msg, append(args, "reason", reason)...)
}

// transmit hands frame to the sender. Failures are counted and logged only.
func (r *Router) transmit(iface string, frame []byte) bool {
	if err := r.out.SendFrame(iface, frame); err != nil {
		metrics.TransportErrorsTotal.WithLabelValues(iface, "send").Inc()
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropSendFailed).Inc()
		slog.Warn("failed to send frame", "iface", iface, "len", len(frame), "error", err)
		return false
	}
	return true
}
