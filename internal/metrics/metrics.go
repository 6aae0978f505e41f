// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of FramesDroppedTotal.
const (
	DropUnknownInterface = "unknown_interface"
	DropRuntFrame        = "runt_frame"
	DropUnknownEtherType = "unknown_ethertype"
	DropMalformedARP     = "malformed_arp"
	DropUnsupportedARP   = "unsupported_arp"
	DropARPOpcode        = "arp_opcode"
	DropARPNotForUs      = "arp_not_for_us"
	DropMalformedIP      = "malformed_ip"
	DropBadChecksum      = "bad_checksum"
	DropTTLExceeded      = "ttl_exceeded"
	DropNoRoute          = "no_route"
	DropHostUnreachable  = "host_unreachable"
	DropARPQueueFull     = "arp_queue_full"
	DropLocalProtocol    = "local_protocol"
	DropSendFailed       = "send_failed"
)

var (
	// FramesReceivedTotal counts frames handed to the router by interface and ethertype
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_frames_received_total",
			Help: "Total number of frames received",
		},
		[]string{"interface", "ethertype"},
	)

	// FramesDroppedTotal counts frames discarded by the router
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_frames_dropped_total",
			Help: "Total number of frames dropped",
		},
		[]string{"reason"},
	)

	// FramesForwardedTotal counts IP datagrams transmitted toward their next hop
	FramesForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_frames_forwarded_total",
			Help: "Total number of datagrams forwarded",
		},
		[]string{"interface"},
	)

	// ICMPSentTotal counts generated ICMP messages by kind
	ICMPSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_icmp_sent_total",
			Help: "Total number of ICMP messages generated",
		},
		[]string{"kind"},
	)

	// ICMPSuppressedTotal counts ICMP errors withheld by the rate limiter
	ICMPSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_icmp_suppressed_total",
			Help: "Total number of ICMP errors suppressed by rate limiting",
		},
		[]string{"kind"},
	)

	// ARPRequestsSentTotal counts ARP requests we originated, including retries
	ARPRequestsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_arp_requests_sent_total",
			Help: "Total number of ARP requests sent",
		},
		[]string{"interface"},
	)

	// ARPRepliesSentTotal counts ARP replies for our own addresses
	ARPRepliesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_arp_replies_sent_total",
			Help: "Total number of ARP replies sent",
		},
		[]string{"interface"},
	)

	// ARPCacheEntries tracks resolved bindings in the ARP cache
	ARPCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "srouter_arp_cache_entries",
			Help: "Number of resolved entries in the ARP cache",
		},
	)

	// ARPPendingRequests tracks unresolved next hops with queued frames
	ARPPendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "srouter_arp_pending_requests",
			Help: "Number of pending ARP resolutions",
		},
	)

	// ARPQueuedFrames tracks frames waiting on pending resolutions
	ARPQueuedFrames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "srouter_arp_queued_frames",
			Help: "Number of frames waiting for ARP resolution",
		},
	)

	// TransportErrorsTotal counts link transport read/write failures
	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srouter_transport_errors_total",
			Help: "Total number of link transport errors",
		},
		[]string{"interface", "op"},
	)
)
