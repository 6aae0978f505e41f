package router

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"firestige.xyz/srouter/internal/arp"
	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/core/header"
	"firestige.xyz/srouter/internal/route"
)

var (
	macA    = core.MAC{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x01}
	macB    = core.MAC{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x02}
	hostMAC = core.MAC{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0x02} // 10.0.0.2 behind eth0
	peerMAC = core.MAC{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0x50} // 10.0.1.50 behind eth1

	ipA    = netip.MustParseAddr("10.0.0.1")
	ipB    = netip.MustParseAddr("10.0.1.1")
	hostIP = netip.MustParseAddr("10.0.0.2")
	peerIP = netip.MustParseAddr("10.0.1.50")
	gwIP   = netip.MustParseAddr("10.0.1.2")

	start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type sentFrame struct {
	iface string
	frame []byte
}

// recordingSender keeps a private copy of every transmitted frame.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

func (s *recordingSender) SendFrame(iface string, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentFrame{iface: iface, frame: append([]byte(nil), frame...)})
	return nil
}

// take returns and clears the recorded frames.
func (s *recordingSender) take() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustRoute(network, gateway, mask, iface string) core.Route {
	return core.Route{
		Network:   netip.MustParseAddr(network),
		Gateway:   netip.MustParseAddr(gateway),
		Mask:      netip.MustParseAddr(mask),
		Interface: iface,
	}
}

func testTables(t *testing.T) (*route.InterfaceTable, *route.Table) {
	t.Helper()
	ifaces, err := route.NewInterfaceTable([]core.Interface{
		{Name: "eth0", MAC: macA, IP: ipA},
		{Name: "eth1", MAC: macB, IP: ipB},
	})
	require.NoError(t, err)
	routes, err := route.NewTable([]core.Route{
		mustRoute("10.0.0.0", "0.0.0.0", "255.255.255.0", "eth0"),
		mustRoute("10.0.1.0", "0.0.0.0", "255.255.255.0", "eth1"),
		mustRoute("192.168.0.0", "10.0.1.2", "255.255.0.0", "eth1"),
	})
	require.NoError(t, err)
	return ifaces, routes
}

func newTestRouter(t *testing.T, mutate func(*Config)) (*Router, *recordingSender, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: start}
	cfg := Config{
		ARP: arp.Config{
			EntryTimeout:  15 * time.Second,
			RetryInterval: time.Second,
			MaxAttempts:   5,
			MaxQueued:     256,
		},
		Now: clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ifaces, routes := testTables(t)
	out := &recordingSender{}
	r, err := New(cfg, ifaces, routes, out)
	require.NoError(t, err)
	return r, out, clock
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func arpFrame(t *testing.T, op uint16, srcMAC, dstMAC core.MAC, senderIP netip.Addr, targetMAC core.MAC, targetIP netip.Addr) []byte {
	t.Helper()
	return serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC.HardwareAddr(), DstMAC: dstMAC.HardwareAddr(), EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         op,
			SourceHwAddress:   srcMAC.HardwareAddr(),
			SourceProtAddress: senderIP.AsSlice(),
			DstHwAddress:      targetMAC.HardwareAddr(),
			DstProtAddress:    targetIP.AsSlice(),
		},
	)
}

// ipFrame builds an IPv4 frame from hostMAC to the router's eth0.
func ipFrame(t *testing.T, src, dst netip.Addr, ttl uint8, proto layers.IPProtocol, rest ...gopacket.SerializableLayer) []byte {
	t.Helper()
	ls := []gopacket.SerializableLayer{
		&layers.Ethernet{SrcMAC: hostMAC.HardwareAddr(), DstMAC: macA.HardwareAddr(), EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      ttl,
			Id:       0x4242,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		},
	}
	return serialize(t, append(ls, rest...)...)
}

func udpFrame(t *testing.T, src, dst netip.Addr, ttl uint8) []byte {
	return ipFrame(t, src, dst, ttl, layers.IPProtocolUDP, gopacket.Payload([]byte{
		0x30, 0x39, 0x1f, 0x90, 0x00, 0x10, 0x00, 0x00, // UDP header, checksum unset
		'q', 'u', 'e', 'r', 'y', '!', '!', '!',
	}))
}

func echoFrame(t *testing.T, src, dst netip.Addr, ttl uint8, id, seq uint16, payload []byte) []byte {
	return ipFrame(t, src, dst, ttl, layers.IPProtocolICMPv4,
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: id, Seq: seq},
		gopacket.Payload(payload),
	)
}

func decode(t *testing.T, frame []byte) gopacket.Packet {
	t.Helper()
	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, p.ErrorLayer(), "frame does not decode")
	return p
}

func ethOf(t *testing.T, p gopacket.Packet) *layers.Ethernet {
	t.Helper()
	l, ok := p.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	return l
}

func arpOf(t *testing.T, p gopacket.Packet) *layers.ARP {
	t.Helper()
	l, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok, "not an arp frame")
	return l
}

func ipv4Of(t *testing.T, p gopacket.Packet) *layers.IPv4 {
	t.Helper()
	l, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok, "not an ipv4 frame")
	return l
}

func icmpOf(t *testing.T, p gopacket.Packet) *layers.ICMPv4 {
	t.Helper()
	l, ok := p.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.True(t, ok, "not an icmp frame")
	return l
}

func macOf(hw net.HardwareAddr) core.MAC {
	var m core.MAC
	copy(m[:], hw)
	return m
}

func addrOf(ip []byte) netip.Addr {
	a, _ := netip.AddrFromSlice(ip)
	return a.Unmap()
}

// arpRequests filters the ARP frames out of sent.
func arpRequests(t *testing.T, sent []sentFrame) []*layers.ARP {
	t.Helper()
	var out []*layers.ARP
	for _, s := range sent {
		p := decode(t, s.frame)
		if a, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP); ok && a.Operation == layers.ARPRequest {
			out = append(out, a)
		}
	}
	return out
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func verifyIPChecksum(frame []byte) error {
	return header.VerifyIPv4Checksum(frame[header.EthernetHeaderLen:])
}

func setIPChecksum(ip []byte) {
	if err := header.SetIPv4Checksum(ip); err != nil {
		panic(err)
	}
}
