package route

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/srouter/internal/core"
)

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

func rt(network, gateway, mask, iface string) core.Route {
	return core.Route{
		Network:   netip.MustParseAddr(network),
		Gateway:   netip.MustParseAddr(gateway),
		Mask:      netip.MustParseAddr(mask),
		Interface: iface,
	}
}

func TestLookupLongestPrefixWins(t *testing.T) {
	table, err := NewTable([]core.Route{
		rt("0.0.0.0", "10.0.0.254", "0.0.0.0", "eth0"),
		rt("192.168.0.0", "10.0.0.2", "255.255.0.0", "eth1"),
		rt("192.168.5.0", "0.0.0.0", "255.255.255.0", "eth2"),
	})
	require.NoError(t, err)

	tests := []struct {
		dst      string
		expected string
	}{
		{"192.168.5.9", "eth2"},
		{"192.168.6.1", "eth1"},
		{"8.8.8.8", "eth0"},
	}
	for _, tt := range tests {
		t.Run(tt.dst, func(t *testing.T) {
			r, ok := table.Lookup(netip.MustParseAddr(tt.dst))
			require.True(t, ok)
			assert.Equal(t, tt.expected, r.Interface)
		})
	}
}

func TestLookupOrderDoesNotMatterForLongerMask(t *testing.T) {
	// A broad route listed first must not shadow a more specific one.
	table, err := NewTable([]core.Route{
		rt("10.0.0.0", "0.0.0.0", "255.0.0.0", "eth0"),
		rt("10.1.2.0", "0.0.0.0", "255.255.255.0", "eth1"),
	})
	require.NoError(t, err)

	r, ok := table.Lookup(netip.MustParseAddr("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, "eth1", r.Interface)
}

func TestLookupTieGoesToFirstEntry(t *testing.T) {
	table, err := NewTable([]core.Route{
		rt("10.0.0.0", "10.0.0.1", "255.255.255.0", "eth0"),
		rt("10.0.0.0", "10.0.0.2", "255.255.255.0", "eth1"),
	})
	require.NoError(t, err)

	r, ok := table.Lookup(netip.MustParseAddr("10.0.0.77"))
	require.True(t, ok)
	if diff := cmp.Diff(rt("10.0.0.0", "10.0.0.1", "255.255.255.0", "eth0"), r, addrComparer); diff != "" {
		t.Errorf("Lookup mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupMiss(t *testing.T) {
	table, err := NewTable([]core.Route{
		rt("10.0.0.0", "0.0.0.0", "255.255.255.0", "eth0"),
	})
	require.NoError(t, err)

	_, ok := table.Lookup(netip.MustParseAddr("172.16.0.1"))
	assert.False(t, ok)

	_, ok = table.Lookup(netip.MustParseAddr("::1"))
	assert.False(t, ok, "IPv6 destinations never match")

	var empty *Table
	_, ok = empty.Lookup(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, ok)
}

func TestNewTableRejectsInvalidRoutes(t *testing.T) {
	_, err := NewTable([]core.Route{{Network: netip.MustParseAddr("10.0.0.0"), Interface: "eth0"}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = NewTable([]core.Route{rt("10.0.0.0", "0.0.0.0", "255.0.0.0", "")})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestRoutesReturnsCopy(t *testing.T) {
	table, err := NewTable([]core.Route{rt("10.0.0.0", "0.0.0.0", "255.0.0.0", "eth0")})
	require.NoError(t, err)

	routes := table.Routes()
	routes[0].Interface = "mutated"
	assert.Equal(t, "eth0", table.Routes()[0].Interface)
	assert.Equal(t, 1, table.Len())
}

func TestInterfaceTable(t *testing.T) {
	ifaces := []core.Interface{
		{Name: "eth1", MAC: core.MAC{0xaa, 0, 0, 0, 0, 2}, IP: netip.MustParseAddr("10.0.1.1")},
		{Name: "eth0", MAC: core.MAC{0xaa, 0, 0, 0, 0, 1}, IP: netip.MustParseAddr("10.0.0.1")},
	}
	table, err := NewInterfaceTable(ifaces)
	require.NoError(t, err)

	ifc, ok := table.ByName("eth0")
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), ifc.IP)

	ifc, ok = table.ByIP(netip.MustParseAddr("10.0.1.1"))
	require.True(t, ok)
	assert.Equal(t, "eth1", ifc.Name)

	assert.True(t, table.Owns(netip.MustParseAddr("10.0.0.1")))
	assert.False(t, table.Owns(netip.MustParseAddr("10.0.0.2")))

	all := table.All()
	require.Len(t, all, 2)
	assert.Equal(t, "eth0", all[0].Name)
	assert.Equal(t, "eth1", all[1].Name)

	err = table.CheckRoutes([]core.Route{rt("10.0.0.0", "0.0.0.0", "255.0.0.0", "eth9")})
	assert.True(t, errors.Is(err, core.ErrUnknownInterface))
	assert.NoError(t, table.CheckRoutes([]core.Route{rt("10.0.0.0", "0.0.0.0", "255.0.0.0", "eth1")}))
}

func TestInterfaceTableRejectsDuplicates(t *testing.T) {
	ip := netip.MustParseAddr("10.0.0.1")

	_, err := NewInterfaceTable([]core.Interface{{Name: "eth0", IP: ip}, {Name: "eth0", IP: netip.MustParseAddr("10.0.0.2")}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = NewInterfaceTable([]core.Interface{{Name: "eth0", IP: ip}, {Name: "eth1", IP: ip}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = NewInterfaceTable(nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
