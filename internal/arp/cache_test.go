package arp

import (
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/srouter/internal/core"
)

var (
	t0      = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hopIP   = netip.MustParseAddr("10.0.1.2")
	hopMAC  = core.MAC{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0x02}
	testCfg = Config{
		EntryTimeout:  15 * time.Second,
		RetryInterval: time.Second,
		MaxAttempts:   5,
		MaxQueued:     4,
	}
)

func TestConfigDefaults(t *testing.T) {
	c := NewCache(Config{})
	cfg := c.Config()
	assert.Equal(t, DefaultEntryTimeout, cfg.EntryTimeout)
	assert.Equal(t, DefaultRetryInterval, cfg.RetryInterval)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultMaxQueued, cfg.MaxQueued)
}

func TestInsertAndLookup(t *testing.T) {
	c := NewCache(testCfg)

	_, ok := c.Lookup(hopIP, t0)
	assert.False(t, ok)

	_, hadPending := c.Insert(hopIP, hopMAC, t0)
	assert.False(t, hadPending)

	mac, ok := c.Lookup(hopIP, t0.Add(14*time.Second))
	require.True(t, ok)
	assert.Equal(t, hopMAC, mac)

	_, ok = c.Lookup(hopIP, t0.Add(15*time.Second))
	assert.False(t, ok, "entry is stale at its expiry instant")
}

func TestInsertRefreshesEntry(t *testing.T) {
	c := NewCache(testCfg)
	c.Insert(hopIP, hopMAC, t0)

	newMAC := core.MAC{0xcc, 0, 0, 0, 0, 1}
	c.Insert(hopIP, newMAC, t0.Add(10*time.Second))

	mac, ok := c.Lookup(hopIP, t0.Add(20*time.Second))
	require.True(t, ok)
	assert.Equal(t, newMAC, mac)
}

func TestQueueCreatesOneRequestPerIP(t *testing.T) {
	c := NewCache(testCfg)

	created, err := c.Queue(hopIP, "eth1", []byte{1}, "eth0", t0)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Queue(hopIP, "eth2", []byte{2}, "eth3", t0.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, created, "second frame joins the existing request")

	pending := c.Pending()
	require.Len(t, pending, 1)
	req := pending[0]
	assert.Equal(t, "eth1", req.Iface, "egress stays with the first frame's route")
	assert.Equal(t, 1, req.Attempts)
	assert.Equal(t, t0, req.LastSent)
	require.Len(t, req.Frames, 2)
	assert.Equal(t, []byte{1}, req.Frames[0].Frame)
	assert.Equal(t, "eth0", req.Frames[0].InIface)
	assert.Equal(t, "eth3", req.Frames[1].InIface)
}

func TestQueueCopiesFrame(t *testing.T) {
	c := NewCache(testCfg)
	frame := []byte{1, 2, 3}
	_, err := c.Queue(hopIP, "eth1", frame, "eth0", t0)
	require.NoError(t, err)

	frame[0] = 9
	assert.Equal(t, byte(1), c.Pending()[0].Frames[0].Frame[0])
}

func TestQueueFull(t *testing.T) {
	c := NewCache(testCfg)
	for i := 0; i < testCfg.MaxQueued; i++ {
		_, err := c.Queue(hopIP, "eth1", []byte{byte(i)}, "eth0", t0)
		require.NoError(t, err)
	}
	_, err := c.Queue(hopIP, "eth1", []byte{0xff}, "eth0", t0)
	assert.True(t, errors.Is(err, core.ErrQueueFull))
	assert.Len(t, c.Pending()[0].Frames, testCfg.MaxQueued)
}

func TestInsertReturnsPendingRequest(t *testing.T) {
	c := NewCache(testCfg)
	_, _ = c.Queue(hopIP, "eth1", []byte{1}, "eth0", t0)
	_, _ = c.Queue(hopIP, "eth1", []byte{2}, "eth0", t0)

	req, ok := c.Insert(hopIP, hopMAC, t0.Add(300*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, hopIP, req.IP)
	require.Len(t, req.Frames, 2)
	assert.Equal(t, []byte{1}, req.Frames[0].Frame)
	assert.Equal(t, []byte{2}, req.Frames[1].Frame)
	assert.Empty(t, c.Pending())
}

func TestSweepNothingDueLeavesCacheUnchanged(t *testing.T) {
	c := NewCache(testCfg)
	c.Insert(netip.MustParseAddr("10.0.0.9"), hopMAC, t0)
	_, _ = c.Queue(hopIP, "eth1", []byte{1}, "eth0", t0)

	entriesBefore := c.Entries()
	pendingBefore := c.Pending()

	res := c.Sweep(t0.Add(500 * time.Millisecond))
	assert.Empty(t, res.Retry)
	assert.Empty(t, res.Abandoned)
	assert.Empty(t, res.Evicted)

	addrCmp := cmp.Comparer(func(a, b netip.Addr) bool { return a == b })
	if diff := cmp.Diff(entriesBefore, c.Entries(), addrCmp); diff != "" {
		t.Errorf("entries changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(pendingBefore, c.Pending(), addrCmp, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("pending changed (-before +after):\n%s", diff)
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	c := NewCache(testCfg)
	c.Insert(hopIP, hopMAC, t0)
	other := netip.MustParseAddr("10.0.1.3")
	c.Insert(other, hopMAC, t0.Add(5*time.Second))

	res := c.Sweep(t0.Add(15 * time.Second))
	require.Len(t, res.Evicted, 1)
	assert.Equal(t, hopIP, res.Evicted[0].IP)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, other, entries[0].IP)
}

func TestSweepRetryThenAbandon(t *testing.T) {
	c := NewCache(testCfg)
	_, _ = c.Queue(hopIP, "eth1", []byte{1}, "eth0", t0)
	_, _ = c.Queue(hopIP, "eth1", []byte{2}, "eth2", t0)

	retries := 0
	now := t0
	var abandoned []Request
	for tick := 1; tick <= 20 && abandoned == nil; tick++ {
		// Ticks every 400ms: a request is only due once a full interval has passed.
		now = t0.Add(time.Duration(tick) * 400 * time.Millisecond)
		res := c.Sweep(now)
		for _, r := range res.Retry {
			retries++
			assert.Equal(t, retries+1, r.Attempts)
			assert.Nil(t, r.Frames)
		}
		if len(res.Abandoned) > 0 {
			abandoned = res.Abandoned
		}
	}

	require.Len(t, abandoned, 1)
	assert.Equal(t, testCfg.MaxAttempts-1, retries, "first attempt is sent at creation")
	assert.Equal(t, testCfg.MaxAttempts, abandoned[0].Attempts)
	assert.Len(t, abandoned[0].Frames, 2)
	assert.Empty(t, c.Pending())

	// Attempts are spaced at least one interval apart; with 400ms ticks the
	// spacing rounds up to 1.2s, so abandonment happens at 5 × 1.2s.
	assert.Equal(t, t0.Add(6*time.Second), now)
}

func TestSweepRetryIntervalBoundary(t *testing.T) {
	c := NewCache(testCfg)
	_, _ = c.Queue(hopIP, "eth1", []byte{1}, "eth0", t0)

	res := c.Sweep(t0.Add(time.Second - time.Nanosecond))
	assert.Empty(t, res.Retry)

	res = c.Sweep(t0.Add(time.Second))
	require.Len(t, res.Retry, 1)
	assert.Equal(t, 2, res.Retry[0].Attempts)
	assert.Equal(t, "eth1", res.Retry[0].Iface)
}

func TestPendingOrderIsCreationOrder(t *testing.T) {
	c := NewCache(testCfg)
	ips := []netip.Addr{
		netip.MustParseAddr("10.0.9.9"),
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.5.5"),
	}
	for _, ip := range ips {
		_, _ = c.Queue(ip, "eth1", []byte{1}, "eth0", t0)
	}

	res := c.Sweep(t0.Add(time.Second))
	require.Len(t, res.Retry, 3)
	for i, ip := range ips {
		assert.Equal(t, ip, res.Retry[i].IP)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache(testCfg)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := netip.AddrFrom4([4]byte{10, 0, 2, byte(i)})
			for j := 0; j < 100; j++ {
				now := t0.Add(time.Duration(j) * 100 * time.Millisecond)
				_, _ = c.Queue(ip, "eth1", []byte{byte(j)}, "eth0", now)
				c.Sweep(now)
				c.Lookup(ip, now)
				if j%10 == 0 {
					c.Insert(ip, hopMAC, now)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, req := range c.Pending() {
		assert.LessOrEqual(t, len(req.Frames), testCfg.MaxQueued)
	}
}
