// Package arp implements the router's ARP cache: resolved IPv4 to MAC
// bindings with expiry, and the pending resolutions whose frames wait for a
// reply.
//
// The cache never transmits. Every operation takes the current time from the
// caller, and Sweep reports which requests must be resent or abandoned so the
// caller can act on them after the lock is released.
package arp

import (
	"bytes"
	"container/list"
	"net/netip"
	"sort"
	"sync"
	"time"

	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/metrics"
)

// Defaults for Config fields left at zero.
const (
	DefaultEntryTimeout  = 15 * time.Second
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxAttempts   = 5
	DefaultMaxQueued     = 256
)

// Config contains cache timing and size limits.
type Config struct {
	EntryTimeout  time.Duration // Lifetime of a resolved binding (default 15s)
	RetryInterval time.Duration // Minimum spacing between requests for one IP (default 1s)
	MaxAttempts   int           // Requests sent before a resolution is abandoned (default 5)
	MaxQueued     int           // Frames held per pending resolution (default 256)
}

func (c Config) withDefaults() Config {
	if c.EntryTimeout <= 0 {
		c.EntryTimeout = DefaultEntryTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxQueued <= 0 {
		c.MaxQueued = DefaultMaxQueued
	}
	return c
}

// Entry is a resolved binding.
type Entry struct {
	IP      netip.Addr
	MAC     core.MAC
	Added   time.Time
	Expires time.Time
}

// QueuedFrame is a frame waiting for its next hop to resolve.
type QueuedFrame struct {
	Frame    []byte // private copy of the whole Ethernet frame
	InIface  string // interface the frame arrived on
	Received time.Time
}

// Request is a pending resolution for one next-hop IP.
type Request struct {
	IP       netip.Addr
	Iface    string // egress interface the request is sent on
	Attempts int
	LastSent time.Time
	Frames   []QueuedFrame
}

// SweepResult lists what a sweep tick decided. Retry holds requests that must
// be sent again (Frames is nil); Abandoned holds requests removed from the
// cache together with their frames.
type SweepResult struct {
	Retry     []Request
	Abandoned []Request
	Evicted   []Entry
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	config  Config
	entries map[netip.Addr]Entry
	pending map[netip.Addr]*list.Element // Value is *Request
	order   list.List                    // pending requests in creation order
	queued  int
}

// NewCache creates an empty cache.
func NewCache(cfg Config) *Cache {
	return &Cache{
		config:  cfg.withDefaults(),
		entries: make(map[netip.Addr]Entry),
		pending: make(map[netip.Addr]*list.Element),
	}
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Lookup returns the MAC bound to ip. Entries past their expiry are misses
// even if the sweeper has not removed them yet.
func (c *Cache) Lookup(ip netip.Addr, now time.Time) (core.MAC, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok || !now.Before(e.Expires) {
		return core.MAC{}, false
	}
	return e.MAC, true
}

// Insert binds ip to mac, replacing any previous binding. If a resolution was
// pending for ip it is removed and returned so its frames can be flushed.
func (c *Cache) Insert(ip netip.Addr, mac core.MAC, now time.Time) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ip] = Entry{
		IP:      ip,
		MAC:     mac,
		Added:   now,
		Expires: now.Add(c.config.EntryTimeout),
	}

	var (
		req   Request
		found bool
	)
	if elem, ok := c.pending[ip]; ok {
		req = *c.removeLocked(elem)
		found = true
	}
	c.updateGaugesLocked()
	return req, found
}

// Queue stores a copy of frame on the pending request for ip, creating the
// request (one attempt, sent now, egress iface) if none exists. created is
// true when the caller must send the first ARP request. A full queue yields
// core.ErrQueueFull and the frame is not stored.
func (c *Cache) Queue(ip netip.Addr, iface string, frame []byte, inIface string, now time.Time) (created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var req *Request
	if elem, ok := c.pending[ip]; ok {
		req = elem.Value.(*Request)
		if len(req.Frames) >= c.config.MaxQueued {
			return false, core.ErrQueueFull
		}
	} else {
		req = &Request{
			IP:       ip,
			Iface:    iface,
			Attempts: 1,
			LastSent: now,
		}
		c.pending[ip] = c.order.PushBack(req)
		created = true
	}

	req.Frames = append(req.Frames, QueuedFrame{
		Frame:    bytes.Clone(frame),
		InIface:  inIface,
		Received: now,
	})
	c.queued++
	c.updateGaugesLocked()
	return created, nil
}

// Sweep evicts expired entries and advances every pending request whose last
// attempt is at least one retry interval old: below the attempt limit it is
// scheduled for a resend, at the limit it is abandoned.
func (c *Cache) Sweep(now time.Time) SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res SweepResult

	for ip, e := range c.entries {
		if !now.Before(e.Expires) {
			delete(c.entries, ip)
			res.Evicted = append(res.Evicted, e)
		}
	}

	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		req := elem.Value.(*Request)
		if now.Sub(req.LastSent) >= c.config.RetryInterval {
			if req.Attempts < c.config.MaxAttempts {
				req.Attempts++
				req.LastSent = now
				res.Retry = append(res.Retry, Request{
					IP:       req.IP,
					Iface:    req.Iface,
					Attempts: req.Attempts,
					LastSent: req.LastSent,
				})
			} else {
				res.Abandoned = append(res.Abandoned, *c.removeLocked(elem))
			}
		}
		elem = next
	}

	c.updateGaugesLocked()
	return res
}

// Entries returns a snapshot of the resolved bindings ordered by IP.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP.Less(out[j].IP) })
	return out
}

// Pending returns deep copies of the pending requests in creation order.
func (c *Cache) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		req := *elem.Value.(*Request)
		frames := make([]QueuedFrame, len(req.Frames))
		for i, f := range req.Frames {
			frames[i] = f
			frames[i].Frame = bytes.Clone(f.Frame)
		}
		req.Frames = frames
		out = append(out, req)
	}
	return out
}

// removeLocked unlinks a pending request. Must be called with c.mu held.
func (c *Cache) removeLocked(elem *list.Element) *Request {
	req := c.order.Remove(elem).(*Request)
	delete(c.pending, req.IP)
	c.queued -= len(req.Frames)
	return req
}

func (c *Cache) updateGaugesLocked() {
	metrics.ARPCacheEntries.Set(float64(len(c.entries)))
	metrics.ARPPendingRequests.Set(float64(len(c.pending)))
	metrics.ARPQueuedFrames.Set(float64(c.queued))
}
