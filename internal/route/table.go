// Package route holds the router's read-only forwarding state: the static
// routing table with longest-prefix-match lookup and the interface table.
package route

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/srouter/internal/core"
)

// Table is an immutable, ordered list of static routes.
type Table struct {
	routes []core.Route
}

// NewTable validates routes and returns a table preserving their order.
// Every route must use IPv4 network and mask values.
func NewTable(routes []core.Route) (*Table, error) {
	t := &Table{routes: make([]core.Route, 0, len(routes))}
	for i, r := range routes {
		if !r.Network.Is4() || !r.Mask.Is4() {
			return nil, fmt.Errorf("%w: route %d: network and mask must be IPv4", core.ErrConfigInvalid, i)
		}
		if r.Gateway.IsValid() && !r.Gateway.Is4() {
			return nil, fmt.Errorf("%w: route %d: gateway must be IPv4", core.ErrConfigInvalid, i)
		}
		if r.Interface == "" {
			return nil, fmt.Errorf("%w: route %d: interface is required", core.ErrConfigInvalid, i)
		}
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// Lookup returns the longest-prefix match for dst. Among entries with equal
// masks the first in table order wins.
func (t *Table) Lookup(dst netip.Addr) (core.Route, bool) {
	if t == nil || !dst.Is4() {
		return core.Route{}, false
	}
	d := addrToUint32(dst)

	var (
		best     core.Route
		bestMask uint32
		found    bool
	)
	for _, r := range t.routes {
		mask := addrToUint32(r.Mask)
		if d&mask != addrToUint32(r.Network)&mask {
			continue
		}
		if !found || mask > bestMask {
			best, bestMask, found = r, mask, true
		}
	}
	return best, found
}

// Routes returns a copy of the entries in table order.
func (t *Table) Routes() []core.Route {
	if t == nil {
		return nil
	}
	out := make([]core.Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Len returns the number of routes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}
