package route

import (
	"fmt"
	"net/netip"
	"sort"

	"firestige.xyz/srouter/internal/core"
)

// InterfaceTable is an immutable set of router interfaces indexed by name and address.
type InterfaceTable struct {
	byName map[string]core.Interface
	byIP   map[netip.Addr]core.Interface
}

// NewInterfaceTable indexes ifaces. Names and addresses must be unique.
func NewInterfaceTable(ifaces []core.Interface) (*InterfaceTable, error) {
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("%w: no interfaces configured", core.ErrConfigInvalid)
	}
	t := &InterfaceTable{
		byName: make(map[string]core.Interface, len(ifaces)),
		byIP:   make(map[netip.Addr]core.Interface, len(ifaces)),
	}
	for _, ifc := range ifaces {
		if ifc.Name == "" {
			return nil, fmt.Errorf("%w: interface without a name", core.ErrConfigInvalid)
		}
		if !ifc.IP.Is4() {
			return nil, fmt.Errorf("%w: interface %s: IPv4 address required", core.ErrConfigInvalid, ifc.Name)
		}
		if _, dup := t.byName[ifc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate interface %s", core.ErrConfigInvalid, ifc.Name)
		}
		if other, dup := t.byIP[ifc.IP]; dup {
			return nil, fmt.Errorf("%w: interfaces %s and %s share address %s",
				core.ErrConfigInvalid, other.Name, ifc.Name, ifc.IP)
		}
		t.byName[ifc.Name] = ifc
		t.byIP[ifc.IP] = ifc
	}
	return t, nil
}

// ByName returns the interface called name.
func (t *InterfaceTable) ByName(name string) (core.Interface, bool) {
	ifc, ok := t.byName[name]
	return ifc, ok
}

// ByIP returns the interface that owns ip.
func (t *InterfaceTable) ByIP(ip netip.Addr) (core.Interface, bool) {
	ifc, ok := t.byIP[ip]
	return ifc, ok
}

// Owns reports whether ip is assigned to one of the router's interfaces.
func (t *InterfaceTable) Owns(ip netip.Addr) bool {
	_, ok := t.byIP[ip]
	return ok
}

// All returns the interfaces sorted by name.
func (t *InterfaceTable) All() []core.Interface {
	out := make([]core.Interface, 0, len(t.byName))
	for _, ifc := range t.byName {
		out = append(out, ifc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckRoutes verifies that every route egresses through a known interface.
func (t *InterfaceTable) CheckRoutes(routes []core.Route) error {
	for _, r := range routes {
		if _, ok := t.byName[r.Interface]; !ok {
			return fmt.Errorf("%w: route %s references %q", core.ErrUnknownInterface, r, r.Interface)
		}
	}
	return nil
}
