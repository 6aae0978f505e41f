package route

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/srouter/internal/core"
)

// Entry is the file representation of a route. Destination is either a bare
// network address paired with Mask, or a CIDR prefix with Mask left empty.
type Entry struct {
	Destination string `yaml:"destination" mapstructure:"destination"`
	Gateway     string `yaml:"gateway" mapstructure:"gateway"`
	Mask        string `yaml:"mask" mapstructure:"mask"`
	Interface   string `yaml:"interface" mapstructure:"interface"`
}

// Route converts the entry into a core.Route.
func (e Entry) Route() (core.Route, error) {
	var r core.Route
	r.Interface = strings.TrimSpace(e.Interface)

	dest := strings.TrimSpace(e.Destination)
	if e.Mask == "" && strings.Contains(dest, "/") {
		prefix, err := netip.ParsePrefix(dest)
		if err != nil {
			return r, fmt.Errorf("invalid destination %q: %w", dest, err)
		}
		if !prefix.Addr().Is4() {
			return r, fmt.Errorf("destination %q is not IPv4", dest)
		}
		r.Network = prefix.Masked().Addr()
		r.Mask = maskFromBits(prefix.Bits())
	} else {
		network, err := netip.ParseAddr(dest)
		if err != nil {
			return r, fmt.Errorf("invalid destination %q: %w", dest, err)
		}
		mask, err := netip.ParseAddr(strings.TrimSpace(e.Mask))
		if err != nil {
			return r, fmt.Errorf("invalid mask %q: %w", e.Mask, err)
		}
		r.Network, r.Mask = network, mask
	}

	if gw := strings.TrimSpace(e.Gateway); gw != "" {
		gateway, err := netip.ParseAddr(gw)
		if err != nil {
			return r, fmt.Errorf("invalid gateway %q: %w", gw, err)
		}
		r.Gateway = gateway
	} else {
		r.Gateway = netip.IPv4Unspecified()
	}

	if !r.Network.Is4() || !r.Mask.Is4() || !r.Gateway.Is4() {
		return r, fmt.Errorf("route %s: addresses must be IPv4", dest)
	}
	if r.Interface == "" {
		return r, fmt.Errorf("route %s: interface is required", dest)
	}
	return r, nil
}

// Routes converts a list of entries, reporting the first bad one.
func Routes(entries []Entry) ([]core.Route, error) {
	routes := make([]core.Route, 0, len(entries))
	for i, e := range entries {
		r, err := e.Route()
		if err != nil {
			return nil, fmt.Errorf("%w: route %d: %v", core.ErrConfigInvalid, i, err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

type routesFile struct {
	Routes []Entry `yaml:"routes"`
}

// LoadFile reads routes from path. Files ending in .yml or .yaml hold a
// `routes:` list; anything else is read as a whitespace separated rtable with
// one "destination gateway mask interface" entry per line.
func LoadFile(path string) ([]core.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		var f routesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse routes file %s: %w", path, err)
		}
		return Routes(f.Routes)
	default:
		routes, err := ParseRTable(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("routes file %s: %w", path, err)
		}
		return routes, nil
	}
}

// ParseRTable parses the rtable text format. Blank lines and lines starting
// with '#' are ignored.
func ParseRTable(r io.Reader) ([]core.Route, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: line %d: expected 4 fields, got %d", core.ErrConfigInvalid, lineNo, len(fields))
		}
		entries = append(entries, Entry{
			Destination: fields[0],
			Gateway:     fields[1],
			Mask:        fields[2],
			Interface:   fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Routes(entries)
}

func maskFromBits(bits int) netip.Addr {
	var b [4]byte
	for i := 0; i < bits && i < 32; i++ {
		b[i/8] |= 0x80 >> (i % 8)
	}
	return netip.AddrFrom4(b)
}
