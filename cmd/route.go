package cmd

import (
	"fmt"
	"io"
	"net/netip"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/srouter/internal/config"
	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/route"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect the static routing table",
}

var routeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the routing table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadTable(configFile)
		if err != nil {
			return err
		}
		return printRoutes(table, cmd.OutOrStdout())
	},
}

var routeLookupCmd = &cobra.Command{
	Use:   "lookup <ipv4>",
	Short: "Show the route, next hop and egress interface for an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadTable(configFile)
		if err != nil {
			return err
		}
		return runLookup(table, args[0], cmd.OutOrStdout())
	},
}

func init() {
	routeCmd.AddCommand(routeShowCmd)
	routeCmd.AddCommand(routeLookupCmd)
}

func loadTable(path string) (*route.Table, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return route.NewTable(cfg.StaticRoutes)
}

func printRoutes(table *route.Table, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DESTINATION\tGATEWAY\tMASK\tINTERFACE")
	for _, r := range table.Routes() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Network, r.Gateway, r.Mask, r.Interface)
	}
	return w.Flush()
}

func runLookup(table *route.Table, arg string, out io.Writer) error {
	dst, err := netip.ParseAddr(arg)
	if err != nil || !dst.Is4() {
		return fmt.Errorf("invalid IPv4 address %q", arg)
	}
	r, ok := table.Lookup(dst)
	if !ok {
		return fmt.Errorf("%w: %s (network unreachable)", core.ErrNoRoute, dst)
	}
	fmt.Fprintf(out, "%s via %s dev %s (route %s)\n", dst, r.NextHop(dst), r.Interface, r)
	return nil
}
