package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/srouter/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the router configuration",
	Long: `Load and validate the configuration file, including the routes file it
references, without opening any interface.

Examples:
  srouter validate -c /etc/srouter/srouter.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: %s: %d interface(s), %d route(s), link %s\n",
		path, len(cfg.Interfaces), len(cfg.StaticRoutes), cfg.Link.Type)
	for _, ic := range cfg.Interfaces {
		fmt.Fprintf(out, "  %-8s %s %s\n", ic.Name, ic.MAC, ic.IP)
	}
	return nil
}
