package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/collectors"
	"github.com/spf13/cobra"
)

func collectorsCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "collectors",
		Short: "List available collectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			reg, err := collectors.NewRegistry(cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tNETWORK\tDESCRIPTION")
			for _, c := range reg.All() {
				network := "no"
				if c.RequiresNetwork() {
					network = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name(), network, c.Description())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
