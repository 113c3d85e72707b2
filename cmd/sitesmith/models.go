package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/martinemde/sitesmith/unifiedllm"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models sitesmith knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(unifiedllm.Models, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "PROVIDER\tMODEL\tCONTEXT\tDEFAULT\n")
			for _, m := range unifiedllm.Models {
				isDefault := ""
				if unifiedllm.DefaultModel(m.Provider) == m.ID {
					isDefault = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Provider, m.ID, m.ContextWindow, isDefault)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
