package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) newScoresCmd() *cobra.Command {
	var (
		input  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Print the silhouette score of every candidate cluster count",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("input") {
				input = c.cfg.Data.InputFile
			}

			a, err := c.analytics()
			if err != nil {
				return err
			}
			if err := a.LoadFile(cmd.Context(), input); err != nil {
				return err
			}
			sel, err := a.Selection()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sel)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "K\tSILHOUETTE\t")
			for _, s := range sel.Scores {
				switch {
				case !s.Valid:
					fmt.Fprintf(tw, "%d\t-\tskipped\n", s.K)
				case s.K == sel.K:
					fmt.Fprintf(tw, "%d\t%.4f\tselected\n", s.K, s.Score)
				default:
					fmt.Fprintf(tw, "%d\t%.4f\t\n", s.K, s.Score)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "transaction table (.csv or .xlsx)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the selection as JSON")
	return cmd
}
