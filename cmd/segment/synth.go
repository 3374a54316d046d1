package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mart-segments/internal/ingest"
	"mart-segments/internal/synth"
)

func (c *cli) newSynthCmd() *cobra.Command {
	var (
		out  string
		seed int64
	)
	opts := synth.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a reproducible synthetic transaction table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Products < 2 || opts.Stores < 1 {
				return fmt.Errorf("need at least 2 products and 1 store, got %d and %d", opts.Products, opts.Stores)
			}
			if opts.Coverage <= 0 || opts.Coverage > 1 {
				return fmt.Errorf("--coverage must be in (0, 1], got %g", opts.Coverage)
			}
			if opts.MissingWeight < 0 || opts.MissingWeight >= 1 {
				return fmt.Errorf("--missing-weight must be in [0, 1), got %g", opts.MissingWeight)
			}

			records := synth.Generate(seed, opts)

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := ingest.WriteCSV(w, &ingest.Table{Records: records}); err != nil {
				return err
			}
			c.logger.Info("synthetic table written",
				"path", out,
				"records", humanize.Comma(int64(len(records))),
				"products", opts.Products,
				"stores", opts.Stores,
				"seed", seed,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", "output csv path (- for stdout)")
	cmd.Flags().IntVar(&opts.Products, "products", opts.Products, "number of products")
	cmd.Flags().IntVar(&opts.Stores, "stores", opts.Stores, "number of stores")
	cmd.Flags().Int64Var(&seed, "seed", 7, "random seed")
	cmd.Flags().Float64Var(&opts.MissingWeight, "missing-weight", opts.MissingWeight, "probability that a record has no weight")
	cmd.Flags().Float64Var(&opts.Coverage, "coverage", opts.Coverage, "probability that a store carries a product")
	return cmd
}
