package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mart-segments/internal/export"
	"mart-segments/internal/segmentation"
)

func (c *cli) newExportCmd() *cobra.Command {
	var (
		input   string
		out     string
		k       int
		formats []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the pipeline and write the result tables",
		Example: `  segment export --input train.csv --out out/
  segment export --input train.xlsx --out out/ --k 4 --format csv,xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("input") {
				input = c.cfg.Data.InputFile
			}
			if !cmd.Flags().Changed("out") {
				out = c.cfg.Data.OutputDir
			}
			if !cmd.Flags().Changed("format") {
				formats = c.cfg.Data.Formats
			}
			for _, f := range formats {
				if !slices.Contains([]string{export.FormatCSV, export.FormatXLSX}, f) {
					return fmt.Errorf("invalid --format %q, must be csv or xlsx", f)
				}
			}
			if k != 0 {
				if err := segmentation.ValidateK(k); err != nil {
					return err
				}
			}

			a, err := c.analytics()
			if err != nil {
				return err
			}
			if err := a.LoadFile(cmd.Context(), input); err != nil {
				return err
			}
			if k != 0 {
				if _, err := a.Recluster(cmd.Context(), k); err != nil {
					return err
				}
			}

			prep, res, extra, err := a.Export()
			if err != nil {
				return err
			}
			m, err := export.WriteAll(out, export.Run{
				Input:        input,
				ExtraColumns: extra,
				Pipeline:     c.cfg.Pipeline,
				Prepared:     prep,
				Result:       res,
			}, formats)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "k=%d (selected k=%d, silhouette %.4f), %s products\n",
				m.K, m.SelectedK, m.Score, humanize.Comma(int64(len(res.Products))))
			for _, f := range m.Files {
				fmt.Fprintf(w, "  %-40s %s rows\n", f.Name, humanize.Comma(int64(f.Rows)))
			}
			fmt.Fprintf(w, "manifest: %s\n", filepath.Join(out, export.ManifestFile))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "transaction table (.csv or .xlsx)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "cluster count (0 uses the silhouette-selected k)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output formats: csv, xlsx")
	return cmd
}
