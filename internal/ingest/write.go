package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"mart-segments/internal/models"
)

// FormatFloat renders a number the way it is written back to tabular output.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Row renders tx in RequiredColumns order followed by its extra cells.
// A missing weight is written as an empty cell.
func Row(tx models.Transaction) []string {
	weight := ""
	if tx.ItemWeight.Valid {
		weight = FormatFloat(tx.ItemWeight.Value)
	}
	row := []string{
		tx.ItemID,
		weight,
		tx.ItemFatContent,
		FormatFloat(tx.ItemVisibility),
		tx.ItemType,
		FormatFloat(tx.ItemMRP),
		tx.OutletID,
		strconv.Itoa(tx.OutletYear),
		tx.OutletSize,
		tx.OutletLocation,
		tx.OutletType,
		FormatFloat(tx.ItemOutletSales),
	}
	return append(row, tx.Extra...)
}

// WriteCSV writes t with the canonical header, so ReadCSV reads it back.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), RequiredColumns...), t.ExtraColumns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, tx := range t.Records {
		if err := cw.Write(Row(tx)); err != nil {
			return fmt.Errorf("write row %s/%s: %w", tx.ItemID, tx.OutletID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
