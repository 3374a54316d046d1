// Package ingest loads the raw transaction table from CSV or XLSX files and
// validates it against the required schema.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"mart-segments/internal/errors"
	"mart-segments/internal/models"
)

const (
	ColItemID         = "Item_Identifier"
	ColItemWeight     = "Item_Weight"
	ColFatContent     = "Item_Fat_Content"
	ColVisibility     = "Item_Visibility"
	ColItemType       = "Item_Type"
	ColItemMRP        = "Item_MRP"
	ColOutletID       = "Outlet_Identifier"
	ColOutletYear     = "Outlet_Establishment_Year"
	ColOutletSize     = "Outlet_Size"
	ColOutletLocation = "Outlet_Location_Type"
	ColOutletType     = "Outlet_Type"
	ColSales          = "Item_Outlet_Sales"

	batchSize = 10000
)

// RequiredColumns is the input schema, in the canonical column order.
var RequiredColumns = []string{
	ColItemID, ColItemWeight, ColFatContent, ColVisibility, ColItemType, ColItemMRP,
	ColOutletID, ColOutletYear, ColOutletSize, ColOutletLocation, ColOutletType, ColSales,
}

// Table is the loaded transaction table. Columns outside the schema are kept
// per record (Transaction.Extra) in ExtraColumns order.
type Table struct {
	Records      []models.Transaction
	ExtraColumns []string
}

// LoadFile reads a .csv or .xlsx transaction file.
func LoadFile(ctx context.Context, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(ctx, path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		return ReadCSV(ctx, f)
	}
}

func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.SchemaWrap(err, "malformed CSV input")
	}
	if len(rows) == 0 {
		return nil, errors.Schema("input is empty").With("no header row")
	}
	return parseRows(ctx, rows[0], rows[1:])
}

// ReadXLSX reads the first sheet of an Excel workbook.
func ReadXLSX(ctx context.Context, path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Schema("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, errors.Schema("input is empty").With("sheet %q has no header row", sheets[0])
	}
	return parseRows(ctx, rows[0], rows[1:])
}

type columnIndex struct {
	required map[string]int
	extra    []int
}

func indexHeader(header []string) (*columnIndex, []string, error) {
	idx := &columnIndex{required: make(map[string]int, len(RequiredColumns))}
	var extraNames []string
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if slices.Contains(RequiredColumns, name) {
			if _, dup := idx.required[name]; !dup {
				idx.required[name] = i
				continue
			}
		}
		idx.extra = append(idx.extra, i)
		extraNames = append(extraNames, name)
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx.required[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.Schema("required columns absent from input").
			With("missing: %s", strings.Join(missing, ", "))
	}
	return idx, extraNames, nil
}

func parseRows(ctx context.Context, header []string, rows [][]string) (*Table, error) {
	idx, extraNames, err := indexHeader(header)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Schema("input has no records").With("header only")
	}

	records := make([]models.Transaction, len(rows))
	numBatches := (len(rows) + batchSize - 1) / batchSize
	batchErrs := make([]error, numBatches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for b := 0; b < numBatches; b++ {
		g.Go(func() error {
			start := b * batchSize
			end := min(start+batchSize, len(rows))
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				// Header is line 1, so data row i sits on line i+2.
				tx, err := parseRecord(rows[i], idx, i+2)
				if err != nil {
					batchErrs[b] = err
					return nil
				}
				records[i] = tx
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Report the earliest bad row regardless of which batch finished first.
	for _, err := range batchErrs {
		if err != nil {
			return nil, err
		}
	}

	return &Table{Records: records, ExtraColumns: extraNames}, nil
}

func parseRecord(row []string, idx *columnIndex, line int) (models.Transaction, error) {
	cell := func(col string) string {
		i := idx.required[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var tx models.Transaction
	tx.SourceRowNumber = line
	tx.ItemID = cell(ColItemID)
	tx.OutletID = cell(ColOutletID)
	if tx.ItemID == "" || tx.OutletID == "" {
		return tx, errors.Schema("missing identifier").With("line %d: %s and %s are required", line, ColItemID, ColOutletID)
	}

	tx.ItemFatContent = cell(ColFatContent)
	tx.ItemType = cell(ColItemType)
	tx.OutletLocation = cell(ColOutletLocation)
	tx.OutletType = cell(ColOutletType)
	if v := cell(ColOutletSize); !IsMissing(v) {
		tx.OutletSize = v
	}

	var err error
	if v := cell(ColItemWeight); !IsMissing(v) {
		w, perr := parseNumber(v, ColItemWeight, line)
		if perr != nil {
			return tx, perr
		}
		tx.ItemWeight = models.Float(w)
	}
	if tx.ItemVisibility, err = requiredNumber(cell(ColVisibility), ColVisibility, line); err != nil {
		return tx, err
	}
	if tx.ItemMRP, err = requiredNumber(cell(ColItemMRP), ColItemMRP, line); err != nil {
		return tx, err
	}
	if tx.ItemOutletSales, err = requiredNumber(cell(ColSales), ColSales, line); err != nil {
		return tx, err
	}
	if tx.ItemOutletSales < 0 {
		return tx, errors.Schema("negative sales amount").With("line %d: %s=%v", line, ColSales, tx.ItemOutletSales)
	}
	year, err := requiredNumber(cell(ColOutletYear), ColOutletYear, line)
	if err != nil {
		return tx, err
	}
	if year != math.Trunc(year) {
		return tx, errors.Schema("non-integer year").With("line %d: %s=%v", line, ColOutletYear, year)
	}
	tx.OutletYear = int(year)

	if len(idx.extra) > 0 {
		tx.Extra = make([]string, len(idx.extra))
		for j, i := range idx.extra {
			if i < len(row) {
				tx.Extra[j] = row[i]
			}
		}
	}
	return tx, nil
}

func requiredNumber(v, col string, line int) (float64, error) {
	if IsMissing(v) {
		return 0, errors.Schema("missing required value").With("line %d: %s", line, col)
	}
	return parseNumber(v, col, line)
}

func parseNumber(v, col string, line int) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.Schema("unparsable numeric value").With("line %d: %s=%q", line, col, v)
	}
	return f, nil
}

// IsMissing reports whether a raw cell is the "no value" marker.
func IsMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "n/a", "nan", "null":
		return true
	}
	return false
}
