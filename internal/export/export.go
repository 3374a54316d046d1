// Package export writes a segmentation run as flat tabular artifacts: four
// CSV files, an optional Excel workbook and a YAML manifest describing the
// run.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"mart-segments/internal/config"
	"mart-segments/internal/ingest"
	"mart-segments/internal/models"
	"mart-segments/internal/segmentation"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ProductsFile      = "product_metrics_with_clusters.csv"
	StoresFile        = "store_analysis_with_clusters.csv"
	StoreClustersFile = "store_cluster_analysis.csv"
	OriginalFile      = "original_data_with_clusters.csv"
	WorkbookFile      = "segments.xlsx"
	ManifestFile      = "manifest.yaml"

	ClusterColumn = "Cluster"
)

// Run is the input to WriteAll.
type Run struct {
	Input        string
	ExtraColumns []string
	Pipeline     config.PipelineConfig
	Prepared     *segmentation.Prepared
	Result       *segmentation.Result
}

type FileEntry struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
	Rows   int    `yaml:"rows"`
}

type Manifest struct {
	RunID       string          `yaml:"run_id"`
	CreatedAt   time.Time       `yaml:"created_at"`
	Input       string          `yaml:"input,omitempty"`
	Fingerprint string          `yaml:"fingerprint"`
	K           int             `yaml:"k"`
	SelectedK   int             `yaml:"selected_k"`
	Score       float64         `yaml:"score"`
	Seed        uint64          `yaml:"seed"`
	Restarts    int             `yaml:"restarts"`
	Scores      []models.KScore `yaml:"scores"`
	Features    []string        `yaml:"features"`
	Files       []FileEntry     `yaml:"files"`
}

// table is one artifact. Cells hold string, int or float64 values so the
// workbook keeps numeric cells numeric.
type table struct {
	file   string
	sheet  string
	header []string
	rows   [][]any
}

// WriteAll writes every artifact for run into dir, creating it if needed.
// formats selects csv and/or xlsx output; the manifest is always written.
func WriteAll(dir string, run Run, formats []string) (*Manifest, error) {
	if run.Prepared == nil || run.Result == nil {
		return nil, fmt.Errorf("export: run has no results")
	}
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tables := buildTables(run)
	m := &Manifest{
		RunID:       uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Input:       run.Input,
		Fingerprint: run.Prepared.Fingerprint,
		K:           run.Result.K,
		SelectedK:   run.Prepared.Selection.K,
		Score:       run.Prepared.Selection.Score,
		Seed:        run.Pipeline.Seed,
		Restarts:    run.Pipeline.Restarts,
		Scores:      run.Prepared.Selection.Scores,
		Features:    segmentation.FeatureColumns,
	}

	if slices.Contains(formats, FormatCSV) {
		for _, t := range tables {
			if err := writeCSV(filepath.Join(dir, t.file), t); err != nil {
				return nil, err
			}
			m.Files = append(m.Files, FileEntry{Name: t.file, Format: FormatCSV, Rows: len(t.rows)})
		}
	}
	if slices.Contains(formats, FormatXLSX) {
		if err := writeWorkbook(filepath.Join(dir, WorkbookFile), tables); err != nil {
			return nil, err
		}
		m.Files = append(m.Files, FileEntry{Name: WorkbookFile, Format: FormatXLSX, Rows: totalRows(tables)})
	}

	if err := writeManifest(filepath.Join(dir, ManifestFile), m); err != nil {
		return nil, err
	}
	return m, nil
}

func totalRows(tables []table) int {
	n := 0
	for _, t := range tables {
		n += len(t.rows)
	}
	return n
}

// buildTables lays out the four artifacts of run in output order.
func buildTables(run Run) []table {
	res := run.Result
	return []table{
		productTable(res.Products),
		storeTable(res.Stores, res.K),
		storeClusterTable(res.StoreClusters),
		originalTable(res.Joined, run.ExtraColumns),
	}
}

func productTable(products []models.ProductFeatures) table {
	header := []string{
		"Item_Identifier", "Total_Sales", "Avg_Sales_Per_Store", "Std_Sales", "Num_Store_Records",
		"Avg_MRP", "Avg_Weight", "Avg_Visibility", "Num_Stores", "Item_Type", "Item_Fat_Content",
		"Item_Type_Encoded", "Item_Fat_Content_Encoded", "Sales_Stability", "Price_Per_Unit_Weight",
		ClusterColumn,
	}
	dims := 0
	if len(products) > 0 {
		dims = len(products[0].Projection)
	}
	for d := 1; d <= dims; d++ {
		header = append(header, fmt.Sprintf("PC%d", d))
	}

	t := table{file: ProductsFile, sheet: "Products", header: header}
	for _, p := range products {
		row := []any{
			p.ItemID, p.TotalSales, p.AvgSalesPerStore, p.StdSales, p.NumStoreRecords,
			p.AvgMRP, p.AvgWeight, p.AvgVisibility, p.NumStores, p.ItemType, p.ItemFatContent,
			p.ItemTypeEncoded, p.ItemFatContentEncoded, p.SalesStability, p.PricePerUnitWeight,
			p.Cluster,
		}
		for d := 0; d < dims; d++ {
			row = append(row, p.Projection[d])
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func storeTable(stores []models.StoreSummary, k int) table {
	header := []string{
		"Outlet_Identifier", "Total_Sales", "Outlet_Type", "Outlet_Size", "Outlet_Location_Type",
		"Outlet_Establishment_Year", "Num_Unique_Products",
	}
	for c := 0; c < k; c++ {
		header = append(header, fmt.Sprintf("Pct_Cluster_%d", c))
	}

	t := table{file: StoresFile, sheet: "Stores", header: header}
	for _, s := range stores {
		row := []any{
			s.OutletID, s.TotalSales, s.OutletType, s.OutletSize, s.OutletLocation,
			s.OutletYear, s.NumUniqueProducts,
		}
		for _, pct := range s.PctCluster {
			row = append(row, pct)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func storeClusterTable(rows []models.StoreClusterSummary) table {
	t := table{
		file:  StoreClustersFile,
		sheet: "Store Clusters",
		header: []string{
			"Outlet_Identifier", ClusterColumn, "Total_Sales_Cluster", "Avg_Sales_Per_Product",
			"Num_Records", "Num_Unique_Products", "Avg_MRP", "Store_Total_Sales", "Pct_Sales_From_Cluster",
		},
	}
	for _, r := range rows {
		t.rows = append(t.rows, []any{
			r.OutletID, r.Cluster, r.TotalSalesCluster, r.AvgSalesPerProduct,
			r.NumRecords, r.NumUniqueProducts, r.AvgMRP, r.StoreTotalSales, r.PctSalesFromCluster,
		})
	}
	return t
}

// originalTable reproduces the input columns with the cluster appended. An
// unlabeled record gets an empty cluster cell.
func originalTable(joined []models.LabeledTransaction, extra []string) table {
	header := slices.Concat(ingest.RequiredColumns, extra, []string{ClusterColumn})
	t := table{file: OriginalFile, sheet: "Transactions", header: header}
	for _, tx := range joined {
		cells := ingest.Row(tx.Transaction)
		row := make([]any, 0, len(cells)+1)
		for _, c := range cells {
			row = append(row, c)
		}
		if tx.Labeled {
			row = append(row, tx.Cluster)
		} else {
			row = append(row, "")
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return ingest.FormatFloat(x)
	default:
		return fmt.Sprint(x)
	}
}

func writeCSV(path string, t table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(t.header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", t.file, err)
	}
	return file.Close()
}

func writeWorkbook(path string, tables []table) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.sheet); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", t.sheet, err)
		}

		header := make([]any, len(t.header))
		for j, h := range t.header {
			header[j] = h
		}
		if err := f.SetSheetRow(t.sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(t.header), 1)
		if err := f.SetCellStyle(t.sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style headers: %w", err)
		}

		for r, row := range t.rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write row %d of %q: %w", r+2, t.sheet, err)
			}
		}

		lastCol, _ := excelize.ColumnNumberToName(len(t.header))
		f.SetColWidth(t.sheet, "A", lastCol, 18)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func writeManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
