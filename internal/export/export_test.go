package export

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"mart-segments/internal/config"
	"mart-segments/internal/ingest"
	"mart-segments/internal/segmentation"
	"mart-segments/internal/synth"
)

func testRun(t *testing.T) Run {
	t.Helper()
	ctx := context.Background()
	p := config.DefaultPipeline()
	p.Restarts = 3
	opts := segmentation.Options{Pipeline: p, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	records := synth.Generate(5, synth.Options{Products: 60, Stores: 6, MissingWeight: 0.1, Coverage: 0.5})
	prep, err := segmentation.Prepare(ctx, records, opts)
	require.NoError(t, err)
	res, err := segmentation.Segment(ctx, prep, 3, opts)
	require.NoError(t, err)
	return Run{Input: "synthetic.csv", Pipeline: p, Prepared: prep, Result: res}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAll_CSV(t *testing.T) {
	run := testRun(t)
	dir := t.TempDir()

	m, err := WriteAll(dir, run, []string{FormatCSV})
	require.NoError(t, err)
	require.Len(t, m.Files, 4)
	assert.Equal(t, 3, m.K)
	assert.NotEmpty(t, m.RunID)

	products := readCSV(t, filepath.Join(dir, ProductsFile))
	assert.Len(t, products, len(run.Result.Products)+1)
	assert.Equal(t, "Item_Identifier", products[0][0])
	assert.Contains(t, products[0], ClusterColumn)
	assert.Contains(t, products[0], "PC3")

	stores := readCSV(t, filepath.Join(dir, StoresFile))
	assert.Equal(t, []string{"Pct_Cluster_0", "Pct_Cluster_1", "Pct_Cluster_2"}, stores[0][7:])
	assert.Len(t, stores, len(run.Result.Stores)+1)

	storeClusters := readCSV(t, filepath.Join(dir, StoreClustersFile))
	assert.Len(t, storeClusters, len(run.Result.StoreClusters)+1)

	// the transaction artifact reads back through the loader
	f, err := os.Open(filepath.Join(dir, OriginalFile))
	require.NoError(t, err)
	defer f.Close()
	table, err := ingest.ReadCSV(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, table.Records, len(run.Result.Joined))
	assert.Equal(t, []string{ClusterColumn}, table.ExtraColumns)

	_, err = os.Stat(filepath.Join(dir, WorkbookFile))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteAll_WorkbookAndManifest(t *testing.T) {
	run := testRun(t)
	dir := t.TempDir()

	_, err := WriteAll(dir, run, []string{FormatXLSX})
	require.NoError(t, err)

	wb, err := excelize.OpenFile(filepath.Join(dir, WorkbookFile))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Products", "Stores", "Store Clusters", "Transactions"}, wb.GetSheetList())

	rows, err := wb.GetRows("Products")
	require.NoError(t, err)
	assert.Len(t, rows, len(run.Result.Products)+1)

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, run.Prepared.Fingerprint, m.Fingerprint)
	assert.Equal(t, run.Prepared.Selection.K, m.SelectedK)
	assert.Equal(t, uint64(42), m.Seed)
	assert.Len(t, m.Scores, 9)
	assert.Equal(t, segmentation.FeatureColumns, m.Features)
	require.Len(t, m.Files, 1)
	assert.Equal(t, FormatXLSX, m.Files[0].Format)
}

func TestWriteAll_RequiresResults(t *testing.T) {
	_, err := WriteAll(t.TempDir(), Run{}, nil)
	assert.Error(t, err)
}
