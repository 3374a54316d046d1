package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mart-segments/internal/errors"
)

const header = "Item_Identifier,Item_Weight,Item_Fat_Content,Item_Visibility,Item_Type,Item_MRP,Outlet_Identifier,Outlet_Establishment_Year,Outlet_Size,Outlet_Location_Type,Outlet_Type,Item_Outlet_Sales"

func TestReadCSV_Valid(t *testing.T) {
	input := header + "\n" +
		"FDA15,9.3,Low Fat,0.016,Dairy,249.8092,OUT049,1999,Medium,Tier 1,Supermarket Type1,3735.138\n" +
		"DRC01,,Regular,0.019,Soft Drinks,48.2692,OUT018,2009,,Tier 3,Supermarket Type2,443.4228\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, table.Records, 2)
	assert.Empty(t, table.ExtraColumns)

	first := table.Records[0]
	assert.Equal(t, "FDA15", first.ItemID)
	assert.True(t, first.ItemWeight.Valid)
	assert.InDelta(t, 9.3, first.ItemWeight.Value, 1e-12)
	assert.Equal(t, 1999, first.OutletYear)
	assert.Equal(t, 2, first.SourceRowNumber)

	second := table.Records[1]
	assert.False(t, second.ItemWeight.Valid, "empty weight must be a missing value, not zero")
	assert.Equal(t, "", second.OutletSize)
	assert.InDelta(t, 443.4228, second.ItemOutletSales, 1e-9)
}

func TestReadCSV_ColumnOrderAndExtras(t *testing.T) {
	input := "Row_ID,Item_Outlet_Sales,Outlet_Type,Outlet_Location_Type,Outlet_Size,Outlet_Establishment_Year,Outlet_Identifier,Item_MRP,Item_Type,Item_Visibility,Item_Fat_Content,Item_Weight,Item_Identifier\n" +
		"r1,100,Grocery Store,Tier 1,Small,1998,OUT010,50,Dairy,0.1,LF,NA,FDX01\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"Row_ID"}, table.ExtraColumns)

	tx := table.Records[0]
	assert.Equal(t, "FDX01", tx.ItemID)
	assert.Equal(t, "OUT010", tx.OutletID)
	assert.False(t, tx.ItemWeight.Valid)
	assert.Equal(t, []string{"r1"}, tx.Extra)
}

func TestReadCSV_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{"empty file", "", "no header"},
		{"header only", header + "\n", "header only"},
		{"missing columns", "Item_Identifier,Item_Outlet_Sales\nA,1\n", "Item_MRP"},
		{"negative sales", header + "\nA,1,Low Fat,0.1,Dairy,10,S1,1999,Small,Tier 1,Grocery Store,-5\n", "negative"},
		{"missing sales", header + "\nA,1,Low Fat,0.1,Dairy,10,S1,1999,Small,Tier 1,Grocery Store,\n", "Item_Outlet_Sales"},
		{"bad mrp", header + "\nA,1,Low Fat,0.1,Dairy,ten,S1,1999,Small,Tier 1,Grocery Store,5\n", "Item_MRP"},
		{"missing product id", header + "\n,1,Low Fat,0.1,Dairy,10,S1,1999,Small,Tier 1,Grocery Store,5\n", "identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeSchema), "want SCHEMA_ERROR, got %v", err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestReadCSV_ReportsEarliestBadLine(t *testing.T) {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < batchSize+5; i++ {
		b.WriteString("A,1,Low Fat,0.1,Dairy,10,S1,1999,Small,Tier 1,Grocery Store,5\n")
	}
	b.WriteString("B,1,Low Fat,0.1,Dairy,10,S1,1999,Small,Tier 1,Grocery Store,-1\n")

	_, err := ReadCSV(context.Background(), strings.NewReader(b.String()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 10007")
}

func TestIsMissing(t *testing.T) {
	for _, v := range []string{"", " ", "NA", "n/a", "NaN", "null"} {
		assert.True(t, IsMissing(v), v)
	}
	for _, v := range []string{"0", "1.5", "Low Fat"} {
		assert.False(t, IsMissing(v), v)
	}
}

func TestLoadFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cols := strings.Split(header, ",")
	headerRow := make([]any, len(cols))
	for i, c := range cols {
		headerRow[i] = c
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &headerRow))
	row := []any{"FDA15", 9.3, "low fat", 0.016, "Dairy", 249.8, "OUT049", 1999, "Medium", "Tier 1", "Supermarket Type1", 3735.1}
	require.NoError(t, f.SetSheetRow(sheet, "A2", &row))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "FDA15", table.Records[0].ItemID)
	assert.Equal(t, "low fat", table.Records[0].ItemFatContent)
	assert.InDelta(t, 3735.1, table.Records[0].ItemOutletSales, 1e-9)
}
