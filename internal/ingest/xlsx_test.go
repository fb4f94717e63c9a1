package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadProducts(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Catalog ID", "Catalog Name", "Brand", "Model Number", "Category", "Description", "Finish"},
			{"cat-1", "GE JGB735 Gas Range", "GE", "JGB735", "Range", "Freestanding gas range", "Stainless"},
			{"cat-2", "Mystery Mirror", "", "", "", "", ""},
		},
	})

	products, err := ReadProducts(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "cat-1", products[0].CatalogID)
	assert.Equal(t, "GE JGB735 Gas Range", products[0].CatalogName)
	assert.Equal(t, "GE", products[0].Brand)
	assert.Equal(t, "JGB735", products[0].ModelNumber)
	assert.Equal(t, "Range", products[0].Category)
	assert.Equal(t, "Freestanding gas range", products[0].RawText)
	assert.Equal(t, "Stainless", products[0].RawAttributes["finish"])

	assert.Equal(t, "cat-2", products[1].CatalogID)
	assert.Nil(t, products[1].RawAttributes)
}

func TestReadProducts_SkipsRowsWithoutIdentity(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"catalog_id", "catalog_name"},
			{"cat-1", "Item One"},
			{"", "No ID"},
			{"cat-3", ""},
		},
	})

	products, err := ReadProducts(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "cat-1", products[0].CatalogID)
}

func TestReadProducts_MissingRequiredHeader(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"sku", "title"},
			{"cat-1", "Item One"},
		},
	})

	_, err := ReadProducts(path, XLSXOptions{})
	assert.Error(t, err)
}

func TestReadProducts_SheetByName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Products": {
			{"catalog_id", "catalog_name"},
			{"cat-1", "Item One"},
		},
	})

	products, err := ReadProducts(path, XLSXOptions{SheetName: "Products"})
	require.NoError(t, err)
	assert.Len(t, products, 1)

	_, err = ReadProducts(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
}
