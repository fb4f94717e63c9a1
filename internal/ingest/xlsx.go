// Package ingest reads product records from catalog export spreadsheets
// for bulk enqueueing.
package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalog-verify/internal/model"
)

// XLSXOptions configures the spreadsheet parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Recognized header names, normalized to lowercase with underscores.
// Columns outside this set land in RawAttributes keyed by their header.
const (
	colCatalogID   = "catalog_id"
	colCatalogName = "catalog_name"
	colBrand       = "brand"
	colModelNumber = "model_number"
	colCategory    = "category"
	colRawText     = "description"
)

// ReadProducts reads an XLSX catalog export into product inputs. The
// first row must be a header row containing at least catalog_id and
// catalog_name.
func ReadProducts(path string, opts XLSXOptions) ([]model.ProductInput, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("ingest: empty sheet")
	}

	header := rowToStrings(sheet.Rows[0])
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = normalizeHeader(h)
	}
	if indexOf(cols, colCatalogID) < 0 || indexOf(cols, colCatalogName) < 0 {
		return nil, eris.Errorf("ingest: header must contain %s and %s", colCatalogID, colCatalogName)
	}

	var products []model.ProductInput
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		p, ok := rowToProduct(cols, cells)
		if !ok {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func rowToProduct(cols, cells []string) (model.ProductInput, bool) {
	var p model.ProductInput
	for i, col := range cols {
		if i >= len(cells) {
			break
		}
		val := strings.TrimSpace(cells[i])
		if val == "" {
			continue
		}
		switch col {
		case colCatalogID:
			p.CatalogID = val
		case colCatalogName:
			p.CatalogName = val
		case colBrand:
			p.Brand = val
		case colModelNumber:
			p.ModelNumber = val
		case colCategory:
			p.Category = val
		case colRawText:
			p.RawText = val
		default:
			if p.RawAttributes == nil {
				p.RawAttributes = make(map[string]string)
			}
			p.RawAttributes[col] = val
		}
	}
	// Rows without an identity are header junk or trailing blanks.
	if p.CatalogID == "" || p.CatalogName == "" {
		return model.ProductInput{}, false
	}
	return p, true
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
