package format

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/procurement-cli/internal/model"
)

// WriteXLSX writes the comparison table to an xlsx workbook at path,
// mirroring the CSV layout.
func WriteXLSX(path string, products map[string]model.ProductRecord, sourceOrder []string, factors []string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Comparison")
	if err != nil {
		return eris.Wrap(err, "format: add sheet")
	}

	header := sheet.AddRow()
	header.AddCell().Value = "product_name"
	for _, factor := range factors {
		header.AddCell().Value = factor
	}

	for _, id := range rowOrder(products, sourceOrder) {
		rec := products[id]
		row := sheet.AddRow()
		row.AddCell().Value = rec.ProductName
		for _, factor := range factors {
			row.AddCell().Value = rec.Fields[factor]
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "format: save xlsx")
	}
	return nil
}
