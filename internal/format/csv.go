// Package format renders accumulated product records as tabular output.
// The CSV transform is pure: identical inputs always produce byte-identical
// output.
package format

import (
	"encoding/csv"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/model"
)

// CSV renders the records as an RFC 4180 table. The header row is
// product_name followed by the factors in their canonical order; rows
// follow the given source order, with records for unknown sources
// appended in sorted id order. Missing field values render as empty cells.
func CSV(products map[string]model.ProductRecord, sourceOrder []string, factors []string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := append([]string{"product_name"}, factors...)
	if err := w.Write(header); err != nil {
		return "", eris.Wrap(err, "format: write header")
	}

	for _, id := range rowOrder(products, sourceOrder) {
		rec := products[id]
		row := make([]string, 0, len(header))
		row = append(row, rec.ProductName)
		for _, f := range factors {
			row = append(row, rec.Fields[f])
		}
		if err := w.Write(row); err != nil {
			return "", eris.Wrap(err, "format: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "format: flush")
	}
	return sb.String(), nil
}

// rowOrder lists extracted source ids in search-result order, then any
// stragglers sorted by id so output stays deterministic.
func rowOrder(products map[string]model.ProductRecord, sourceOrder []string) []string {
	out := make([]string, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, id := range sourceOrder {
		if _, ok := products[id]; !ok {
			continue
		}
		out = append(out, id)
		seen[id] = struct{}{}
	}

	var rest []string
	for id := range products {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
