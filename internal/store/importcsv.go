package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nugget/shopkeep/internal/vntext"
)

// ImportStats reports the outcome of a CSV import.
type ImportStats struct {
	Imported int
	Skipped  int
}

// ImportProducts loads products from a CSV export with the columns URL,
// Image_URL, Product_name, Category, Description, Price and
// Usage_instructions, plus an optional Quantity. Rows without a positive
// price are skipped with a warning; defaultQty stocks rows that carry no
// quantity of their own.
func (s *Store) ImportProducts(ctx context.Context, r io.Reader, defaultQty int) (ImportStats, error) {
	var stats ImportStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		// Spreadsheet exports often start with a UTF-8 BOM.
		col[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	if _, ok := col["Product_name"]; !ok {
		return stats, fmt.Errorf("missing Product_name column")
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	for rowNum := 2; ; rowNum++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("row %d: %w", rowNum, err)
		}

		name := field(rec, "Product_name")
		price, err := vntext.ParsePrice(field(rec, "Price"))
		if err != nil || price <= 0 {
			s.logger.Warn("skipping product without a usable price",
				"row", rowNum, "product", name, "price", field(rec, "Price"))
			stats.Skipped++
			continue
		}

		qty := defaultQty
		if raw := field(rec, "Quantity"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
				qty = n
			}
		}

		if _, err := s.AddProduct(ctx, Product{
			Name:              name,
			Category:          field(rec, "Category"),
			Description:       field(rec, "Description"),
			Price:             price,
			Quantity:          qty,
			ImageURL:          field(rec, "Image_URL"),
			URL:               field(rec, "URL"),
			UsageInstructions: field(rec, "Usage_instructions"),
		}); err != nil {
			s.logger.Warn("skipping product", "row", rowNum, "product", name, "error", err)
			stats.Skipped++
			continue
		}
		stats.Imported++

		if stats.Imported%50 == 0 {
			s.logger.Info("import progress", "imported", stats.Imported)
		}
	}

	s.logger.Info("product import complete", "imported", stats.Imported, "skipped", stats.Skipped)
	return stats, nil
}
